package pipeline

// State is the position of a deployment run in its lifecycle. Exactly one
// run may hold a non-terminal state per environment at a time.
type State string

const (
	StateInit              State = "Init"
	StatePrereqsChecked    State = "PrereqsChecked"
	StatePrepared          State = "Prepared"
	StateDeploying         State = "Deploying"
	StateValidating        State = "Validating"
	StateAwaitingPromotion State = "AwaitingPromotion"
	StatePromoting         State = "Promoting"
	StatePromoted          State = "Promoted"
	StateRollingBack       State = "RollingBack"
	StateRolledBack        State = "RolledBack"
	StateFailed            State = "Failed"
)

// Terminal reports whether the run is over. AwaitingPromotion is terminal
// for the run itself; a later manual promotion completes the deployment.
func (s State) Terminal() bool {
	switch s {
	case StateAwaitingPromotion, StatePromoted, StateRolledBack, StateFailed:
		return true
	}
	return false
}

// Succeeded maps a terminal state to its exit semantics.
func (s State) Succeeded() bool {
	return s == StatePromoted || s == StateAwaitingPromotion
}
