package pipeline

import "fmt"

type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitFailure ExitCode = 1
)

// Stage names identify where a run failed, both in logs and in the
// persisted report.
const (
	StagePrerequisites = "prerequisites"
	StagePrepare       = "prepare"
	StageDeploy        = "deploy"
	StageValidate      = "validate"
	StagePromote       = "promote"
	StageRollback      = "rollback"
)

// Error is a stage-scoped pipeline failure.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Errorf(stage, format string, args ...interface{}) *Error {
	return &Error{
		Stage: stage,
		Err:   fmt.Errorf(format, args...),
	}
}

func ErrorWrap(stage string, err error) *Error {
	return &Error{
		Stage: stage,
		Err:   err,
	}
}

// RollbackError means the compensating action itself failed. The
// environment is in an unknown state and an operator must intervene.
type RollbackError struct {
	Err error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed, manual intervention required: %s", e.Err)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}
