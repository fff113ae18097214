package pipeline

import (
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/envconfig"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/validation"
	"github.com/google/uuid"
)

// SchemaVersion is bumped whenever the persisted report layout changes
// incompatibly. Consumers key their parsing off this field.
const SchemaVersion = 1

// Event records one state transition with its wall-clock timestamp.
type Event struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the audit record of a single run. It is appended to while the
// run progresses and frozen once a terminal state is reached.
type Report struct {
	SchemaVersion int                  `json:"schemaVersion"`
	RunID         string               `json:"runId"`
	Request       Request              `json:"request"`
	FinalState    State                `json:"finalState"`
	Simulated     bool                 `json:"simulated"`
	StartTime     time.Time            `json:"startTime"`
	EndTime       time.Time            `json:"endTime"`
	Validation    *validation.Report   `json:"validation,omitempty"`
	Events        []Event              `json:"events"`
	Backup        *envconfig.BackupRef `json:"backup,omitempty"`
	Error         string               `json:"error,omitempty"`
}

func NewReport(request Request) *Report {
	return &Report{
		SchemaVersion: SchemaVersion,
		RunID:         uuid.New().String(),
		Request:       request,
		FinalState:    StateInit,
		StartTime:     time.Now(),
		Events:        make([]Event, 0),
	}
}

func (r *Report) ExitCode() ExitCode {
	if r.FinalState.Succeeded() {
		return ExitSuccess
	}
	return ExitFailure
}
