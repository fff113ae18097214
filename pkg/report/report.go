package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/pipeline"
	log "github.com/sirupsen/logrus"
)

// Writer persists terminal deployment reports as the audit record of a run.
type Writer struct {
	Dir string
}

// Persist writes the report as JSON to a run-scoped path and returns that
// path. The file is never rewritten; one run produces exactly one report.
func (w *Writer) Persist(report *pipeline.Report) (string, error) {
	if !report.FinalState.Terminal() {
		return "", fmt.Errorf("refusing to persist report in non-terminal state %s", report.FinalState)
	}

	err := os.MkdirAll(w.Dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	path := filepath.Join(w.Dir, fmt.Sprintf("%s-%s.json", report.Request.Environment, report.RunID))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	log.Infof("Deployment report written to %s", path)

	return path, nil
}

// Summary renders the one-line human outcome for terminal output. Full
// diagnostic detail lives in the persisted report.
func Summary(report *pipeline.Report) string {
	elapsed := report.EndTime.Sub(report.StartTime).Round(time.Millisecond * 10)

	outcome := fmt.Sprintf("environment=%s tag=%s state=%s duration=%s",
		report.Request.Environment, report.Request.Tag, report.FinalState, elapsed)

	if report.Simulated {
		outcome += " (dry run)"
	}
	if report.Error != "" {
		outcome += ": " + report.Error
	}

	return outcome
}
