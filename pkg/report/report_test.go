package report_test

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/pipeline"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terminalReport() *pipeline.Report {
	r := pipeline.NewReport(pipeline.Request{
		Environment:       "prod",
		Tag:               "v2.0.0",
		DeploymentTimeout: time.Minute * 10,
		ValidationTimeout: time.Minute * 5,
		RollbackTimeout:   time.Minute * 2,
	})
	r.FinalState = pipeline.StatePromoted
	r.EndTime = r.StartTime.Add(time.Minute * 3)
	return r
}

func TestPersistWritesVersionedJSON(t *testing.T) {
	writer := &report.Writer{Dir: t.TempDir()}
	r := terminalReport()

	path, err := writer.Persist(r)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	decoded := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, float64(pipeline.SchemaVersion), decoded["schemaVersion"])
	assert.Equal(t, r.RunID, decoded["runId"])
	assert.Equal(t, "Promoted", decoded["finalState"])
	assert.Contains(t, path, "prod-"+r.RunID)
}

func TestPersistRefusesNonTerminalState(t *testing.T) {
	writer := &report.Writer{Dir: t.TempDir()}
	r := terminalReport()
	r.FinalState = pipeline.StateDeploying

	_, err := writer.Persist(r)
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	r := terminalReport()
	line := report.Summary(r)

	assert.Contains(t, line, "environment=prod")
	assert.Contains(t, line, "tag=v2.0.0")
	assert.Contains(t, line, "state=Promoted")

	r.Simulated = true
	r.Error = "validation failed"
	line = report.Summary(r)
	assert.Contains(t, line, "(dry run)")
	assert.Contains(t, line, "validation failed")
}
