package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/pipeline"
	"github.com/kingrea/stagegate/internal/store"
)

const recordedFixtures = "../../internal/pipeline/fixture/testdata"

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestContractsCheck(t *testing.T) {
	out, err := executeCommand(t, "contracts", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "25 contracts consistent")
}

func TestContractsShowJSON(t *testing.T) {
	out, err := executeCommand(t, "contracts", "show", "2", "-o", "json")
	require.NoError(t, err)
	var doc contracts.ContractDoc
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 2, doc.Stage)
	require.Len(t, doc.Consumes, 1)
	assert.Equal(t, 1, doc.Consumes[0].Stage)
	assert.Equal(t, "compositeScore", doc.Produces[0].Name)
	assert.True(t, doc.Produces[0].Required)
}

func TestContractsListText(t *testing.T) {
	out, err := executeCommand(t, "contracts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "stage-01 Draft Idea")
	assert.Contains(t, out, "stage-25")
}

func TestContractsShowRejectsBadStage(t *testing.T) {
	_, err := executeCommand(t, "contracts", "show", "26")
	require.Error(t, err)
	_, err = executeCommand(t, "contracts", "show", "two")
	require.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := executeCommand(t, "contracts", "list", "-o", "xml")
	require.Error(t, err)
}

func TestDepsLevels(t *testing.T) {
	out, err := executeCommand(t, "deps", "--levels", "-o", "yaml")
	require.NoError(t, err)
	var levels [][]int
	require.NoError(t, yaml.Unmarshal([]byte(out), &levels))
	require.NotEmpty(t, levels)
	assert.Equal(t, []int{1}, levels[0])
}

func TestDepsForStage(t *testing.T) {
	out, err := executeCommand(t, "deps", "2", "-o", "json")
	require.NoError(t, err)
	var rows []stageDeps
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, []int{1}, rows[0].Dependencies)
	assert.Contains(t, rows[0].Dependents, 3)
}

func TestValidatePost(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`{"critiques":[{"score":72},{"score":80}]}`), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("compositeScore: 150\n"), 0o644))

	out, err := executeCommand(t, "validate", "post", "2", good)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	_, err = executeCommand(t, "validate", "post", "2", good, "--no-derive")
	require.ErrorIs(t, err, errContractViolation)

	out, err = executeCommand(t, "validate", "post", "2", bad)
	require.ErrorIs(t, err, errContractViolation)
	assert.Contains(t, out, "stage-02-output: field 'compositeScore' must be <= 100 (got 150)")

	_, err = executeCommand(t, "validate", "post", "2", bad, "--advisory")
	require.NoError(t, err)
}

func TestValidatePre(t *testing.T) {
	idea := filepath.Join(recordedFixtures, "stage-01.json")
	out, err := executeCommand(t, "validate", "pre", "2", "--upstream", "1="+idea, "-o", "json")
	require.NoError(t, err)
	var result contracts.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Valid)

	out, err = executeCommand(t, "validate", "pre", "2", "--single", idea)
	require.NoError(t, err)
	assert.Contains(t, out, "pre-stage")

	out, err = executeCommand(t, "validate", "pre", "2")
	require.ErrorIs(t, err, errContractViolation)
	assert.Contains(t, out, "upstream stage-01 data missing (has required fields)")

	_, err = executeCommand(t, "validate", "pre", "2", "--upstream", "one="+idea)
	require.Error(t, err)
}

func TestRunRecordedVenture(t *testing.T) {
	project := t.TempDir()
	out, err := executeCommand(t, "run", "--project", project, "--fixtures", recordedFixtures, "--venture", "Demo Co", "-o", "json")
	require.NoError(t, err)

	var report pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, pipeline.RunStatusComplete, report.Status)
	assert.Len(t, report.Published(), contracts.LastStage)

	outputs := store.NewOutputs(filepath.Join(project, ".stagegate", "outputs"))
	stages, err := outputs.Stages("Demo Co")
	require.NoError(t, err)
	assert.Len(t, stages, contracts.LastStage)
	record, err := outputs.Load("Demo Co", 16)
	require.NoError(t, err)
	assert.EqualValues(t, 20, record.Fields["runway_months"])

	runs, err := store.NewRuns(filepath.Join(project, ".stagegate", "outputs")).List("Demo Co")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].RunID)

	_, err = os.Stat(filepath.Join(project, ".stagegate", "logs", "stagegate.log"))
	require.NoError(t, err)

	out, err = executeCommand(t, "run", "--project", project, "--fixtures", t.TempDir(), "--venture", "Demo Co", "--resume", "-o", "json")
	require.NoError(t, err, out)
	var resumed pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &resumed))
	assert.Equal(t, pipeline.RunStatusComplete, resumed.Status)
	assert.Empty(t, resumed.Stages, "every stage was restored, nothing should execute")
}

func TestRunStopsAtGateUntilApproved(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".stagegate"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, ".stagegate", "config.yaml"),
		[]byte("version: 1\ngates:\n  3:\n    note: investor review\n"), 0o644))

	out, err := executeCommand(t, "run", "--project", project, "--fixtures", recordedFixtures, "--target", "4", "-o", "json")
	require.NoError(t, err)
	var report pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, pipeline.RunStatusGated, report.Status)
	assert.Equal(t, []int{1, 2}, report.Published())

	out, err = executeCommand(t, "gates", "list", "--project", project)
	require.NoError(t, err)
	assert.Contains(t, out, "pending")

	_, err = executeCommand(t, "gates", "approve", "3", "--project", project)
	require.NoError(t, err)

	out, err = executeCommand(t, "run", "--project", project, "--fixtures", recordedFixtures, "--target", "4", "--resume", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, pipeline.RunStatusComplete, report.Status)
	assert.Equal(t, []int{3, 4}, report.Published())
}

func TestRunBlockedExitsWithViolation(t *testing.T) {
	project := t.TempDir()
	fixtures := t.TempDir()
	data, err := os.ReadFile(filepath.Join(recordedFixtures, "stage-01.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "stage-01.json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "stage-02.json"), []byte(`{"compositeScore": 101}`), 0o644))

	out, err := executeCommand(t, "run", "--project", project, "--fixtures", fixtures, "--target", "2")
	require.ErrorIs(t, err, errContractViolation)
	assert.Contains(t, out, "blocked")
}
