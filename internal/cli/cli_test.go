package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/perfharness/internal/report"
)

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PERF_TARGET_URL", "http://127.0.0.1:1")
	t.Setenv("PERF_TARGET_HTTP_TIMEOUT", "200ms")
	t.Setenv("PERF_MONITORING_SAMPLE_INTERVAL", "50ms")
	t.Setenv("PERF_MONITORING_PROBE_TIMEOUT", "100ms")
	t.Setenv("PERF_LOG_LEVEL", "error")
}

func TestScenariosCommand(t *testing.T) {
	quietEnv(t)
	var out, errOut bytes.Buffer

	code := Execute(context.Background(), []string{"scenarios"}, &out, &errOut)

	require.Equal(t, 0, code, errOut.String())
	for _, want := range []string{"read_heavy", "burst_load", "baseline", "PRESET", "quick", "full"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestScenariosCommand_IncludesScenarioFile(t *testing.T) {
	quietEnv(t)
	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`scenarios:
  - name: nightly_soak
    mix: read_heavy
    users: 5
    spawn_rate: 1
    duration: 30m
`), 0o600))

	var out, errOut bytes.Buffer
	code := Execute(context.Background(), []string{"--scenario-file", path, "scenarios"}, &out, &errOut)

	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "nightly_soak")
}

func TestRunCommand_RequiresScenario(t *testing.T) {
	quietEnv(t)
	var out, errOut bytes.Buffer

	code := Execute(context.Background(), []string{"run"}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "requires at least 1 arg")
}

func TestRunCommand_UnknownScenario(t *testing.T) {
	quietEnv(t)
	var out, errOut bytes.Buffer

	code := Execute(context.Background(), []string{"run", "no_such_scenario"}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "no_such_scenario")
}

func TestPresetCommand_RejectsArgs(t *testing.T) {
	quietEnv(t)
	var out, errOut bytes.Buffer

	code := Execute(context.Background(), []string{"quick", "extra"}, &out, &errOut)

	assert.Equal(t, 1, code)
}

func TestRunCommand_NoBackendsFails(t *testing.T) {
	quietEnv(t)
	outPath := filepath.Join(t.TempDir(), "report.json")
	var out, errOut bytes.Buffer

	code := Execute(context.Background(),
		[]string{"run", "balanced", "--duration", "200ms", "--out", outPath},
		&out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "status: fail")
	assert.NotContains(t, errOut.String(), "Error:")

	rep, err := report.ReadJSON(outPath)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFail, rep.Status)
	assert.Empty(t, rep.Results)
}

func TestMonitorCommand_WritesSummary(t *testing.T) {
	quietEnv(t)
	var out, errOut bytes.Buffer

	code := Execute(context.Background(),
		[]string{"monitor", "--interval", "50ms", "--duration", "300ms"},
		&out, &errOut)

	require.Equal(t, 0, code, errOut.String())
	var summary map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.NotEmpty(t, summary)
}

func TestMonitorCommand_BadDuration(t *testing.T) {
	quietEnv(t)
	var out, errOut bytes.Buffer

	code := Execute(context.Background(), []string{"monitor", "--duration", "soon"}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "invalid duration")
}

func TestPrintVerdict_UnavailableSorted(t *testing.T) {
	rep := &report.Report{
		Status: report.StatusFail,
		Unavailable: map[string]string{
			"redis":    "dial tcp: connection refused",
			"neo4j":    "authentication failure",
			"postgres": "password authentication failed",
		},
	}
	for i := 0; i < 5; i++ {
		var errOut bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetErr(&errOut)

		printVerdict(cmd, rep, 0)

		lines := strings.Split(strings.TrimSpace(errOut.String()), "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, []string{
			"unavailable: neo4j: authentication failure",
			"unavailable: postgres: password authentication failed",
			"unavailable: redis: dial tcp: connection refused",
		}, lines[1:])
	}
}
