package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/tradesim/sim/codec"
	"github.com/tradesim/tradesim/sim/scenario"
	"github.com/tradesim/tradesim/sim/trace"
)

const tinyScenario = `
version: "1.0.0"
seed: 3
horizon_days: 5
products:
  - {id: widget, topic: goods/widget}
actors:
  - name: shop
    location: {x: 0, y: 0}
    balance: 100
    buying:
      strategy: rfq
      cutoff_days: 0.5
      payment: {timing: immediate}
      suppliers:
        - {product: widget, actor: depot, unit_price: 1}
    restock:
      - product: widget
        strategy: {name: fixed, quantity: 4}
        interval_days: 10
        max_delivery_days: 2
  - name: depot
    location: {x: 1, y: 0}
    inventory: {widget: 50}
    selling:
      catalog: {widget: 1}
`

func writeScenario(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func resetOutputs(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		traceOut, metricsOut, messagesOut, reportOut = "", "", "", ""
	})
}

func TestRunScenario_WritesReportAndArtifacts(t *testing.T) {
	// GIVEN a scenario and every output file requested
	resetOutputs(t)
	dir := t.TempDir()
	path := writeScenario(t, tinyScenario)
	traceOut = filepath.Join(dir, "trace.json")
	metricsOut = filepath.Join(dir, "metrics.prom")
	messagesOut = filepath.Join(dir, "messages.json")
	reportOut = filepath.Join(dir, "report.json")

	// WHEN the scenario runs
	var out bytes.Buffer
	err := runScenario(path, scenario.Options{
		TraceLevel: trace.TraceLevelMessages,
		Metrics:    true,
		Journal:    true,
	}, &out)
	require.NoError(t, err)

	// THEN the summary is printed to the writer
	assert.Contains(t, out.String(), "=== Simulation Report ===")
	assert.Contains(t, out.String(), "--- shop: balance 96.00")

	// AND every artifact exists
	metrics, err := os.ReadFile(metricsOut)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "tradesim_messages_sent_total")

	data, err := os.ReadFile(messagesOut)
	require.NoError(t, err)
	var envs []codec.Envelope
	require.NoError(t, json.Unmarshal(data, &envs))
	require.NotEmpty(t, envs)
	assert.Equal(t, "internal-demand", envs[0].Kind)

	var report scenario.Report
	data, err = os.ReadFile(reportOut)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 1, report.Restocks)

	_, err = os.Stat(traceOut)
	assert.NoError(t, err)
}

func TestRunScenario_MissingScenario(t *testing.T) {
	err := runScenario("", scenario.Options{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, EnvScenario)
}

func TestValidateCommand(t *testing.T) {
	good := writeScenario(t, tinyScenario)
	bad := writeScenario(t, "version: \"3.0.0\"\nhorizon_days: 1\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"validate", "--scenario", good, "--env-file", ""})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ok (version 1.0.0, 2 actors, 1 products)")

	rootCmd.SetArgs([]string{"validate", "--scenario", bad, "--env-file", ""})
	assert.Error(t, rootCmd.Execute())
}

func TestApplyEnv_FillsOnlyUnsetFlags(t *testing.T) {
	// GIVEN a command with --log given explicitly and --seed left unset
	var logFlag string
	var seedFlag int64
	c := &cobra.Command{Use: "x"}
	c.Flags().StringVar(&logFlag, "log", "warn", "")
	c.Flags().Int64Var(&seedFlag, "seed", 0, "")
	require.NoError(t, c.Flags().Parse([]string{"--log", "error"}))
	t.Setenv(EnvLog, "debug")
	t.Setenv(EnvSeed, "17")

	// WHEN the environment is applied
	require.NoError(t, applyEnv(c))

	// THEN the explicit flag wins and the unset flag takes the env value
	assert.Equal(t, "error", logFlag)
	assert.Equal(t, int64(17), seedFlag)
	assert.True(t, c.Flags().Changed("seed"))
}

func TestApplyEnv_RejectsMalformedValue(t *testing.T) {
	var seedFlag int64
	c := &cobra.Command{Use: "x"}
	c.Flags().Int64Var(&seedFlag, "seed", 0, "")
	t.Setenv(EnvSeed, "not-a-number")
	assert.ErrorContains(t, applyEnv(c), EnvSeed)
}

func TestLoadEnvFile(t *testing.T) {
	// GIVEN an env file setting the scenario key
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvScenario+"=from-file.yaml\n"), 0o644))
	t.Setenv(EnvScenario, "")
	require.NoError(t, os.Unsetenv(EnvScenario))

	// WHEN it is loaded
	require.NoError(t, loadEnvFile(path))

	// THEN the key is visible and a missing file is tolerated
	assert.Equal(t, "from-file.yaml", os.Getenv(EnvScenario))
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}
