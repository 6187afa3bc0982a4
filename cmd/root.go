package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tradesim/tradesim/sim/codec"
	"github.com/tradesim/tradesim/sim/scenario"
	"github.com/tradesim/tradesim/sim/trace"
)

var (
	scenarioPath string  // Path to the scenario YAML file
	seed         int64   // Overrides the scenario seed when set
	horizonDays  float64 // Overrides the scenario horizon when positive
	logLevel     string  // Log verbosity level
	envFile      string  // Optional .env file supplying flag defaults
	traceLevel   string  // Trace verbosity: none, decisions, messages
	traceOut     string  // Trace JSON output path
	metricsOut   string  // Prometheus text-format metrics output path
	messagesOut  string  // Sent-message journal output path
	reportOut    string  // Report JSON output path
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "tradesim",
	Short: "Discrete-event simulator for supply-chain trading networks",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		if err := applyEnv(cmd); err != nil {
			return err
		}
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// runCmd executes a scenario and prints the end-of-run report
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a trading scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := scenario.Options{
			HorizonDays: horizonDays,
			TraceLevel:  trace.TraceLevel(traceLevel),
			Metrics:     metricsOut != "",
			Journal:     messagesOut != "",
		}
		if cmd.Flags().Changed("seed") {
			opts.Seed = &seed
		}
		return runScenario(scenarioPath, opts, cmd.OutOrStdout())
	},
}

// validateCmd checks a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario file",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := loadScenario(scenarioPath)
		if err != nil {
			return err
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("%s: %w", scenarioPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (version %s, %d actors, %d products)\n",
			scenarioPath, spec.Version, len(spec.Actors), len(spec.Products))
		return nil
	},
}

func loadScenario(path string) (*scenario.Spec, error) {
	if path == "" {
		return nil, fmt.Errorf("no scenario given (--scenario or %s)", EnvScenario)
	}
	return scenario.Load(path)
}

func runScenario(path string, opts scenario.Options, out io.Writer) error {
	spec, err := loadScenario(path)
	if err != nil {
		return err
	}
	s, err := scenario.Build(spec, opts)
	if err != nil {
		return err
	}

	startTime := time.Now()
	report := s.Run()
	logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	report.Print(out)

	if traceOut != "" && s.Model.Trace != nil {
		if err := writeJSONFile(traceOut, s.Model.Trace); err != nil {
			return err
		}
	}
	if metricsOut != "" {
		if err := s.Model.Metrics.WriteTextfile(metricsOut); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	if messagesOut != "" {
		data, err := codec.EncodeAll(s.Model.Journal())
		if err != nil {
			return fmt.Errorf("encoding messages: %w", err)
		}
		if err := os.WriteFile(messagesOut, data, 0o644); err != nil {
			return fmt.Errorf("writing messages: %w", err)
		}
	}
	if reportOut != "" {
		if err := writeJSONFile(reportOut, report); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	logrus.Infof("wrote %s", path)
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario YAML file (env "+EnvScenario+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic) (env "+EnvLog+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional env file supplying flag defaults")

	runCmd.Flags().Int64Var(&seed, "seed", 0, "Override the scenario seed (env "+EnvSeed+")")
	runCmd.Flags().Float64Var(&horizonDays, "horizon-days", 0, "Override the scenario horizon in days")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Trace verbosity (none, decisions, messages)")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the trace as JSON to this file")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")
	runCmd.Flags().StringVar(&messagesOut, "messages-out", "", "Write sent messages as JSON envelopes to this file, in send order")
	runCmd.Flags().StringVar(&reportOut, "report-out", "", "Write the run report as JSON to this file")

	rootCmd.AddCommand(runCmd, validateCmd)
}
