package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Environment keys that supply defaults for flags not given on the command line.
const (
	EnvLog      = "TRADESIM_LOG"
	EnvSeed     = "TRADESIM_SEED"
	EnvScenario = "TRADESIM_SCENARIO"
)

// envFlags maps environment keys to the flags they default.
var envFlags = map[string]string{
	EnvLog:      "log",
	EnvSeed:     "seed",
	EnvScenario: "scenario",
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.Debugf("env file %s not found, skipping", path)
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	logrus.Debugf("loaded env file %s", path)
	return nil
}

// applyEnv sets every flag that was not given explicitly from its environment key.
func applyEnv(cmd *cobra.Command) error {
	for key, name := range envFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil || cmd.Flags().Changed(name) {
			continue
		}
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		if err := cmd.Flags().Set(name, v); err != nil {
			return fmt.Errorf("%s=%q: %w", key, v, err)
		}
	}
	return nil
}
