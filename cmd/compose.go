package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tradesim/tradesim/sim/scenario"
)

var composeFromPaths []string

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Merge scenario fragments into one scenario",
	Long:  "Load several scenario YAML files and merge their topics, products and actors. Output is written to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(composeFromPaths) == 0 {
			return fmt.Errorf("at least one --from flag is required")
		}
		var specs []*scenario.Spec
		for _, path := range composeFromPaths {
			spec, err := scenario.Load(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			specs = append(specs, spec)
		}
		merged, err := scenario.Compose(specs)
		if err != nil {
			return fmt.Errorf("compose failed: %w", err)
		}
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("composed scenario is invalid: %w", err)
		}
		data, err := yaml.Marshal(merged)
		if err != nil {
			return fmt.Errorf("YAML marshal failed: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	composeCmd.Flags().StringArrayVar(&composeFromPaths, "from", nil, "Path to a scenario YAML file (can be repeated)")
	_ = composeCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(composeCmd)
}
