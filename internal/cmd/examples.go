package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/internal/config"
	"github.com/tessellab/simfarm/internal/observability"
	"github.com/tessellab/simfarm/pkg/examples"
)

var examplesShowName string

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "List the bundled example jobs",
	Long: `List the bundled example registry, or print one example's
structured-commands payload with --show.

Examples:
  simfarm examples
  simfarm examples --show small-run`,
	RunE: runExamples,
}

func init() {
	rootCmd.AddCommand(examplesCmd)

	examplesCmd.Flags().StringVar(&examplesShowName, "show", "", "Print the named example's commands payload")
}

func runExamples(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.ExamplesDir == "" {
		return fmt.Errorf("no examples directory configured")
	}

	if examplesShowName != "" {
		cmds, err := examples.Commands(cfg.ExamplesDir, examplesShowName)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(cmds))
		return nil
	}

	list, err := examples.List(cfg.ExamplesDir)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		observability.CLILogger.Info("No examples bundled")
		return nil
	}
	for _, e := range list {
		observability.CLILogger.Info(e.Name, zap.String("description", e.Description))
	}
	return nil
}
