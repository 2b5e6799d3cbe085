package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/internal/config"
	"github.com/tessellab/simfarm/internal/observability"
	"github.com/tessellab/simfarm/pkg/examples"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks against the configuration: engine executable,
shared parameters file, job storage, scheduler CLI availability when
offloading is enabled, and the bundled examples registry.

Examples:
  simfarm doctor
  simfarm doctor --config /etc/simfarm.yaml`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	observability.CLILogger.Info("=== simfarm doctor ===")
	observability.CLILogger.Info("Running diagnostic checks...")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		observability.CLILogger.Error("✗ Configuration", zap.Error(err))
		return fmt.Errorf("configuration is not usable")
	}
	observability.CLILogger.Info("✓ Configuration loaded", zap.String("path", cfgPath))

	ok := true
	ok = checkExecutable(cfg.EngineExecPath) && ok
	ok = checkJobsDir(cfg.JobsDir) && ok

	if cfg.UsePBSOffload {
		for _, tool := range []string{"qsub", "qstat", "qdel"} {
			ok = checkSchedulerTool(tool) && ok
		}
	} else {
		observability.CLILogger.Info("- Scheduler checks skipped, offloading disabled")
	}

	if cfg.ExamplesDir != "" {
		ok = checkExamples(cfg.ExamplesDir) && ok
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	observability.CLILogger.Info("All checks passed")
	return nil
}

func checkExecutable(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		observability.CLILogger.Error("✗ Engine executable", zap.Error(err))
		return false
	}
	if st.Mode().Perm()&0111 == 0 {
		observability.CLILogger.Error("✗ Engine executable is not executable",
			zap.String("path", path))
		return false
	}
	observability.CLILogger.Info("✓ Engine executable", zap.String("path", path))
	return true
}

func checkJobsDir(dir string) bool {
	probe, err := os.CreateTemp(dir, ".doctor-probe-*")
	if err != nil {
		observability.CLILogger.Error("✗ Job storage is not writable", zap.Error(err))
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	observability.CLILogger.Info("✓ Job storage writable", zap.String("dir", dir))
	return true
}

func checkSchedulerTool(tool string) bool {
	path, err := exec.LookPath(tool)
	if err != nil {
		observability.CLILogger.Error("✗ Scheduler tool not found", zap.String("tool", tool))
		return false
	}
	observability.CLILogger.Info("✓ Scheduler tool", zap.String("tool", tool), zap.String("path", path))
	return true
}

func checkExamples(dir string) bool {
	list, err := examples.List(dir)
	if err != nil {
		observability.CLILogger.Error("✗ Examples registry", zap.Error(err))
		return false
	}
	observability.CLILogger.Info("✓ Examples registry", zap.Int("examples", len(list)))
	return true
}
