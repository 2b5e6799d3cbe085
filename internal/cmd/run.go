package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/internal/config"
	"github.com/tessellab/simfarm/internal/observability"
	"github.com/tessellab/simfarm/pkg/engine"
	"github.com/tessellab/simfarm/pkg/pbs"
	"github.com/tessellab/simfarm/pkg/runner"
	"github.com/tessellab/simfarm/pkg/session"
)

var (
	runCmdsPath string
	runJobName  string
	runPollWait time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one raw-commands job to completion",
	Long: `Run a single job from a raw engine command file and poll its progress
until the run ends. Execution happens locally or on the cluster, per the
configuration.

Examples:
  simfarm run --cmds commands.txt
  simfarm run --cmds commands.txt --name folding-test`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runCmdsPath, "cmds", "", "Path to raw engine command file (required)")
	runCmd.Flags().StringVar(&runJobName, "name", "cli-run", "Job name")
	runCmd.Flags().DurationVar(&runPollWait, "poll", 2*time.Second, "Progress polling interval")

	_ = runCmd.MarkFlagRequired("cmds")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(runCmdsPath)
	if err != nil {
		return fmt.Errorf("read command file: %w", err)
	}

	var factory runner.Factory
	if cfg.UsePBSOffload {
		factory = runner.NewClusterFactory(cfg.EngineExecPath,
			pbs.NewClient(observability.Logger), observability.Logger)
	} else {
		factory = runner.NewLocalFactory(cfg.EngineExecPath, observability.Logger)
	}

	mgr := session.NewManager(session.ManagerParams{
		JobsRoot:         cfg.JobsDir,
		ParamsPath:       cfg.ParametersPath,
		NewRunner:        factory,
		Logger:           observability.Logger,
		WatchdogInterval: cfg.WatchdogInterval,
	})
	defer mgr.Close()

	sess, err := mgr.CreateSession("cli")
	if err != nil {
		return err
	}

	jobID, err := sess.CreateJob(runJobName, nil, string(raw))
	if err != nil {
		return err
	}
	if err := sess.StartJobRaw(jobID, string(raw)); err != nil {
		return err
	}
	observability.CLILogger.Info("Job started",
		zap.String("job_id", jobID.String()),
		zap.String("name", runJobName))

	for {
		time.Sleep(runPollWait)

		info, err := sess.JobInfo(jobID)
		if err != nil {
			return err
		}

		if info.Progress != nil {
			observability.CLILogger.Info("Progress",
				zap.String("state", string(info.State)),
				zap.Int("step", info.Progress.Step),
				zap.Int("total_steps", info.Progress.TotalSteps))
		} else {
			observability.CLILogger.Info("Progress", zap.String("state", string(info.State)))
		}

		switch info.State {
		case engine.StateFinished:
			observability.CLILogger.Info("Job finished",
				zap.Int("last_stage", info.LastStage))
			return nil
		case engine.StateFailed:
			diag, derr := sess.JobDiagnostics(jobID)
			if derr == nil && diag != "" {
				observability.CLILogger.Error("Engine diagnostics output follows")
				fmt.Fprintln(os.Stderr, diag)
			}
			return fmt.Errorf("job failed")
		}
	}
}
