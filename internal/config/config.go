// Package config loads and validates the server configuration. The loaded
// value is passed explicitly down the session/job construction chain; there
// is no global.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the live server configuration.
type Config struct {
	// EngineExecPath is the external computation executable.
	EngineExecPath string `mapstructure:"engine_exec_path"`
	// ParametersPath is the shared static input copied into every new
	// job directory.
	ParametersPath string `mapstructure:"parameters_path"`
	// JobsDir is the root under which per-session job storage lives.
	JobsDir string `mapstructure:"jobs_dir"`
	// ExamplesDir holds the bundled example registry. Optional.
	ExamplesDir string `mapstructure:"examples_dir"`
	// UsePBSOffload selects the cluster backend instead of local
	// execution for every job.
	UsePBSOffload bool `mapstructure:"use_pbs_offload"`
	// WatchdogInterval overrides the stalled-upload scan interval.
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
}

// Load reads the configuration file at path (YAML or JSON) and validates
// it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every configured path exists and has the right
// shape, and creates the jobs root when missing.
func (c *Config) Validate() error {
	if err := checkFile(c.EngineExecPath); err != nil {
		return fmt.Errorf("engine_exec_path: %w", err)
	}
	if err := checkFile(c.ParametersPath); err != nil {
		return fmt.Errorf("parameters_path: %w", err)
	}

	if c.JobsDir == "" {
		return fmt.Errorf("jobs_dir is required")
	}
	if err := os.MkdirAll(c.JobsDir, 0755); err != nil {
		return fmt.Errorf("jobs_dir: %w", err)
	}

	if c.ExamplesDir != "" {
		if err := checkDir(c.ExamplesDir); err != nil {
			return fmt.Errorf("examples_dir: %w", err)
		}
	}
	return nil
}

func checkFile(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	return nil
}

func checkDir(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
