// Package config loads the batch driver's configuration: a YAML file with
// environment-variable overrides, following the teacher's own config
// layering (gopkg.in/yaml.v3 for the file, caarlos0/env for overrides).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/conclave-dev/conclave/internal/infra"
	"github.com/conclave-dev/conclave/pkg/team"
)

// SandboxConfig is the per-run default sandbox spec, shared by every
// instance unless an instance source overrides its image (spec.md §6.1/§6.3).
type SandboxConfig struct {
	Image          string            `yaml:"image" env:"SANDBOX_IMAGE"`
	PullPolicy     string            `yaml:"pull_policy" env:"SANDBOX_PULL_POLICY"`
	ContainerPort  int               `yaml:"container_port" env:"SANDBOX_CONTAINER_PORT"`
	StartupTimeout int               `yaml:"startup_timeout_seconds" env:"SANDBOX_STARTUP_TIMEOUT_SECONDS"`
	CacheRoot      string            `yaml:"cache_root" env:"SANDBOX_CACHE_ROOT"`
	Env            map[string]string `yaml:"env"`
}

// EvaluationConfig wires the optional evaluator submission hook (spec.md
// §6.2); zero value disables it entirely.
type EvaluationConfig struct {
	Enabled                  bool   `yaml:"enabled" env:"EVALUATE"`
	Subset                   string `yaml:"subset" env:"EVAL_SUBSET"`
	Split                    string `yaml:"split" env:"EVAL_SPLIT"`
	HarnessCommand           string `yaml:"harness_command" env:"EVAL_HARNESS_COMMAND"`
	ContinuousSubmissionEvery int   `yaml:"continuous_submission_every" env:"EVAL_CONTINUOUS_SUBMISSION_EVERY"`
	MaxWorkers               int    `yaml:"max_workers" env:"EVAL_MAX_WORKERS"`
	TimeoutSeconds           int    `yaml:"timeout_seconds" env:"EVAL_TIMEOUT_SECONDS"`
	Namespace                string `yaml:"namespace" env:"EVAL_NAMESPACE"`
	ImageTag                 string `yaml:"image_tag" env:"EVAL_IMAGE_TAG"`
	CacheLevel               string `yaml:"cache_level" env:"EVAL_CACHE_LEVEL"`
	Clean                    bool   `yaml:"clean" env:"EVAL_CLEAN"`
	ForceRebuild             bool   `yaml:"force_rebuild" env:"EVAL_FORCE_REBUILD"`
}

// Config is the batch driver's CLI surface of spec.md §6.3, loaded from YAML
// with CONCLAVE_-prefixed environment overrides.
type Config struct {
	Instances           string   `yaml:"instances" env:"INSTANCES"`
	AgentConfigPaths    []string `yaml:"agent_config_paths" env:"AGENT_CONFIG_PATHS" envSeparator:","`
	TeamName            string   `yaml:"team_name" env:"TEAM_NAME"`
	MaxConsecutiveTurns int      `yaml:"max_consecutive_turns" env:"MAX_CONSECUTIVE_TURNS"`
	OutputDir           string   `yaml:"output_dir" env:"OUTPUT_DIR"`
	Suffix              string   `yaml:"suffix" env:"SUFFIX"`

	NumWorkers            int     `yaml:"num_workers" env:"NUM_WORKERS"`
	RedoExisting          bool    `yaml:"redo_existing" env:"REDO_EXISTING"`
	RaiseExceptions       bool    `yaml:"raise_exceptions" env:"RAISE_EXCEPTIONS"`
	RandomDelayMultiplier float64 `yaml:"random_delay_multiplier" env:"RANDOM_DELAY_MULTIPLIER"`
	ProgressBar           bool    `yaml:"progress_bar" env:"PROGRESS_BAR"`
	EnvVarPath            string  `yaml:"env_var_path" env:"ENV_VAR_PATH"`

	// HumanModel marks an agent roster as requiring an interactive operator
	// at the keyboard; it cannot be combined with num_workers > 1.
	HumanModel bool `yaml:"human_model" env:"HUMAN_MODEL"`

	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
}

// Default returns the batch driver's zero-config defaults.
func Default() *Config {
	return &Config{
		TeamName:              "team",
		OutputDir:             "DEFAULT",
		NumWorkers:            1,
		RandomDelayMultiplier: 1,
		ProgressBar:           true,
		Sandbox: SandboxConfig{
			PullPolicy:     "missing",
			ContainerPort:  8000,
			StartupTimeout: 180,
		},
		Evaluation: EvaluationConfig{
			MaxWorkers:     2,
			TimeoutSeconds: 600,
			CacheLevel:     "instance",
			ImageTag:       "latest",
		},
	}
}

// Load reads path as YAML over the defaults, then applies CONCLAVE_-prefixed
// environment overrides, then resolves OutputDir's "DEFAULT" timestamped
// convention and validates cross-field invariants.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, &team.ConfigurationError{Msg: fmt.Sprintf("parse config %s: %v", path, err)}
			}
		case os.IsNotExist(err):
			// fall through with defaults
		default:
			return nil, &team.ConfigurationError{Msg: fmt.Sprintf("read config %s: %v", path, err)}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "CONCLAVE_"}); err != nil {
		return nil, &team.ConfigurationError{Msg: fmt.Sprintf("parse env overrides: %v", err)}
	}

	cfg.resolveOutputDir()
	cfg.resolveCacheRoot()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolveOutputDir() {
	if c.OutputDir != "" && c.OutputDir != "DEFAULT" {
		return
	}
	name := "run_" + time.Now().Format("20060102150405")
	if c.Suffix != "" {
		name += "_" + c.Suffix
	}
	c.OutputDir = filepath.Join(".", name)
}

// resolveCacheRoot falls back to infra.ResolveHomeDir (CONCLAVE_HOME or
// ~/.conclave) when sandbox.cache_root is left unset, so the image cache
// lands at a stable path across working directories instead of under the
// process's CWD.
func (c *Config) resolveCacheRoot() {
	if c.Sandbox.CacheRoot != "" {
		return
	}
	c.Sandbox.CacheRoot = infra.ResolveHomeDir()
}

// Validate enforces the batch driver's pre-run ConfigurationError cases:
// an impossible evaluate+redo_existing combination, a human-in-the-loop
// model paired with more than one worker, no instances, and no agent
// configs.
func (c *Config) Validate() error {
	if c.Instances == "" {
		return &team.ConfigurationError{Msg: "instances must be set"}
	}
	if len(c.AgentConfigPaths) == 0 {
		return &team.ConfigurationError{Msg: "agent_config_paths must have at least one entry"}
	}
	if c.Evaluation.Enabled && c.RedoExisting {
		return &team.ConfigurationError{Msg: "evaluate and redo_existing cannot both be set: redoing existing instances during an active evaluation pass would submit a changing predictions file mid-run"}
	}
	if c.HumanModel && c.NumWorkers > 1 {
		return &team.ConfigurationError{Msg: "human_model requires num_workers=1: a human operator cannot drive more than one instance at a time"}
	}
	return nil
}
