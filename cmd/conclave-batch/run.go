package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/conclave-dev/conclave/pkg/batch"
	"github.com/conclave-dev/conclave/pkg/config"
	"github.com/conclave-dev/conclave/pkg/eval"
	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/openaiagent"
	"github.com/conclave-dev/conclave/pkg/refagent"
	"github.com/conclave-dev/conclave/pkg/sandbox"
	"github.com/conclave-dev/conclave/pkg/team"
	"github.com/conclave-dev/conclave/pkg/team/hooks"
)

// newRunCommand builds the "run" subcommand: load config, build the
// agent roster and sandbox deployment per instance, run the batch, and
// (when evaluation is enabled) submit once more at the very end.
func newRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the team orchestrator across a batch of problem instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the batch driver's YAML config")
	return cmd
}

func runBatch(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	if err := logger.EnableFileLogging(filepath.Join(cfg.OutputDir, fmt.Sprintf("run_batch_%s.log", cfg.TeamName))); err != nil {
		logger.WarnCF("cli", "failed to enable file logging", map[string]any{"error": err.Error()})
	}

	profiles, err := config.LoadAgentProfiles(cfg.AgentConfigPaths)
	if err != nil {
		return err
	}

	defaultSandbox := cfg.Sandbox.Spec("")
	instances, err := batch.LoadInstances(cfg.Instances, defaultSandbox)
	if err != nil {
		return err
	}

	bus := hooks.NewBus()
	bus.Register(hooks.NewProgressHook(len(instances)))
	bus.Register(hooks.NewPatchSaverHook(cfg.OutputDir))

	problems := make([]team.ProblemStatement, 0, len(instances))
	for _, inst := range instances {
		problems = append(problems, inst.Problem)
	}

	var submissionHook *eval.ContinuousSubmissionHook
	if cfg.Evaluation.Enabled {
		submitter := eval.NewSubmitter(eval.NewSubprocessHarness(cfg.Evaluation.HarnessCommand), cfg.OutputDir)
		opts := eval.SubmissionOptions{
			CacheLevel:   cfg.Evaluation.CacheLevel,
			Clean:        cfg.Evaluation.Clean,
			ForceRebuild: cfg.Evaluation.ForceRebuild,
			MaxWorkers:   cfg.Evaluation.MaxWorkers,
			RunID:        cfg.TeamName,
			Timeout:      time.Duration(cfg.Evaluation.TimeoutSeconds) * time.Second,
			Namespace:    cfg.Evaluation.Namespace,
			ImageTag:     cfg.Evaluation.ImageTag,
		}
		interval := time.Duration(cfg.Evaluation.ContinuousSubmissionEvery) * time.Second
		submissionHook = eval.NewContinuousSubmissionHook(
			submitter, filepath.Join(cfg.OutputDir, "preds.json"), problems, opts, interval,
		)
		bus.Register(submissionHook)
	}

	agentBuilder := func(instance team.BatchInstance) ([]team.Agent, error) {
		agents := make([]team.Agent, 0, len(profiles))
		for _, profile := range profiles {
			templates := team.Templates{
				NextStepTemplate:                     profile.Templates.NextStepTemplate,
				NextStepTruncatedObservationTemplate: profile.Templates.NextStepTruncatedObservationTemplate,
				MaxObservationLength:                 profile.Templates.MaxObservationLength,
			}

			switch profile.Provider {
			case "openai":
				agents = append(agents, openaiagent.New(openaiagent.Config{
					Name:                profile.Name,
					APIKey:              profile.APIKey,
					BaseURL:             profile.BaseURL,
					Model:               profile.Model,
					SystemPrompt:        profile.SystemPrompt,
					MaxTokens:           profile.MaxTokens,
					Temperature:         profile.Temperature,
					SharingPolicy:       profile.SharingPolicyValue(),
					EnableHandoffTool:   profile.EnableHandoffTool,
					MaxConsecutiveTurns: profile.MaxConsecutiveTurns,
					MaxRequeries:        profile.MaxRequeries,
					RequestsPerMinute:   profile.RequestsPerMinute,
					Templates:           templates,
				}))
			default:
				agents = append(agents, refagent.New(refagent.Config{
					Name:                profile.Name,
					APIKey:              profile.APIKey,
					BaseURL:             profile.BaseURL,
					Model:               profile.Model,
					SystemPrompt:        profile.SystemPrompt,
					MaxTokens:           profile.MaxTokens,
					Temperature:         profile.Temperature,
					SharingPolicy:       profile.SharingPolicyValue(),
					EnableHandoffTool:   profile.EnableHandoffTool,
					MaxConsecutiveTurns: profile.MaxConsecutiveTurns,
					MaxRequeries:        profile.MaxRequeries,
					RequestsPerMinute:   profile.RequestsPerMinute,
					Templates:           templates,
				}))
			}
		}
		return agents, nil
	}

	deploymentBuilder := func(spec sandbox.Spec) (sandbox.Deployment, error) {
		return sandbox.NewContainerDeployment(spec)
	}

	runner, err := batch.New(batch.Config{
		TeamName:              cfg.TeamName,
		OutputDir:             cfg.OutputDir,
		NumWorkers:            cfg.NumWorkers,
		RedoExisting:          cfg.RedoExisting,
		RaiseExceptions:       cfg.RaiseExceptions,
		RandomDelayMultiplier: cfg.RandomDelayMultiplier,
		DefaultMaxTurns:       cfg.MaxConsecutiveTurns,
	}, agentBuilder, deploymentBuilder, bus)
	if err != nil {
		return err
	}

	runErr := runner.Run(ctx, instances)

	if submissionHook != nil {
		if _, err := submissionHook.Submit(ctx); err != nil {
			logger.ErrorCF("cli", "final evaluation submission failed", map[string]any{"error": err.Error()})
		}
	}

	return runErr
}
