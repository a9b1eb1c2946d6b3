package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/team"
)

// runInstance builds and runs one instance end to end per spec.md §4.6's
// run_instance: output dir, cloned agents, Team, sandbox start, team.run,
// guaranteed sandbox close, prediction save.
func (r *Runner) runInstance(ctx context.Context, index int, instance team.BatchInstance) team.InstanceResult {
	problemID := instance.Problem.ID
	instanceDir := filepath.Join(r.Config.OutputDir, problemID)

	result := team.InstanceResult{ProblemID: problemID, TeamName: r.Config.TeamName}

	agents, err := r.Agents(instance)
	if err != nil {
		result.Err = &team.ConfigurationError{Msg: fmt.Sprintf("build agents for %s: %v", problemID, err)}
		return result
	}

	t, err := team.NewTeam(r.Config.TeamName, agents, r.Config.DefaultMaxTurns, r.Hook)
	if err != nil {
		result.Err = err
		return result
	}

	if err := writeReplayConfig(instanceDir, problemID, instance); err != nil {
		logger.WarnCF("batch", "failed to write replay config sidecar", map[string]any{
			"problem_id": problemID, "error": err.Error(),
		})
	}

	deployment, err := r.Deployment(instance.Sandbox)
	if err != nil {
		result.Err = &team.DeploymentError{Msg: fmt.Sprintf("build deployment for %s: %v", problemID, err)}
		return result
	}

	if err := deployment.Start(ctx); err != nil {
		result.Err = &team.DeploymentError{Msg: fmt.Sprintf("start deployment for %s: %v", problemID, err)}
		return result
	}
	// Guaranteed release: the sandbox is closed on every exit path, success,
	// exception, or handoff loop, exactly once (testable property 8).
	defer func() {
		if err := deployment.Stop(context.Background()); err != nil {
			logger.WarnCF("batch", "failed to stop deployment", map[string]any{
				"problem_id": problemID, "error": err.Error(),
			})
		}
	}()

	r.Hook.OnInstanceStart(index, instance.Problem)

	orch := team.NewOrchestrator(t)
	runResult, err := orch.Run(ctx, deployment.Runtime(), instance.Problem, instanceDir)
	if err != nil {
		result.Err = err
		result.ExitStatus = "error"
		if stepErr, ok := asAgentStepError(err); ok {
			result.ExitStatus = stepErr.Agent + "_step_error"
		}
		if team.IsBreakLoop(err) {
			result.ExitStatus = "cost_limit"
		}
		return result
	}

	result.Submission = runResult.Info.Submission
	result.ExitStatus = runResult.Info.ExitStatus
	if result.ExitStatus == "" {
		result.ExitStatus = "submitted"
	}

	if err := r.predictions.Merge(Prediction{
		InstanceID:      problemID,
		ModelPatch:      result.Submission,
		ModelNameOrPath: r.Config.TeamName,
	}); err != nil {
		logger.ErrorCF("batch", "failed to merge prediction", map[string]any{
			"problem_id": problemID, "error": err.Error(),
		})
	}

	return result
}

func asAgentStepError(err error) (*team.AgentStepError, bool) {
	stepErr, ok := err.(*team.AgentStepError)
	return stepErr, ok
}
