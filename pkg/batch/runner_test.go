package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conclave-dev/conclave/pkg/sandbox"
	"github.com/conclave-dev/conclave/pkg/team"
)

// fakeDeployment is a no-op sandbox.Deployment for batch-level tests that
// never need a real container.
type fakeDeployment struct{}

func (fakeDeployment) Start(context.Context) error { return nil }
func (fakeDeployment) Stop(context.Context) error  { return nil }
func (fakeDeployment) IsAlive(context.Context, time.Duration) (*sandbox.LivenessResult, error) {
	return &sandbox.LivenessResult{OK: true}, nil
}
func (fakeDeployment) Runtime() sandbox.RuntimeClient { return fakeRuntime{} }

type fakeRuntime struct{}

func (fakeRuntime) Exec(context.Context, sandbox.ExecRequest) (sandbox.ExecResult, error) {
	return sandbox.ExecResult{}, nil
}

// singleStepAgent finishes the instance on its very first step, emitting a
// fixed submission.
type singleStepAgent struct {
	name       string
	submission string
	failErr    error
}

func (a *singleStepAgent) Name() string { return a.name }
func (a *singleStepAgent) Setup(context.Context, sandbox.RuntimeClient, team.ProblemStatement) error {
	return nil
}
func (a *singleStepAgent) Step(context.Context) (team.StepOutput, error) {
	if a.failErr != nil {
		return team.StepOutput{}, a.failErr
	}
	return team.StepOutput{Done: true, Submission: a.submission, ExitStatus: "submitted"}, nil
}
func (a *singleStepAgent) CurrentStepRetries() int                  { return 0 }
func (a *singleStepAgent) History() []team.Message                  { return nil }
func (a *singleStepAgent) AppendHistory(team.Message)                {}
func (a *singleStepAgent) AddStepToHistory(team.StepOutput, string) {}
func (a *singleStepAgent) Templates() team.Templates                { return team.Templates{} }
func (a *singleStepAgent) FormatDict(map[string]any) map[string]any { return map[string]any{} }
func (a *singleStepAgent) SharingPolicy() team.SharingPolicy         { return team.SharingFull }
func (a *singleStepAgent) EnableHandoffTool() bool                   { return false }
func (a *singleStepAgent) MaxConsecutiveTurns() int                  { return 0 }
func (a *singleStepAgent) MaxRequeriesConfigured() int               { return 0 }
func (a *singleStepAgent) SetMaxRequeries(int)                       {}
func (a *singleStepAgent) ModelStats() map[string]any                { return nil }

func TestRunnerMergesPredictionsForEachInstance(t *testing.T) {
	cfg := Config{TeamName: "solo", OutputDir: t.TempDir(), NumWorkers: 2, DefaultMaxTurns: 4}

	agents := func(instance team.BatchInstance) ([]team.Agent, error) {
		return []team.Agent{&singleStepAgent{name: "driver", submission: "patch-for-" + instance.Problem.ID}}, nil
	}
	deployment := func(sandbox.Spec) (sandbox.Deployment, error) { return fakeDeployment{}, nil }

	r, err := New(cfg, agents, deployment, nil)
	require.NoError(t, err)

	instances := []team.BatchInstance{
		{Problem: team.ProblemStatement{ID: "inst-1"}},
		{Problem: team.ProblemStatement{ID: "inst-2"}},
	}

	require.NoError(t, r.Run(context.Background(), instances))

	snap := r.predictions.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "patch-for-inst-1", snap["inst-1"].ModelPatch)
	require.Equal(t, "patch-for-inst-2", snap["inst-2"].ModelPatch)
}

func TestRunnerSkipsInstancesWithExistingPredictionsUnlessRedoExisting(t *testing.T) {
	cfg := Config{TeamName: "solo", OutputDir: t.TempDir(), NumWorkers: 1, DefaultMaxTurns: 4}

	var calls atomic.Int32
	agents := func(instance team.BatchInstance) ([]team.Agent, error) {
		calls.Add(1)
		return []team.Agent{&singleStepAgent{name: "driver", submission: "patch"}}, nil
	}
	deployment := func(sandbox.Spec) (sandbox.Deployment, error) { return fakeDeployment{}, nil }

	r, err := New(cfg, agents, deployment, nil)
	require.NoError(t, err)
	require.NoError(t, r.predictions.Merge(Prediction{InstanceID: "inst-1", ModelPatch: "existing"}))

	instances := []team.BatchInstance{{Problem: team.ProblemStatement{ID: "inst-1"}}}
	require.NoError(t, r.Run(context.Background(), instances))

	require.Equal(t, int32(0), calls.Load(), "existing prediction must be skipped, not rebuilt")
}

func TestRunnerHaltsNewSchedulingOnCostLimitExceeded(t *testing.T) {
	cfg := Config{TeamName: "solo", OutputDir: t.TempDir(), NumWorkers: 1, DefaultMaxTurns: 4}

	agents := func(instance team.BatchInstance) ([]team.Agent, error) {
		if instance.Problem.ID == "inst-1" {
			return []team.Agent{&singleStepAgent{name: "driver", failErr: &team.CostLimitExceeded{Reason: "budget exhausted"}}}, nil
		}
		return []team.Agent{&singleStepAgent{name: "driver", submission: "patch"}}, nil
	}
	deployment := func(sandbox.Spec) (sandbox.Deployment, error) { return fakeDeployment{}, nil }

	r, err := New(cfg, agents, deployment, nil)
	require.NoError(t, err)

	instances := []team.BatchInstance{
		{Problem: team.ProblemStatement{ID: "inst-1"}},
		{Problem: team.ProblemStatement{ID: "inst-2"}},
	}

	err = r.Run(context.Background(), instances)
	require.Error(t, err)
	require.True(t, team.IsBreakLoop(err))
	require.NotEmpty(t, r.BreakReason())

	require.False(t, r.predictions.Has("inst-2"), "no new instance should be scheduled after a cost-limit break")
}
