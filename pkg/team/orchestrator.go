package team

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/sandbox"
)

// Team is the record of spec.md §3: an ordered agent roster, its scheduler
// state, the append-only shared trajectory, and run-level info.
type Team struct {
	Name       string
	Agents     []Agent
	Scheduler  *Scheduler
	StepCount  int
	Trajectory []StepOutput
	Info       TeamInfo

	hook       Hook
	propagator *Propagator
}

// NewTeam builds a Team, enforcing spec.md §3's "agent names unique within a
// team" invariant as a ConfigurationError.
func NewTeam(name string, agents []Agent, defaultMaxTurns int, hook Hook) (*Team, error) {
	if len(agents) == 0 {
		return nil, &ConfigurationError{Msg: "team must have at least one agent"}
	}
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if seen[a.Name()] {
			return nil, &ConfigurationError{Msg: fmt.Sprintf("duplicate agent name %q", a.Name())}
		}
		seen[a.Name()] = true
		if m := a.MaxConsecutiveTurns(); m > 0 {
			logger.InfoCF("team", "agent overrides default max_consecutive_turns", map[string]any{
				"agent": a.Name(), "max_consecutive_turns": m,
			})
		}
	}
	if hook == nil {
		hook = NoopHook{}
	}
	return &Team{
		Name:       name,
		Agents:     agents,
		Scheduler:  NewScheduler(agents, defaultMaxTurns),
		hook:       hook,
		propagator: &Propagator{},
	}, nil
}

// Orchestrator drives one Team through one instance: C5 of spec.md §4.4.
type Orchestrator struct {
	Team           *Team
	TrajectoryPath string
	problemID      string
}

func NewOrchestrator(t *Team) *Orchestrator {
	return &Orchestrator{Team: t}
}

// Setup initializes the trajectory path and calls Setup on every agent with
// the same sandbox runtime and problem statement (spec.md §4.4).
func (o *Orchestrator) Setup(ctx context.Context, runtime sandbox.RuntimeClient, problem ProblemStatement, outputDir string) error {
	o.problemID = problem.ID
	o.TrajectoryPath = filepath.Join(outputDir, fmt.Sprintf("%s_%s.traj.json", problem.ID, o.Team.Name))

	for _, a := range o.Team.Agents {
		if err := a.Setup(ctx, runtime, problem); err != nil {
			return &DeploymentError{Msg: fmt.Sprintf("agent %q setup: %v", a.Name(), err)}
		}
	}
	return nil
}

// Step runs exactly one scheduler→agent.step→propagator→trajectory cycle
// (spec.md §4.4's eleven-step procedure).
func (o *Orchestrator) Step(ctx context.Context) (StepOutput, error) {
	t := o.Team
	a := t.Scheduler.NextAgent()

	effective := t.Scheduler.EffectiveMaxRequeries(a)
	previous := a.MaxRequeriesConfigured()
	a.SetMaxRequeries(effective)
	defer a.SetMaxRequeries(previous)

	t.StepCount++

	step, err := a.Step(ctx)
	if err != nil {
		return StepOutput{}, &AgentStepError{Agent: a.Name(), Err: err}
	}

	retries := a.CurrentStepRetries()
	t.StepCount += retries
	t.Scheduler.SignalRetry(a, retries)

	handoff, message := DetectHandoff(step, a.EnableHandoffTool())
	if handoff {
		t.Scheduler.SignalHandoff(a)
		logger.InfoCF("team", "handoff requested", map[string]any{
			"agent": a.Name(), "message": message,
		})
	}

	peers := make([]Agent, 0, len(t.Agents)-1)
	for _, p := range t.Agents {
		if p.Name() != a.Name() {
			peers = append(peers, p)
		}
	}
	t.propagator.Propagate(a, step, handoff, peers)

	t.Trajectory = append(t.Trajectory, step)

	if step.Submission != "" {
		t.Info.Submission = step.Submission
	}
	if step.ExitStatus != "" {
		t.Info.ExitStatus = step.ExitStatus
	}
	if stats := a.ModelStats(); stats != nil {
		t.Info.ModelStats = stats
	}

	t.hook.OnStepDone(step, t.Info)

	return step, nil
}

// Run executes Setup then loops Step until a step returns Done, saving the
// trajectory after every iteration (testable property 7, durability).
// Run never swallows a step error: it saves the trajectory and re-raises
// (spec.md §7's propagation policy).
func (o *Orchestrator) Run(ctx context.Context, runtime sandbox.RuntimeClient, problem ProblemStatement, outputDir string) (*RunResult, error) {
	if err := o.Setup(ctx, runtime, problem, outputDir); err != nil {
		return nil, err
	}

	o.Team.hook.OnRunStart()

	for {
		step, err := o.Step(ctx)
		if err != nil {
			if saveErr := o.saveTrajectory(); saveErr != nil {
				logger.ErrorCF("team", "failed to save trajectory after step error", map[string]any{
					"error": saveErr.Error(),
				})
			}
			o.Team.hook.OnRunDone(o.Team.Trajectory, o.Team.Info)
			return nil, err
		}

		if err := o.saveTrajectory(); err != nil {
			o.Team.hook.OnRunDone(o.Team.Trajectory, o.Team.Info)
			return nil, fmt.Errorf("team: save trajectory: %w", err)
		}

		if step.Done {
			break
		}
	}

	o.Team.hook.OnRunDone(o.Team.Trajectory, o.Team.Info)
	return &RunResult{Trajectory: o.Team.Trajectory, Info: o.Team.Info}, nil
}

// saveTrajectory writes the team trajectory via a temp-file-plus-rename so a
// concurrent reader never observes a partially-written file, mirroring the
// teacher's registry rename-on-success convention.
func (o *Orchestrator) saveTrajectory() error {
	if o.TrajectoryPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(o.TrajectoryPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(o.Team.Trajectory, "", "  ")
	if err != nil {
		return err
	}
	tmp := o.TrajectoryPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, o.TrajectoryPath)
}
