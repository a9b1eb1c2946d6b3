// Package batch implements the C6 Batch Runner: a bounded worker pool that
// runs the team orchestrator once per problem instance in parallel, owns
// per-instance sandbox lifecycle, and merges results across instances.
package batch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/sandbox"
	"github.com/conclave-dev/conclave/pkg/team"
)

// AgentBuilder constructs a fresh, deep-cloned-from-template agent roster
// for one instance. It must never hand back agents shared across instances
// (spec.md §3's Team lifecycle: "each Agent inside is deep-cloned from
// template configuration").
type AgentBuilder func(instance team.BatchInstance) ([]team.Agent, error)

// DeploymentBuilder constructs the sandbox deployment for one instance.
type DeploymentBuilder func(spec sandbox.Spec) (sandbox.Deployment, error)

// Config is the batch-level configuration of spec.md §6.3's CLI surface.
type Config struct {
	TeamName              string
	OutputDir             string
	NumWorkers            int
	RedoExisting          bool
	RaiseExceptions       bool
	RandomDelayMultiplier float64
	DefaultMaxTurns       int
}

// Runner is the C6 Batch Runner.
type Runner struct {
	Config     Config
	Agents     AgentBuilder
	Deployment DeploymentBuilder
	Hook       team.Hook

	predictions *PredictionStore
	exitStatus  *ExitStatusWriter
	breakLoop   atomic.Bool
	breakReason atomic.Pointer[string]
}

// New builds a Runner. Both file-backed outputs (preds.json and the exit
// status YAML) are rooted under cfg.OutputDir.
func New(cfg Config, agents AgentBuilder, deployment DeploymentBuilder, hook team.Hook) (*Runner, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if hook == nil {
		hook = team.NoopHook{}
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, &team.ConfigurationError{Msg: fmt.Sprintf("create output dir: %v", err)}
	}

	store, err := NewPredictionStore(filepath.Join(cfg.OutputDir, "preds.json"))
	if err != nil {
		return nil, &team.ConfigurationError{Msg: fmt.Sprintf("load predictions: %v", err)}
	}

	return &Runner{
		Config:      cfg,
		Agents:      agents,
		Deployment:  deployment,
		Hook:        hook,
		predictions: store,
		exitStatus:  NewExitStatusWriter(filepath.Join(cfg.OutputDir, cfg.TeamName+"_exit_statuses.yaml")),
	}, nil
}

// Run fans instances out across Config.NumWorkers parallel workers. It
// returns the first in-flight error only if cfg.RaiseExceptions is set or the
// error is team.CostLimitExceeded; otherwise per-instance errors are recorded
// and the batch continues (spec.md §7's propagation policy).
func (r *Runner) Run(ctx context.Context, instances []team.BatchInstance) error {
	defer r.exitStatus.Close()

	r.Hook.OnInit()

	sem := semaphore.NewWeighted(int64(r.Config.NumWorkers))
	g, gctx := errgroup.WithContext(ctx)

	for i, instance := range instances {
		i, instance := i, instance

		if r.breakLoop.Load() {
			logger.InfoCF("batch", "cost limit reached, halting new instance scheduling", map[string]any{
				"remaining_instance": instance.Problem.ID,
			})
			break
		}

		if !r.Config.RedoExisting && r.predictions.Has(instance.Problem.ID) {
			logger.InfoCF("batch", "skipping instance with existing prediction", map[string]any{
				"problem_id": instance.Problem.ID,
			})
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		if r.breakLoop.Load() {
			// A just-finished worker tripped the breaker while this call was
			// blocked waiting for a slot; don't start new work on top of it.
			sem.Release(1)
			break
		}

		g.Go(func() error {
			defer sem.Release(1)

			delay := startupDelay(r.Config.NumWorkers, r.Config.RandomDelayMultiplier)
			select {
			case <-time.After(delay):
			case <-gctx.Done():
				return gctx.Err()
			}

			// The instance runs on the caller's ctx, not gctx: a cost-limit
			// break cancels gctx, and in-flight instances must still finish.
			result := r.runInstance(ctx, i, instance)
			r.Hook.OnInstanceCompleted(result)

			r.exitStatus.Record(ExitStatusEntry{
				ProblemID:  result.ProblemID,
				ExitStatus: result.ExitStatus,
				Error:      errString(result.Err),
			})

			if result.Err != nil {
				if team.IsBreakLoop(result.Err) {
					reason := result.Err.Error()
					r.breakLoop.Store(true)
					r.breakReason.Store(&reason)
					return result.Err
				}
				if r.Config.RaiseExceptions {
					return result.Err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !r.Config.RaiseExceptions && !team.IsBreakLoop(err) {
		return nil
	}
	return err
}

// BreakReason returns the reason the last CostLimitExceeded halted
// scheduling, or "" if the batch never broke.
func (r *Runner) BreakReason() string {
	if p := r.breakReason.Load(); p != nil {
		return *p
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// startupDelay desynchronizes container pulls and other shared-bottleneck
// operations: uniform in [0, multiplier*numWorkers) seconds.
func startupDelay(numWorkers int, multiplier float64) time.Duration {
	if multiplier <= 0 {
		return 0
	}
	maxSeconds := multiplier * float64(numWorkers)
	return time.Duration(rand.Float64() * maxSeconds * float64(time.Second))
}
