// Package hooks implements the C7 Hook Bus: fan-out of lifecycle events to
// registered observers (progress UI, patch saver, evaluator submitter).
package hooks

import (
	"fmt"

	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/team"
)

// Bus fans events out to every registered team.Hook in registration order.
// A panic or error from one hook is logged as a team.HookError and never
// propagated; Bus itself satisfies team.Hook.
type Bus struct {
	hooks []team.Hook
}

// NewBus returns an empty Bus. Hooks are added with Register.
func NewBus() *Bus { return &Bus{} }

// Register appends h to the fan-out list.
func (b *Bus) Register(h team.Hook) {
	b.hooks = append(b.hooks, h)
}

func (b *Bus) run(name string, fn func(h team.Hook)) {
	for _, h := range b.hooks {
		b.safeCall(name, h, fn)
	}
}

func (b *Bus) safeCall(name string, h team.Hook, fn func(h team.Hook)) {
	defer func() {
		if r := recover(); r != nil {
			err := &team.HookError{Hook: name, Err: fmt.Errorf("panic: %v", r)}
			logger.ErrorCF("hooks", "hook panicked", map[string]any{"error": err.Error()})
		}
	}()
	fn(h)
}

func (b *Bus) OnInit() { b.run("OnInit", func(h team.Hook) { h.OnInit() }) }

func (b *Bus) OnRunStart() { b.run("OnRunStart", func(h team.Hook) { h.OnRunStart() }) }

func (b *Bus) OnInstanceStart(index int, problem team.ProblemStatement) {
	b.run("OnInstanceStart", func(h team.Hook) { h.OnInstanceStart(index, problem) })
}

func (b *Bus) OnStepDone(step team.StepOutput, info team.TeamInfo) {
	b.run("OnStepDone", func(h team.Hook) { h.OnStepDone(step, info) })
}

func (b *Bus) OnInstanceCompleted(result team.InstanceResult) {
	b.run("OnInstanceCompleted", func(h team.Hook) { h.OnInstanceCompleted(result) })
}

func (b *Bus) OnRunDone(trajectory []team.StepOutput, info team.TeamInfo) {
	b.run("OnRunDone", func(h team.Hook) { h.OnRunDone(trajectory, info) })
}
