package team

import (
	"errors"
	"fmt"
)

// ConfigurationError is fatal and pre-run: invalid agent YAML, no instances,
// an evaluate+redo_existing combination that cannot both hold, a human model
// paired with num_workers > 1, duplicate agent names, an empty roster.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Msg }

// DeploymentError is per-instance fatal: image pull failed, the runtime
// never became alive within the startup timeout, or the container died
// mid-run. StderrTail carries the container's captured stderr, if any.
type DeploymentError struct {
	Msg        string
	StderrTail string
}

func (e *DeploymentError) Error() string {
	if e.StderrTail == "" {
		return "deployment error: " + e.Msg
	}
	return fmt.Sprintf("deployment error: %s (stderr: %s)", e.Msg, e.StderrTail)
}

// AgentStepError wraps a model or tool failure that survived the agent's own
// retry budget. Per-instance recoverable: the batch runner records it and
// moves to the next instance.
type AgentStepError struct {
	Agent string
	Err   error
}

func (e *AgentStepError) Error() string {
	return fmt.Sprintf("agent %q step failed: %v", e.Agent, e.Err)
}
func (e *AgentStepError) Unwrap() error { return e.Err }

// CostLimitExceeded is the `_BreakLoop` sentinel: batch-fatal, it halts new
// instance scheduling while in-flight workers finish.
type CostLimitExceeded struct {
	Reason string
}

func (e *CostLimitExceeded) Error() string { return "cost limit exceeded: " + e.Reason }

// IsBreakLoop reports whether err is (or wraps) a CostLimitExceeded.
func IsBreakLoop(err error) bool {
	var cle *CostLimitExceeded
	return errors.As(err, &cle)
}

// HookError wraps a panic or error recovered from a single Hook callback.
// Logged by the Bus, never propagated to the orchestrator.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string { return fmt.Sprintf("hook %q: %v", e.Hook, e.Err) }
func (e *HookError) Unwrap() error { return e.Err }

// HandoffParseError wraps a malformed `__SPECIAL_TOOL__` envelope. Logged at
// warn and treated as a non-handoff step, never returned to the caller of
// DetectHandoff.
type HandoffParseError struct {
	Err error
}

func (e *HandoffParseError) Error() string { return fmt.Sprintf("handoff parse: %v", e.Err) }
func (e *HandoffParseError) Unwrap() error { return e.Err }
