// Package team implements the turn-taking orchestrator that drives a fixed
// roster of agents through one problem instance: the Turn Scheduler (C3),
// the Context Propagator (C4), and the Team Orchestrator run loop (C5).
package team

import (
	"context"

	"github.com/conclave-dev/conclave/pkg/sandbox"
)

// MessageRole mirrors one entry of a chat-style conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageType distinguishes why a Message was appended to an agent's history.
type MessageType string

const (
	MessageAction         MessageType = "action"
	MessageObservation    MessageType = "observation"
	MessageNonToolThought MessageType = "non_tool_thought"
	MessageSystem         MessageType = "system"
)

// ToolCall is a single tool invocation request. Arguments carries either a
// JSON string or a decoded map, matching whatever shape the Agent emitted.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// handoffToolName is the reserved ToolCall.Name that never executes in the
// sandbox; it is an in-band signal to the Scheduler only.
const handoffToolName = "handoff"

// Message is one entry in an agent's conversation history.
type Message struct {
	Role        MessageRole `json:"role"`
	Content     string      `json:"content"`
	Agent       string      `json:"agent"`
	Type        MessageType `json:"message_type"`
	ToolCalls   []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallIDs []string    `json:"tool_call_ids,omitempty"`
}

// StepOutput is the one product type every agent step is normalized into.
// It is never duck-typed: callers populate the fields that apply and leave
// the rest zero.
type StepOutput struct {
	Thought     string         `json:"thought"`
	Action      string         `json:"action"`
	Output      string         `json:"output"`
	Observation string         `json:"observation"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallIDs []string       `json:"tool_call_ids,omitempty"`
	State       map[string]any `json:"state,omitempty"`
	Submission  string         `json:"submission,omitempty"`
	ExitStatus  string         `json:"exit_status,omitempty"`
	Done        bool           `json:"done"`
}

// Clone deep-copies a StepOutput so broadcast views never alias the
// original's slices or maps.
func (s StepOutput) Clone() StepOutput {
	clone := s
	if s.ToolCalls != nil {
		clone.ToolCalls = append([]ToolCall(nil), s.ToolCalls...)
	}
	if s.ToolCallIDs != nil {
		clone.ToolCallIDs = append([]string(nil), s.ToolCallIDs...)
	}
	if s.State != nil {
		clone.State = make(map[string]any, len(s.State))
		for k, v := range s.State {
			clone.State[k] = v
		}
	}
	return clone
}

// Templates carries the rendering knobs an Agent exposes to the Propagator
// for tool-result-only sharing (spec.md §4.2/§4.3).
type Templates struct {
	NextStepTemplate                     string
	NextStepTruncatedObservationTemplate string
	MaxObservationLength                 int
}

// SharingPolicy replaces the source's ad-hoc "share only tool results" /
// "not using tools" flag combination with one enum the Propagator dispatches
// on directly (spec.md §9 design note).
type SharingPolicy int

const (
	SharingFull SharingPolicy = iota
	SharingToolResultsOnly
	SharingThoughtOnly
)

// ProblemStatement is the opaque task payload consumed by agents as initial
// context, identified by a stable id.
type ProblemStatement struct {
	ID      string
	Payload string
}

// BatchInstance pairs a problem with the sandbox environment it runs in.
type BatchInstance struct {
	Problem ProblemStatement
	Sandbox sandbox.Spec
}

// Agent is the external collaborator contract of spec.md §4.2. The
// orchestrator assumes nothing about prompt assembly or model calls beyond
// this surface.
type Agent interface {
	Name() string

	Setup(ctx context.Context, runtime sandbox.RuntimeClient, problem ProblemStatement) error

	// Step may internally retry up to the currently configured
	// MaxRequeries on model errors; CurrentStepRetries reports how many
	// retries the most recent call used.
	Step(ctx context.Context) (StepOutput, error)
	CurrentStepRetries() int

	History() []Message
	AppendHistory(m Message)
	AddStepToHistory(step StepOutput, sourceName string)

	Templates() Templates
	FormatDict(state map[string]any) map[string]any

	SharingPolicy() SharingPolicy
	EnableHandoffTool() bool

	// MaxConsecutiveTurns is this agent's per-agent override of the team
	// default; zero means "use the team default".
	MaxConsecutiveTurns() int

	MaxRequeriesConfigured() int
	SetMaxRequeries(n int)

	// ModelStats reports provider usage counters to fold into
	// Team.Info.ModelStats after a step, or nil if not tracked.
	ModelStats() map[string]any
}

// TeamInfo accumulates run-level state updated after every step.
type TeamInfo struct {
	Submission string
	ExitStatus string
	ModelStats map[string]any
}

// InstanceResult is what the Batch Runner records for one completed (or
// failed) instance.
type InstanceResult struct {
	ProblemID  string
	TeamName   string
	Submission string
	ExitStatus string
	Err        error
}

// RunResult is returned by Orchestrator.Run on normal completion.
type RunResult struct {
	Trajectory []StepOutput
	Info       TeamInfo
}

// Hook is the C7 lifecycle observer surface. A single Hook value is normally
// a fan-out Bus (pkg/team/hooks.Bus); Team holds it through this interface so
// pkg/team never has to import the hooks subpackage.
type Hook interface {
	OnInit()
	OnRunStart()
	OnInstanceStart(index int, problem ProblemStatement)
	OnStepDone(step StepOutput, info TeamInfo)
	OnInstanceCompleted(result InstanceResult)
	OnRunDone(trajectory []StepOutput, info TeamInfo)
}

// NoopHook satisfies Hook with no-ops, used when the caller does not wire a
// hook bus (e.g. in scheduler/propagator unit tests).
type NoopHook struct{}

func (NoopHook) OnInit()                                       {}
func (NoopHook) OnRunStart()                                   {}
func (NoopHook) OnInstanceStart(int, ProblemStatement)         {}
func (NoopHook) OnStepDone(StepOutput, TeamInfo)                {}
func (NoopHook) OnInstanceCompleted(InstanceResult)             {}
func (NoopHook) OnRunDone([]StepOutput, TeamInfo)               {}
