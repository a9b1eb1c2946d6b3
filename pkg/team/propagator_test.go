package team

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newPeerAgent(name string) *mockAgent {
	return &mockAgent{
		name: name,
		templates: Templates{
			NextStepTemplate:                     "{{.observation}}",
			NextStepTruncatedObservationTemplate: "{{.observation}}",
			MaxObservationLength:                 10,
		},
	}
}

// S3: tool-result-only share.
func TestPropagatorToolResultsOnlyShare(t *testing.T) {
	a := newPeerAgent("A")
	a.sharing = SharingToolResultsOnly
	b := newPeerAgent("B")

	step := StepOutput{
		Action:      "ls",
		ToolCalls:   []ToolCall{{Name: "bash"}},
		ToolCallIDs: []string{"t1"},
		Observation: "file.txt",
	}

	(&Propagator{}).Propagate(a, step, false, []Agent{b})

	require.Len(t, b.hist, 2)
	require.Equal(t, "driver used tool: ls", b.hist[0].Content)
	require.Equal(t, MessageAction, b.hist[0].Type)
	require.Nil(t, b.hist[0].ToolCalls, "structured tool_calls must not appear on the stand-in message")
	require.Equal(t, "file.txt", b.hist[1].Content)
	require.Equal(t, MessageObservation, b.hist[1].Type)
}

// S4: observation truncation.
func TestPropagatorObservationTruncation(t *testing.T) {
	a := newPeerAgent("A")
	a.sharing = SharingToolResultsOnly
	b := newPeerAgent("B")
	b.templates.MaxObservationLength = 10

	step := StepOutput{
		Action:      "cat",
		ToolCalls:   []ToolCall{{Name: "bash"}},
		ToolCallIDs: []string{"t1"},
		Observation: "0123456789ABCDEF",
	}

	(&Propagator{}).Propagate(a, step, false, []Agent{b})

	require.Len(t, b.hist, 2)
	require.Equal(t, "0123456789", b.hist[1].Content)

	content, elided := renderObservation(b, step)
	require.Equal(t, "0123456789", content)
	require.Equal(t, 6, elided)
}

// S5: thought-only (not-using-tools) peer share.
func TestPropagatorThoughtOnlyShare(t *testing.T) {
	a := newPeerAgent("A")
	a.sharing = SharingThoughtOnly
	b := newPeerAgent("B")

	step := StepOutput{Thought: "planning"}
	(&Propagator{}).Propagate(a, step, false, []Agent{b})

	require.Len(t, b.hist, 1)
	msg := b.hist[0]
	require.Equal(t, "planning", msg.Content)
	require.Equal(t, MessageNonToolThought, msg.Type)
	require.Nil(t, msg.ToolCalls)
}

// Invariant 5: no-tool agent never produces tool_calls/tool_call_ids on peers.
func TestPropagatorNoToolAgentNeverLeaksToolFields(t *testing.T) {
	a := newPeerAgent("A")
	a.sharing = SharingThoughtOnly
	b := newPeerAgent("B")

	step := StepOutput{Thought: "x", ToolCalls: []ToolCall{{Name: "bash"}}, ToolCallIDs: []string{"t1"}}
	(&Propagator{}).Propagate(a, step, false, []Agent{b})

	require.Len(t, b.hist, 1)
	require.Nil(t, b.hist[0].ToolCalls)
	require.Nil(t, b.hist[0].ToolCallIDs)
}

// Invariant 3: broadcast exclusion.
func TestPropagatorBroadcastExclusion(t *testing.T) {
	a := newPeerAgent("A")
	peers := []Agent{a} // src accidentally included as its own peer

	step := StepOutput{Thought: "x"}
	(&Propagator{}).Propagate(a, step, false, peers)

	require.Empty(t, a.hist, "an agent must never receive its own broadcast")
}

// Invariant 4: source immutability.
func TestPropagatorSourceImmutability(t *testing.T) {
	a := newPeerAgent("A")
	b := newPeerAgent("B")
	step := StepOutput{Thought: "hello", Output: "original"}

	(&Propagator{}).Propagate(a, step, false, []Agent{b})

	require.Equal(t, "original", step.Output, "Propagate must not mutate the caller's step value")
	require.Empty(t, a.hist)
}

// Full-context share on handoff regardless of sharing policy (design note).
func TestPropagatorHandoffAlwaysFullShare(t *testing.T) {
	a := newPeerAgent("A")
	a.sharing = SharingToolResultsOnly
	b := newPeerAgent("B")

	step := StepOutput{Thought: "yielding", Observation: ""}
	(&Propagator{}).Propagate(a, step, true, []Agent{b})

	require.Len(t, b.hist, 1)
	require.Contains(t, b.hist[0].Content, "[A]: yielding")
}
