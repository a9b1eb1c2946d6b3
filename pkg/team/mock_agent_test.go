package team

import (
	"context"

	"github.com/conclave-dev/conclave/pkg/sandbox"
)

// mockAgent is a minimal, fully scripted Agent used across scheduler,
// propagator, and orchestrator tests.
type mockAgent struct {
	name                string
	maxConsecutiveTurns int
	sharing             SharingPolicy
	enableHandoff       bool
	maxRequeries        int
	currentStepRetries  int
	templates           Templates
	modelStats          map[string]any

	hist    []Message
	stepFn  func(call int) (StepOutput, error)
	callIdx int
}

func (m *mockAgent) Name() string { return m.name }

func (m *mockAgent) Setup(ctx context.Context, rt sandbox.RuntimeClient, problem ProblemStatement) error {
	return nil
}

func (m *mockAgent) Step(ctx context.Context) (StepOutput, error) {
	out, err := m.stepFn(m.callIdx)
	m.callIdx++
	return out, err
}

func (m *mockAgent) CurrentStepRetries() int { return m.currentStepRetries }

func (m *mockAgent) History() []Message { return m.hist }

func (m *mockAgent) AppendHistory(msg Message) { m.hist = append(m.hist, msg) }

func (m *mockAgent) AddStepToHistory(step StepOutput, sourceName string) {
	m.hist = append(m.hist, Message{
		Role:        RoleAssistant,
		Content:     step.Output,
		Agent:       sourceName,
		Type:        MessageAction,
		ToolCalls:   step.ToolCalls,
		ToolCallIDs: step.ToolCallIDs,
	})
}

func (m *mockAgent) Templates() Templates { return m.templates }

func (m *mockAgent) FormatDict(state map[string]any) map[string]any {
	d := make(map[string]any, len(state))
	for k, v := range state {
		d[k] = v
	}
	return d
}

func (m *mockAgent) SharingPolicy() SharingPolicy { return m.sharing }
func (m *mockAgent) EnableHandoffTool() bool      { return m.enableHandoff }
func (m *mockAgent) MaxConsecutiveTurns() int     { return m.maxConsecutiveTurns }
func (m *mockAgent) MaxRequeriesConfigured() int  { return m.maxRequeries }
func (m *mockAgent) SetMaxRequeries(n int)        { m.maxRequeries = n }
func (m *mockAgent) ModelStats() map[string]any   { return m.modelStats }
