// Package refagent provides a reference team.Agent backed directly by the
// Anthropic Messages API: one of many possible Agent implementations, kept
// in-tree so the orchestrator has a concrete, runnable collaborator instead
// of only an interface.
package refagent

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/sandbox"
	"github.com/conclave-dev/conclave/pkg/team"
)

const defaultBaseURL = "https://api.anthropic.com"

// Config builds one Agent.
type Config struct {
	Name         string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64

	SharingPolicy       team.SharingPolicy
	EnableHandoffTool   bool
	MaxConsecutiveTurns int
	MaxRequeries        int
	RequestsPerMinute   float64 // 0 disables throttling

	Templates team.Templates
}

// Agent is a team.Agent that calls the Anthropic Messages API once per step,
// executing at most one tool call synchronously against the sandbox before
// returning its StepOutput.
type Agent struct {
	name                string
	client              *anthropic.Client
	model               string
	systemPrompt        string
	maxTokens           int64
	temperature         float64
	sharingPolicy       team.SharingPolicy
	enableHandoffTool   bool
	maxConsecutiveTurns int
	maxRequeriesConfig  int
	templates           team.Templates
	limiter             *rate.Limiter

	mu       sync.Mutex
	history  []team.Message
	runtime  sandbox.RuntimeClient
	problem  team.ProblemStatement
	requeries int // currently effective max requeries, set by the scheduler
	lastRetries int
	modelStats map[string]any
}

// New builds an Agent from cfg.
func New(cfg Config) *Agent {
	baseURL := normalizeBaseURL(cfg.BaseURL)
	client := anthropic.NewClient(
		option.WithAuthToken(cfg.APIKey),
		option.WithBaseURL(baseURL),
	)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}

	return &Agent{
		name:                cfg.Name,
		client:              &client,
		model:               cfg.Model,
		systemPrompt:        cfg.SystemPrompt,
		maxTokens:           maxTokens,
		temperature:         cfg.Temperature,
		sharingPolicy:       cfg.SharingPolicy,
		enableHandoffTool:   cfg.EnableHandoffTool,
		maxConsecutiveTurns: cfg.MaxConsecutiveTurns,
		maxRequeriesConfig:  cfg.MaxRequeries,
		templates:           cfg.Templates,
		limiter:             limiter,
		requeries:           cfg.MaxRequeries,
		modelStats:          map[string]any{},
	}
}

func (a *Agent) Name() string { return a.name }

// Setup records the sandbox runtime and seeds history with the system
// prompt and the problem statement.
func (a *Agent) Setup(ctx context.Context, runtime sandbox.RuntimeClient, problem team.ProblemStatement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.runtime = runtime
	a.problem = problem
	a.history = nil

	if a.systemPrompt != "" {
		a.history = append(a.history, team.Message{Role: team.RoleSystem, Content: a.systemPrompt, Agent: a.name, Type: team.MessageSystem})
	}
	a.history = append(a.history, team.Message{Role: team.RoleUser, Content: problem.Payload, Agent: a.name, Type: team.MessageSystem})
	return nil
}

func (a *Agent) History() []team.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]team.Message(nil), a.history...)
}

func (a *Agent) AppendHistory(m team.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
}

// AddStepToHistory records a peer's (already view-rewritten) step as one
// observation-tagged message, per the propagator's broadcast convention.
func (a *Agent) AddStepToHistory(step team.StepOutput, sourceName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, team.Message{
		Role:    team.RoleUser,
		Content: step.Output,
		Agent:   sourceName,
		Type:    team.MessageObservation,
	})
}

func (a *Agent) Templates() team.Templates { return a.templates }

func (a *Agent) FormatDict(state map[string]any) map[string]any {
	dict := make(map[string]any, len(state)+1)
	for k, v := range state {
		dict[k] = v
	}
	dict["agent_name"] = a.name
	return dict
}

func (a *Agent) SharingPolicy() team.SharingPolicy { return a.sharingPolicy }
func (a *Agent) EnableHandoffTool() bool           { return a.enableHandoffTool }
func (a *Agent) MaxConsecutiveTurns() int          { return a.maxConsecutiveTurns }
func (a *Agent) MaxRequeriesConfigured() int       { return a.maxRequeriesConfig }

func (a *Agent) SetMaxRequeries(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requeries = n
}

func (a *Agent) CurrentStepRetries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRetries
}

func (a *Agent) ModelStats() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]any, len(a.modelStats))
	for k, v := range a.modelStats {
		out[k] = v
	}
	return out
}

// Step calls the model once, executes at most one resulting tool call
// against the sandbox, and returns the normalized StepOutput. Transient
// call failures are retried up to the currently effective max requeries
// (set by the scheduler via SetMaxRequeries).
func (a *Agent) Step(ctx context.Context) (team.StepOutput, error) {
	a.mu.Lock()
	maxRetries := a.requeries
	historySnapshot := append([]team.Message(nil), a.history...)
	runtime := a.runtime
	a.mu.Unlock()

	var (
		resp    *anthropic.Message
		lastErr error
		retries int
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			retries++
		}
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return team.StepOutput{}, err
			}
		}
		resp, lastErr = a.call(ctx, historySnapshot)
		if lastErr == nil {
			break
		}
		logger.WarnCF("refagent", "model call failed, retrying", map[string]any{
			"agent": a.name, "attempt": attempt, "error": lastErr.Error(),
		})
	}

	a.mu.Lock()
	a.lastRetries = retries
	a.mu.Unlock()

	if lastErr != nil {
		return team.StepOutput{}, fmt.Errorf("refagent %q: %w", a.name, lastErr)
	}

	step, assistantMsg := parseResponse(a.name, resp)
	a.recordUsage(resp)

	a.mu.Lock()
	a.history = append(a.history, assistantMsg)
	a.mu.Unlock()

	if len(step.ToolCalls) == 0 {
		return step, nil
	}

	// Exactly one tool call is executed per step; additional tool_use
	// blocks in the same response are left unexecuted and reported as-is.
	call := step.ToolCalls[0]
	switch {
	case isHandoff(call.Name) && a.enableHandoffTool:
		// Handoff never touches the sandbox; the scheduler detects it from
		// step.ToolCalls directly.
	case isSubmit(call.Name):
		step.Done = true
		step.ExitStatus = "submitted"
		step.Submission = submissionPatch(call.Arguments)
	default:
		result, err := runtime.Exec(ctx, sandbox.ExecRequest{Command: toolCommand(call)})
		if err != nil {
			return team.StepOutput{}, &team.AgentStepError{Agent: a.name, Err: err}
		}
		step.Observation = formatExecResult(result)
		a.mu.Lock()
		a.history = append(a.history, team.Message{
			Role: team.RoleUser, Content: step.Observation, Agent: a.name, Type: team.MessageObservation,
			ToolCallIDs: step.ToolCallIDs,
		})
		a.mu.Unlock()
	}

	return step, nil
}

func (a *Agent) recordUsage(resp *anthropic.Message) {
	if resp == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	input, _ := a.modelStats["input_tokens"].(int64)
	output, _ := a.modelStats["output_tokens"].(int64)
	a.modelStats["input_tokens"] = input + int64(resp.Usage.InputTokens)
	a.modelStats["output_tokens"] = output + int64(resp.Usage.OutputTokens)
}

func normalizeBaseURL(apiBase string) string {
	if apiBase == "" {
		return defaultBaseURL
	}
	return apiBase
}
