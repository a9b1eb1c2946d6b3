package refagent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/conclave-dev/conclave/pkg/sandbox"
	"github.com/conclave-dev/conclave/pkg/team"
)

const (
	handoffToolName = "handoff"
	submitToolName  = "submit"
	execToolName    = "execute"
)

// call sends one Messages.New request built from history.
func (a *Agent) call(ctx context.Context, history []team.Message) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		Messages:  toAnthropicMessages(history),
		MaxTokens: a.maxTokens,
	}
	if system := systemBlocks(history); len(system) > 0 {
		params.System = system
	}
	if a.temperature > 0 {
		params.Temperature = anthropic.Float(a.temperature)
	}
	params.Tools = a.toolDefinitions()

	return a.client.Messages.New(ctx, params)
}

func systemBlocks(history []team.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range history {
		if m.Role == team.RoleSystem {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

// toAnthropicMessages converts non-system history into the API's message
// list, merging one assistant tool_use turn with its immediately following
// tool-result observation (the API requires tool results as a single user
// message right after the tool_use turn).
func toAnthropicMessages(history []team.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for i := 0; i < len(history); i++ {
		m := history[i]
		switch m.Role {
		case team.RoleSystem:
			continue
		case team.RoleUser:
			if m.Type == team.MessageObservation && len(m.ToolCallIDs) > 0 {
				var blocks []anthropic.ContentBlockParamUnion
				for _, id := range m.ToolCallIDs {
					blocks = append(blocks, anthropic.NewToolResultBlock(id, m.Content, false))
				}
				out = append(out, anthropic.NewUserMessage(blocks...))
			} else {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case team.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				var blocks []anthropic.ContentBlockParamUnion
				if m.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(m.Content))
				}
				for i, tc := range m.ToolCalls {
					id := ""
					if i < len(m.ToolCallIDs) {
						id = m.ToolCallIDs[i]
					}
					args, _ := tc.Arguments.(map[string]any)
					if args == nil {
						args = map[string]any{}
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(id, args, tc.Name))
				}
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			} else {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	return out
}

// parseResponse normalizes one Messages.New response into a StepOutput plus
// the assistant-role Message to append to the agent's own history.
func parseResponse(agentName string, resp *anthropic.Message) (team.StepOutput, team.Message) {
	var thought string
	var toolCalls []team.ToolCall
	var toolCallIDs []string

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			thought += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(tu.Input, &args); err != nil {
				args = map[string]any{"raw": string(tu.Input)}
			}
			toolCalls = append(toolCalls, team.ToolCall{Name: tu.Name, Arguments: args})
			toolCallIDs = append(toolCallIDs, tu.ID)
		}
	}

	step := team.StepOutput{
		Thought:     thought,
		Output:      thought,
		ToolCalls:   toolCalls,
		ToolCallIDs: toolCallIDs,
	}
	if len(toolCalls) > 0 {
		step.Action = toolCalls[0].Name
	}

	msg := team.Message{
		Role:        team.RoleAssistant,
		Content:     thought,
		Agent:       agentName,
		Type:        team.MessageAction,
		ToolCalls:   toolCalls,
		ToolCallIDs: toolCallIDs,
	}
	return step, msg
}

func (a *Agent) toolDefinitions() []anthropic.ToolUnionParam {
	tools := []anthropic.ToolUnionParam{
		{OfTool: &anthropic.ToolParam{
			Name:        execToolName,
			Description: anthropic.String("Execute a shell command inside the sandbox and return its output."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"command": map[string]any{"type": "string", "description": "shell command to run"},
				},
				Required: []string{"command"},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        submitToolName,
			Description: anthropic.String("Submit the final patch and end the episode."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"patch": map[string]any{"type": "string", "description": "unified diff to submit"},
				},
				Required: []string{"patch"},
			},
		}},
	}
	if a.enableHandoffTool {
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        handoffToolName,
			Description: anthropic.String("Hand off the turn to the next teammate."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"message": map[string]any{"type": "string", "description": "context for the next agent"},
				},
			},
		}})
	}
	return tools
}

func isHandoff(name string) bool { return strings.EqualFold(name, handoffToolName) }
func isSubmit(name string) bool  { return strings.EqualFold(name, submitToolName) }

func submissionPatch(args any) string {
	m, ok := args.(map[string]any)
	if !ok {
		return ""
	}
	if patch, ok := m["patch"].(string); ok {
		return patch
	}
	return ""
}

func toolCommand(call team.ToolCall) []string {
	m, ok := call.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	cmd, _ := m["command"].(string)
	return []string{"sh", "-c", cmd}
}

func formatExecResult(result sandbox.ExecResult) string {
	out := result.Stdout
	if result.Stderr != "" {
		out += "\n" + result.Stderr
	}
	return out
}
