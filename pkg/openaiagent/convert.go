package openaiagent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/conclave-dev/conclave/pkg/sandbox"
	"github.com/conclave-dev/conclave/pkg/team"
)

const (
	handoffToolName = "handoff"
	submitToolName  = "submit"
	execToolName    = "execute"
)

func (a *Agent) call(ctx context.Context, history []team.Message) (*openai.ChatCompletion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    a.model,
		Messages: toChatMessages(history),
	}
	if a.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Opt(a.maxTokens)
	}
	if a.temperature > 0 {
		params.Temperature = openai.Opt(a.temperature)
	}
	params.Tools = a.toolDefinitions()
	params.ToolChoice.OfAuto = openai.String(string(openai.ChatCompletionToolChoiceOptionAutoAuto))

	return a.client.Chat.Completions.New(ctx, params)
}

// toChatMessages converts history into the chat completions message list,
// rendering each executed tool call's observation as a "tool" role message
// tied back to its originating call ID.
func toChatMessages(history []team.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case team.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case team.RoleUser:
			if m.Type == team.MessageObservation && len(m.ToolCallIDs) > 0 {
				for _, id := range m.ToolCallIDs {
					out = append(out, openai.ToolMessage(m.Content, id))
				}
			} else {
				out = append(out, openai.UserMessage(m.Content))
			}
		case team.RoleAssistant:
			out = append(out, buildAssistantMessage(m))
		}
	}
	return out
}

func buildAssistantMessage(m team.Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if m.Content != "" {
		assistant.Content.OfString = openai.String(m.Content)
	}
	for i, tc := range m.ToolCalls {
		id := ""
		if i < len(m.ToolCallIDs) {
			id = m.ToolCallIDs[i]
		}
		args := "{}"
		if b, err := json.Marshal(tc.Arguments); err == nil {
			args = string(b)
		}
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: id,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: args,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func parseResponse(agentName string, resp *openai.ChatCompletion) (team.StepOutput, team.Message) {
	var thought string
	var toolCalls []team.ToolCall
	var toolCallIDs []string

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		thought = choice.Message.Content
		for _, call := range choice.Message.ToolCalls {
			fn, ok := call.AsAny().(openai.ChatCompletionMessageFunctionToolCall)
			if !ok {
				continue
			}
			args := map[string]any{}
			if strings.TrimSpace(fn.Function.Arguments) != "" {
				_ = json.Unmarshal([]byte(fn.Function.Arguments), &args)
			}
			toolCalls = append(toolCalls, team.ToolCall{Name: fn.Function.Name, Arguments: args})
			toolCallIDs = append(toolCallIDs, fn.ID)
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

func (a *Agent) toolDefinitions() []openai.ChatCompletionToolUnionParam {
	tools := []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        execToolName,
			Description: openai.String("Execute a shell command inside the sandbox and return its output."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{"type": "string", "description": "shell command to run"},
				},
				"required": []string{"command"},
			},
		}),
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        submitToolName,
			Description: openai.String("Submit the final patch and end the episode."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"patch": map[string]any{"type": "string", "description": "unified diff to submit"},
				},
				"required": []string{"patch"},
			},
		}),
	}
	if a.enableHandoffTool {
		tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        handoffToolName,
			Description: openai.String("Hand off the turn to the next teammate."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string", "description": "context for the next agent"},
				},
			},
		}))
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
