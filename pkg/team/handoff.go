package team

import (
	"encoding/json"
	"strings"

	"github.com/conclave-dev/conclave/pkg/logger"
)

// SpecialToolPrefix is the legacy in-band signaling envelope (spec.md §4.5,
// §9): an agent lacking a real tool channel smuggles a tool call through
// StepOutput.Action by prefixing it with this literal string followed by a
// JSON object. The prefix must stay bit-exact for compatibility.
const SpecialToolPrefix = "__SPECIAL_TOOL__"

type specialToolEnvelope struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// DetectHandoff reports whether step represents a handoff request, per
// spec.md §4.5's two short-circuited patterns, gated by enableHandoffTool.
// Parse failures are logged at warn and treated as non-handoff, never
// returned as an error.
func DetectHandoff(step StepOutput, enableHandoffTool bool) (handoff bool, message string) {
	if !enableHandoffTool {
		return false, ""
	}

	if strings.HasPrefix(step.Action, SpecialToolPrefix) {
		rest := strings.TrimPrefix(step.Action, SpecialToolPrefix)
		var env specialToolEnvelope
		if err := json.Unmarshal([]byte(rest), &env); err != nil {
			logger.WarnCF("team", "failed to parse special-tool envelope", map[string]any{
				"error": (&HandoffParseError{Err: err}).Error(),
			})
		} else if strings.EqualFold(env.Function.Name, handoffToolName) {
			return true, extractMessageFromRaw(env.Function.Arguments)
		}
	}

	for _, tc := range step.ToolCalls {
		if strings.EqualFold(tc.Name, handoffToolName) {
			return true, extractMessageFromArguments(tc.Arguments)
		}
	}

	return false, ""
}

// extractMessageFromRaw pulls the optional "message" field out of a
// handoff tool call's JSON arguments.
func extractMessageFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var args struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return ""
	}
	return args.Message
}

// extractMessageFromArguments handles ToolCall.Arguments in either its
// string (raw JSON) or already-decoded map shape.
func extractMessageFromArguments(arguments any) string {
	switch v := arguments.(type) {
	case string:
		return extractMessageFromRaw(json.RawMessage(v))
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return ""
}
