package team

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/conclave-dev/conclave/pkg/logger"
)

// Propagator implements C4: after src produces step, it writes exactly one
// coherent record into each peer's history per spec.md §4.3's decision
// matrix. The Propagator never mutates src.
type Propagator struct{}

// BroadcastView returns a deep copy of step with Output rewritten to carry
// attribution ("[name]: thought"), per spec.md §4.3. The original step is
// left untouched (invariant 4, source immutability).
func BroadcastView(srcName string, step StepOutput) StepOutput {
	view := step.Clone()
	view.Output = fmt.Sprintf("[%s]: %s", srcName, step.Thought)
	return view
}

// Propagate distributes src's step into every peer's history. peers must not
// include src (invariant 3, broadcast exclusion); Propagate also defends
// against a src entry slipping in by name.
func (p *Propagator) Propagate(src Agent, step StepOutput, handoff bool, peers []Agent) {
	view := BroadcastView(src.Name(), step)

	for _, dst := range peers {
		if dst.Name() == src.Name() {
			continue
		}

		switch {
		case handoff:
			// Source.md §9's open question: full share on handoff
			// regardless of the source's sharing policy.
			dst.AddStepToHistory(view, src.Name())

		case src.SharingPolicy() == SharingToolResultsOnly:
			propagateToolResultsOnly(src, dst, step)

		case src.SharingPolicy() == SharingThoughtOnly:
			dst.AppendHistory(Message{
				Role:    RoleAssistant,
				Content: step.Thought,
				Agent:   src.Name(),
				Type:    MessageNonToolThought,
			})

		default:
			// SharingFull: full-context share. ThoughtOnly sources never
			// reach here (handled above), so no defensive stripping of
			// tool_calls/tool_call_ids is needed.
			dst.AddStepToHistory(view, src.Name())
		}
	}
}

// propagateToolResultsOnly implements spec.md §4.3's tool-result-only share:
// the receiver sees the environment's response, never the raw tool-call
// request.
func propagateToolResultsOnly(src, dst Agent, step StepOutput) {
	if step.Observation == "" {
		return
	}

	content, _ := renderObservation(dst, step)

	if len(step.ToolCalls) > 0 && len(step.ToolCallIDs) > 0 {
		dst.AppendHistory(Message{
			Role:    RoleAssistant,
			Content: "driver used tool: " + step.Action,
			Agent:   src.Name(),
			Type:    MessageAction,
		})
		dst.AppendHistory(Message{
			Role:    RoleUser,
			Content: content,
			Agent:   src.Name(),
			Type:    MessageObservation,
		})
		return
	}

	dst.AppendHistory(Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("[%s]: %s", dst.Name(), content),
		Agent:   dst.Name(),
		Type:    MessageObservation,
	})
}

// renderObservation renders step.Observation through dst's next-step
// template, truncating and switching to the truncated-observation template
// if the observation exceeds dst's MaxObservationLength (spec.md §4.3,
// testable property 6). Returns the rendered content and elided_chars.
func renderObservation(dst Agent, step StepOutput) (string, int) {
	tmpl := dst.Templates()
	obs := step.Observation
	elided := 0
	tplStr := tmpl.NextStepTemplate

	if tmpl.MaxObservationLength > 0 && len(obs) > tmpl.MaxObservationLength {
		elided = len(obs) - tmpl.MaxObservationLength
		obs = obs[:tmpl.MaxObservationLength]
		tplStr = tmpl.NextStepTruncatedObservationTemplate
	}

	data := dst.FormatDict(step.State)
	if data == nil {
		data = make(map[string]any, 2)
	}
	data["observation"] = obs
	data["elided_chars"] = elided

	rendered, err := renderTemplate(tplStr, data)
	if err != nil {
		logger.WarnCF("team", "observation template render failed, using raw observation", map[string]any{
			"error": err.Error(),
		})
		return obs, elided
	}
	return rendered, elided
}

func renderTemplate(tplStr string, data map[string]any) (string, error) {
	if tplStr == "" {
		if s, ok := data["observation"].(string); ok {
			return s, nil
		}
		return "", nil
	}
	t, err := template.New("observation").Parse(tplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
