package refagent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conclave-dev/conclave/pkg/sandbox"
	"github.com/conclave-dev/conclave/pkg/team"
)

func TestIsHandoffAndIsSubmitAreCaseInsensitive(t *testing.T) {
	require.True(t, isHandoff("Handoff"))
	require.True(t, isHandoff("HANDOFF"))
	require.False(t, isHandoff("submit"))

	require.True(t, isSubmit("Submit"))
	require.False(t, isSubmit("handoff"))
}

func TestSubmissionPatchExtractsPatchArgument(t *testing.T) {
	require.Equal(t, "diff --git a b", submissionPatch(map[string]any{"patch": "diff --git a b"}))
	require.Equal(t, "", submissionPatch(map[string]any{}))
	require.Equal(t, "", submissionPatch("not a map"))
}

func TestToolCommandBuildsShellInvocation(t *testing.T) {
	cmd := toolCommand(team.ToolCall{Name: "execute", Arguments: map[string]any{"command": "ls -la"}})
	require.Equal(t, []string{"sh", "-c", "ls -la"}, cmd)
}

func TestFormatExecResultCombinesStdoutAndStderr(t *testing.T) {
	require.Equal(t, "out", formatExecResult(sandbox.ExecResult{Stdout: "out"}))
	require.Equal(t, "out\nerr", formatExecResult(sandbox.ExecResult{Stdout: "out", Stderr: "err"}))
}

func TestSystemBlocksCollectsOnlySystemMessages(t *testing.T) {
	history := []team.Message{
		{Role: team.RoleSystem, Content: "sys1"},
		{Role: team.RoleUser, Content: "hi"},
		{Role: team.RoleSystem, Content: "sys2"},
	}
	blocks := systemBlocks(history)
	require.Len(t, blocks, 2)
	require.Equal(t, "sys1", blocks[0].Text)
	require.Equal(t, "sys2", blocks[1].Text)
}
