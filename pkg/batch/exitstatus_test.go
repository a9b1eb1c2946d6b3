package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestExitStatusWriterPersistsAllRecordedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team_exit_statuses.yaml")
	w := NewExitStatusWriter(path)

	w.Record(ExitStatusEntry{ProblemID: "inst-1", ExitStatus: "submitted"})
	w.Record(ExitStatusEntry{ProblemID: "inst-2", ExitStatus: "error", Error: "boom"})
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []ExitStatusEntry
	require.NoError(t, yaml.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "inst-1", entries[0].ProblemID)
	require.Equal(t, "submitted", entries[0].ExitStatus)
	require.Equal(t, "inst-2", entries[1].ProblemID)
	require.Equal(t, "boom", entries[1].Error)
}

func TestExitStatusWriterAccumulatesAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team_exit_statuses.yaml")

	first := NewExitStatusWriter(path)
	first.Record(ExitStatusEntry{ProblemID: "inst-1", ExitStatus: "submitted"})
	require.NoError(t, first.Close())

	second := NewExitStatusWriter(path)
	second.Record(ExitStatusEntry{ProblemID: "inst-2", ExitStatus: "submitted"})
	require.NoError(t, second.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []ExitStatusEntry
	require.NoError(t, yaml.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
}
