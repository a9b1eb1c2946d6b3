package eval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conclave-dev/conclave/pkg/team"
)

// fakeHarness writes canned report.json files into reportDir instead of
// shelling out to a real evaluation process.
type fakeHarness struct {
	reports map[string]InstanceReport
}

func (f *fakeHarness) RunInstances(ctx context.Context, predictionsPath string, instanceIDs []string, opts SubmissionOptions, reportDir string) error {
	for _, id := range instanceIDs {
		report, ok := f.reports[id]
		if !ok {
			continue
		}
		dir := filepath.Join(reportDir, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		raw, err := json.Marshal(report)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, "report.json"), raw, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writePredsFile(t *testing.T, path string, ids ...string) {
	t.Helper()
	preds := make(map[string]predictionEntry, len(ids))
	for _, id := range ids {
		preds[id] = predictionEntry{ModelPatch: "diff --git a/x b/x", ModelNameOrPath: "team"}
	}
	raw, err := json.Marshal(preds)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func TestSubmitClassifiesIntoMutuallyExclusiveCategories(t *testing.T) {
	dir := t.TempDir()
	predsPath := filepath.Join(dir, "preds.json")
	writePredsFile(t, predsPath, "resolved-1", "unresolved-1", "error-1", "empty-1")

	harness := &fakeHarness{reports: map[string]InstanceReport{
		"resolved-1":   {PatchExists: true, PatchSuccessfullyApplied: true, Resolved: true},
		"unresolved-1": {PatchExists: true, PatchSuccessfullyApplied: true, Resolved: false},
		"error-1":      {PatchExists: true, PatchSuccessfullyApplied: false},
		"empty-1":      {PatchIsNone: true},
	}}

	sub := NewSubmitter(harness, dir)
	instances := []team.ProblemStatement{
		{ID: "resolved-1"}, {ID: "unresolved-1"}, {ID: "error-1"}, {ID: "empty-1"},
	}

	report, err := sub.Submit(context.Background(), predsPath, instances, SubmissionOptions{RunID: "run-1"})
	require.NoError(t, err)

	require.Len(t, report.Results, 4)
	require.ElementsMatch(t, []string{"resolved-1", "unresolved-1", "error-1", "empty-1"}, report.Summary.SubmittedInstances)
	require.ElementsMatch(t, []string{"resolved-1"}, report.Summary.ResolvedInstances)
	require.ElementsMatch(t, []string{"unresolved-1"}, report.Summary.UnresolvedInstances)
	require.ElementsMatch(t, []string{"error-1"}, report.Summary.ErrorInstances)
	require.ElementsMatch(t, []string{"empty-1"}, report.Summary.EmptyPatchInstances)
	require.ElementsMatch(t, []string{"resolved-1", "unresolved-1"}, report.Summary.CompletedInstances)

	resultsRaw, err := os.ReadFile(filepath.Join(dir, "results.json"))
	require.NoError(t, err)
	require.Contains(t, string(resultsRaw), "resolved-1")

	summaryRaw, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	require.Contains(t, string(summaryRaw), "\"total_instances\": 4")
}

func TestSubmitSkipsInstancesWithoutAPrediction(t *testing.T) {
	dir := t.TempDir()
	predsPath := filepath.Join(dir, "preds.json")
	writePredsFile(t, predsPath, "inst-1")

	harness := &fakeHarness{reports: map[string]InstanceReport{
		"inst-1": {PatchExists: true, PatchSuccessfullyApplied: true, Resolved: true},
	}}

	sub := NewSubmitter(harness, dir)
	instances := []team.ProblemStatement{{ID: "inst-1"}, {ID: "inst-2-no-prediction"}}

	report, err := sub.Submit(context.Background(), predsPath, instances, SubmissionOptions{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Contains(t, report.Results, "inst-1")
}
