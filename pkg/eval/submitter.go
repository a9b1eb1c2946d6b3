package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/team"
)

// predictionEntry mirrors one preds.json value, accepting either the
// model_patch or model_prediction key the harness's input format allows.
type predictionEntry struct {
	ModelPatch      string `json:"model_patch,omitempty"`
	ModelPrediction string `json:"model_prediction,omitempty"`
	ModelNameOrPath string `json:"model_name_or_path,omitempty"`
}

// Submitter drives one evaluation pass: load preds.json, invoke the harness,
// collect its per-instance report.json files, and write results.json and
// summary.json under OutputDir.
type Submitter struct {
	Harness   Harness
	OutputDir string
}

func NewSubmitter(harness Harness, outputDir string) *Submitter {
	return &Submitter{Harness: harness, OutputDir: outputDir}
}

// Submit runs one full evaluation pass over predictionsPath, restricted to
// the given instances, and returns the merged report.
func (s *Submitter) Submit(ctx context.Context, predictionsPath string, instances []team.ProblemStatement, opts SubmissionOptions) (*Report, error) {
	predictions, err := loadPredictions(predictionsPath)
	if err != nil {
		return nil, fmt.Errorf("eval: load predictions: %w", err)
	}

	instanceIDs := make([]string, 0, len(instances))
	for _, inst := range instances {
		if _, ok := predictions[inst.ID]; ok {
			instanceIDs = append(instanceIDs, inst.ID)
		}
	}
	if len(instanceIDs) == 0 {
		logger.WarnCF("eval", "no matching instances found for predictions", nil)
		return &Report{Results: map[string]InstanceReport{}}, nil
	}

	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	reportDir := filepath.Join(s.OutputDir, "harness-reports", opts.RunID)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return nil, fmt.Errorf("eval: create report dir: %w", err)
	}

	if err := s.Harness.RunInstances(ctx, predictionsPath, instanceIDs, opts, reportDir); err != nil {
		return nil, err
	}

	results, err := collectReports(reportDir)
	if err != nil {
		return nil, fmt.Errorf("eval: collect reports: %w", err)
	}

	summary := computeSummary(results)

	if err := writeJSON(filepath.Join(s.OutputDir, "results.json"), results); err != nil {
		return nil, fmt.Errorf("eval: write results.json: %w", err)
	}
	if err := writeJSON(filepath.Join(s.OutputDir, "summary.json"), summary); err != nil {
		return nil, fmt.Errorf("eval: write summary.json: %w", err)
	}

	logger.InfoCF("eval", "evaluation pass complete", map[string]any{
		"submitted": summary.Metrics.SubmittedInstances,
		"resolved":  summary.Metrics.ResolvedInstances,
		"completed": summary.Metrics.CompletedInstances,
	})

	return &Report{Results: results, Summary: summary}, nil
}

func loadPredictions(path string) (map[string]predictionEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var preds map[string]predictionEntry
	if err := json.Unmarshal(raw, &preds); err != nil {
		return nil, err
	}
	return preds, nil
}

// collectReports walks reportDir for report.json files, each one named
// <instance_id>/report.json, matching the harness's log-directory layout.
func collectReports(reportDir string) (map[string]InstanceReport, error) {
	results := make(map[string]InstanceReport)

	entries, err := os.ReadDir(reportDir)
	if err != nil {
		if os.IsNotExist(err) {
			return results, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		reportPath := filepath.Join(reportDir, entry.Name(), "report.json")
		raw, err := os.ReadFile(reportPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			logger.WarnCF("eval", "failed to read instance report", map[string]any{
				"path": reportPath, "error": err.Error(),
			})
			continue
		}
		var report InstanceReport
		if err := json.Unmarshal(raw, &report); err != nil {
			logger.WarnCF("eval", "failed to parse instance report", map[string]any{
				"path": reportPath, "error": err.Error(),
			})
			continue
		}
		report.InstanceID = entry.Name()
		results[entry.Name()] = report
	}
	return results, nil
}

// computeSummary classifies every reported instance into spec.md §6.2's
// mutually-exclusive categories (completed is the only union: resolved ∪
// unresolved).
func computeSummary(results map[string]InstanceReport) Summary {
	var s Summary
	for id, r := range results {
		s.SubmittedInstances = append(s.SubmittedInstances, id)

		switch {
		case r.PatchIsNone || !r.PatchExists:
			s.EmptyPatchInstances = append(s.EmptyPatchInstances, id)
		case !r.PatchSuccessfullyApplied:
			s.ErrorInstances = append(s.ErrorInstances, id)
		case r.Resolved:
			s.ResolvedInstances = append(s.ResolvedInstances, id)
			s.CompletedInstances = append(s.CompletedInstances, id)
		default:
			s.UnresolvedInstances = append(s.UnresolvedInstances, id)
			s.CompletedInstances = append(s.CompletedInstances, id)
		}
	}

	s.Metrics = SummaryMetrics{
		TotalInstances:      len(results),
		SubmittedInstances:  len(s.SubmittedInstances),
		EmptyPatchInstances: len(s.EmptyPatchInstances),
		ErrorInstances:      len(s.ErrorInstances),
		ResolvedInstances:   len(s.ResolvedInstances),
		UnresolvedInstances: len(s.UnresolvedInstances),
		CompletedInstances:  len(s.CompletedInstances),
	}
	return s
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
