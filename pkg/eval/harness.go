package eval

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/conclave-dev/conclave/pkg/logger"
)

// Harness is the external patch-application + test-execution process.
// Submit never assumes anything about how the harness is implemented beyond
// this contract, matching how the rest of the core treats the sandbox and
// the agent as opaque collaborators.
type Harness interface {
	RunInstances(ctx context.Context, predictionsPath string, instanceIDs []string, opts SubmissionOptions, reportDir string) error
}

// SubprocessHarness shells out to a configured evaluation CLI, passing the
// predictions file, the instance filter, and the submission options as
// flags, then waits for it to populate reportDir with one report.json per
// instance. Command defaults to "swebench-harness" if empty.
type SubprocessHarness struct {
	Command string
}

func NewSubprocessHarness(command string) *SubprocessHarness {
	if command == "" {
		command = "swebench-harness"
	}
	return &SubprocessHarness{Command: command}
}

func (h *SubprocessHarness) RunInstances(ctx context.Context, predictionsPath string, instanceIDs []string, opts SubmissionOptions, reportDir string) error {
	args := []string{
		"run-instances",
		"--predictions_path", predictionsPath,
		"--report_dir", reportDir,
		"--cache_level", opts.CacheLevel,
		"--max_workers", fmt.Sprintf("%d", opts.MaxWorkers),
		"--run_id", opts.RunID,
		"--timeout", fmt.Sprintf("%d", int(opts.Timeout.Seconds())),
		"--namespace", opts.Namespace,
		"--instance_image_tag", opts.ImageTag,
	}
	if opts.Clean {
		args = append(args, "--clean")
	}
	if opts.ForceRebuild {
		args = append(args, "--force_rebuild")
	}
	for _, id := range instanceIDs {
		args = append(args, "--instance_id", id)
	}

	cmd := exec.CommandContext(ctx, h.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.ErrorCF("eval", "harness invocation failed", map[string]any{
			"command": h.Command, "error": err.Error(), "stderr": stderr.String(),
		})
		return fmt.Errorf("eval: harness run: %w", err)
	}
	return nil
}
