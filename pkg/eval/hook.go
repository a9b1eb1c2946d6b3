package eval

import (
	"context"
	"sync"
	"time"

	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/team"
)

// ContinuousSubmissionHook resubmits the current preds.json for evaluation
// on every instance completion, throttled to at most once per Interval. The
// final submission is made through Submit, which the caller invokes once the
// whole batch has ended. Grounded on the evaluation hook's
// on_instance_completed/on_end periodic-resubmission pattern.
type ContinuousSubmissionHook struct {
	Submitter       *Submitter
	PredictionsPath string
	Instances       []team.ProblemStatement
	Options         SubmissionOptions
	Interval        time.Duration // continuous_submission_every; 0 disables mid-run resubmission

	mu   sync.Mutex
	last time.Time
}

func NewContinuousSubmissionHook(submitter *Submitter, predictionsPath string, instances []team.ProblemStatement, opts SubmissionOptions, interval time.Duration) *ContinuousSubmissionHook {
	return &ContinuousSubmissionHook{
		Submitter:       submitter,
		PredictionsPath: predictionsPath,
		Instances:       instances,
		Options:         opts,
		Interval:        interval,
	}
}

func (h *ContinuousSubmissionHook) OnInit()     {}
func (h *ContinuousSubmissionHook) OnRunStart() {}
func (h *ContinuousSubmissionHook) OnInstanceStart(int, team.ProblemStatement) {}
func (h *ContinuousSubmissionHook) OnStepDone(team.StepOutput, team.TeamInfo) {}

func (h *ContinuousSubmissionHook) OnInstanceCompleted(team.InstanceResult) {
	if h.Interval <= 0 {
		return
	}

	h.mu.Lock()
	due := time.Since(h.last) >= h.Interval
	if due {
		h.last = time.Now()
	}
	h.mu.Unlock()
	if !due {
		return
	}

	h.submit("continuous submission triggered")
}

// OnRunDone fires once per instance (each instance owns its own Team run),
// not once per batch, so it is not a submission trigger here; the batch's
// final submission is the caller's responsibility after Runner.Run returns
// (see Submit, invoked directly by cmd/conclave-batch once all workers
// finish).
func (h *ContinuousSubmissionHook) OnRunDone([]team.StepOutput, team.TeamInfo) {}

// Submit performs one submission pass outside the periodic throttle,
// intended for the CLI driver to call once after the whole batch completes.
func (h *ContinuousSubmissionHook) Submit(ctx context.Context) (*Report, error) {
	return h.Submitter.Submit(ctx, h.PredictionsPath, h.Instances, h.Options)
}

func (h *ContinuousSubmissionHook) submit(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.Options.Timeout+30*time.Second)
	defer cancel()

	if _, err := h.Submitter.Submit(ctx, h.PredictionsPath, h.Instances, h.Options); err != nil {
		logger.ErrorCF("eval", "submission failed", map[string]any{"reason": reason, "error": err.Error()})
	}
}
