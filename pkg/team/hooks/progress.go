package hooks

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/conclave-dev/conclave/pkg/team"
)

// ProgressHook prints a one-line-per-instance progress indicator to an
// io.Writer (stdout by default). Kept deliberately plain rather than pulling
// in a terminal-styling library: spec.md's batch driver runs as often in CI
// logs as in an interactive terminal, and a TTY-oriented progress bar would
// need a non-interactive fallback anyway.
type ProgressHook struct {
	Out   io.Writer
	Total int

	mu        sync.Mutex
	completed int
	started   time.Time
}

// NewProgressHook tracks progress across total instances.
func NewProgressHook(total int) *ProgressHook {
	return &ProgressHook{Out: os.Stdout, Total: total}
}

func (p *ProgressHook) OnInit() {
	p.started = time.Now()
}

func (p *ProgressHook) OnRunStart() {}

func (p *ProgressHook) OnInstanceStart(index int, problem team.ProblemStatement) {
	p.printf("[%d/%d] starting %s", index+1, p.Total, problem.ID)
}

func (p *ProgressHook) OnStepDone(step team.StepOutput, info team.TeamInfo) {}

func (p *ProgressHook) OnInstanceCompleted(result team.InstanceResult) {
	p.mu.Lock()
	p.completed++
	completed := p.completed
	p.mu.Unlock()

	status := result.ExitStatus
	if result.Err != nil {
		status = "error: " + result.Err.Error()
	}
	elapsed := time.Since(p.started).Round(time.Second)
	p.printf("[%d/%d] %s done (%s) elapsed=%s", completed, p.Total, result.ProblemID, status, elapsed)
}

func (p *ProgressHook) OnRunDone(trajectory []team.StepOutput, info team.TeamInfo) {
	p.printf("run complete: %d/%d instances", p.completed, p.Total)
}

func (p *ProgressHook) printf(format string, args ...any) {
	fmt.Fprintf(p.Out, format+"\n", args...)
}
