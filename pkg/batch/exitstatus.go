package batch

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conclave-dev/conclave/pkg/logger"
)

// ExitStatusEntry is one line of the <team_name>_exit_statuses.yaml file.
type ExitStatusEntry struct {
	ProblemID  string `yaml:"problem_id"`
	ExitStatus string `yaml:"exit_status"`
	Error      string `yaml:"error,omitempty"`
}

// ExitStatusWriter serializes exit-status entries from concurrent workers
// onto a single goroutine, avoiding interleaved writes to the shared YAML
// file without holding a lock across I/O.
type ExitStatusWriter struct {
	path    string
	entries chan ExitStatusEntry
	done    chan struct{}

	mu  sync.Mutex
	all []ExitStatusEntry
}

// NewExitStatusWriter starts the writer goroutine. Any existing file at path
// is loaded first so repeated runs over the same output dir accumulate.
func NewExitStatusWriter(path string) *ExitStatusWriter {
	w := &ExitStatusWriter{
		path:    path,
		entries: make(chan ExitStatusEntry, 64),
		done:    make(chan struct{}),
	}

	if raw, err := os.ReadFile(path); err == nil {
		var existing []ExitStatusEntry
		if err := yaml.Unmarshal(raw, &existing); err == nil {
			w.all = existing
		}
	}

	go w.run()
	return w
}

func (w *ExitStatusWriter) run() {
	defer close(w.done)
	for e := range w.entries {
		w.mu.Lock()
		w.all = append(w.all, e)
		raw, err := yaml.Marshal(w.all)
		w.mu.Unlock()
		if err != nil {
			logger.ErrorCF("batch", "failed to marshal exit status entries", map[string]any{"error": err.Error()})
			continue
		}
		if err := os.WriteFile(w.path, raw, 0o644); err != nil {
			logger.ErrorCF("batch", "failed to write exit status file", map[string]any{"error": err.Error()})
		}
	}
}

// Record enqueues an entry for the writer goroutine. Safe for concurrent
// callers.
func (w *ExitStatusWriter) Record(e ExitStatusEntry) {
	w.entries <- e
}

// Close drains pending entries and stops the writer goroutine.
func (w *ExitStatusWriter) Close() error {
	close(w.entries)
	<-w.done
	return nil
}
