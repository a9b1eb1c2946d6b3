package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/conclave-dev/conclave/pkg/sandbox"
	"github.com/conclave-dev/conclave/pkg/team"
)

// instanceRecord is one line of an instances JSONL source: a problem
// statement plus an optional sandbox image override (an instance source may
// pin a different image per problem, e.g. one SWE-bench image per repo).
type instanceRecord struct {
	InstanceID string `json:"instance_id"`
	Problem    string `json:"problem_statement"`
	Image      string `json:"image"`
}

// LoadInstances reads a JSONL instances file (one problem per line) and
// applies defaultSandbox to every instance, overridden per-line by Image
// when set.
func LoadInstances(path string, defaultSandbox sandbox.Spec) ([]team.BatchInstance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("batch: open instances %s: %w", path, err)
	}
	defer f.Close()

	var instances []team.BatchInstance
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}
		var rec instanceRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("batch: instances %s: line %d: %w", path, line, err)
		}
		if rec.InstanceID == "" {
			return nil, fmt.Errorf("batch: instances %s: line %d: instance_id must be set", path, line)
		}

		spec := defaultSandbox
		if rec.Image != "" {
			spec.Image = rec.Image
		}

		instances = append(instances, team.BatchInstance{
			Problem: team.ProblemStatement{ID: rec.InstanceID, Payload: rec.Problem},
			Sandbox: spec,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("batch: instances %s: %w", path, err)
	}
	return instances, nil
}
