package batch

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/conclave-dev/conclave/pkg/team"
)

// replayConfig is the sidecar written next to every instance's trajectory so
// a single instance can be re-run in isolation later without re-deriving it
// from the batch-wide config.
type replayConfig struct {
	ProblemID string            `yaml:"problem_id"`
	Image     string            `yaml:"image"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// writeReplayConfig writes <instance_dir>/<problem_id>.config.yaml.
func writeReplayConfig(instanceDir, problemID string, instance team.BatchInstance) error {
	if err := os.MkdirAll(instanceDir, 0o755); err != nil {
		return err
	}

	cfg := replayConfig{
		ProblemID: problemID,
		Image:     instance.Sandbox.Image,
		Env:       instance.Sandbox.Env,
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	path := filepath.Join(instanceDir, problemID+".config.yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
