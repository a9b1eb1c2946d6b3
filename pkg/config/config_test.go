package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conclave-dev/conclave/pkg/team"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesYAMLThenEnvOverrides(t *testing.T) {
	path := writeYAML(t, `
instances: instances.jsonl
agent_config_paths: ["a.yaml"]
team_name: alpha
num_workers: 2
`)
	t.Setenv("CONCLAVE_TEAM_NAME", "beta")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "beta", cfg.TeamName, "env override must win over the YAML value")
	require.Equal(t, 2, cfg.NumWorkers)
}

func TestLoadResolvesDefaultOutputDirToATimestampedName(t *testing.T) {
	path := writeYAML(t, `
instances: instances.jsonl
agent_config_paths: ["a.yaml"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEqual(t, "DEFAULT", cfg.OutputDir)
	require.Contains(t, cfg.OutputDir, "run_")
}

func TestLoadResolvesDefaultCacheRootToConclaveHome(t *testing.T) {
	path := writeYAML(t, `
instances: instances.jsonl
agent_config_paths: ["a.yaml"]
`)
	home := t.TempDir()
	t.Setenv("CONCLAVE_HOME", home)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, home, cfg.Sandbox.CacheRoot)
}

func TestLoadKeepsExplicitCacheRootOverDefault(t *testing.T) {
	path := writeYAML(t, `
instances: instances.jsonl
agent_config_paths: ["a.yaml"]
sandbox:
  cache_root: /var/lib/conclave-cache
`)
	t.Setenv("CONCLAVE_HOME", t.TempDir())

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/conclave-cache", cfg.Sandbox.CacheRoot)
}

func TestLoadRejectsEvaluateWithRedoExisting(t *testing.T) {
	path := writeYAML(t, `
instances: instances.jsonl
agent_config_paths: ["a.yaml"]
redo_existing: true
evaluation:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *team.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadRejectsHumanModelWithMultipleWorkers(t *testing.T) {
	path := writeYAML(t, `
instances: instances.jsonl
agent_config_paths: ["a.yaml"]
human_model: true
num_workers: 4
`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *team.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadRejectsMissingInstances(t *testing.T) {
	path := writeYAML(t, `
agent_config_paths: ["a.yaml"]
`)
	_, err := Load(path)
	require.Error(t, err)
}
