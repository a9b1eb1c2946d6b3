package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conclave-dev/conclave/pkg/team"
)

func writeAgentYAML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAgentProfilesParsesEachFileInOrder(t *testing.T) {
	p1 := writeAgentYAML(t, "a.yaml", "name: alpha\nmodel: claude-opus\nsharing_policy: tool_results_only\n")
	p2 := writeAgentYAML(t, "b.yaml", "name: beta\nmodel: claude-sonnet\n")

	profiles, err := LoadAgentProfiles([]string{p1, p2})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	require.Equal(t, "alpha", profiles[0].Name)
	require.Equal(t, team.SharingToolResultsOnly, profiles[0].SharingPolicyValue())
	require.Equal(t, "beta", profiles[1].Name)
	require.Equal(t, team.SharingFull, profiles[1].SharingPolicyValue())
}

func TestLoadAgentProfilesUsesAPIKeyEnvFallback(t *testing.T) {
	t.Setenv("ALPHA_KEY", "secret-value")
	path := writeAgentYAML(t, "a.yaml", "name: alpha\napi_key_env: ALPHA_KEY\n")

	profiles, err := LoadAgentProfiles([]string{path})
	require.NoError(t, err)
	require.Equal(t, "secret-value", profiles[0].APIKey)
}

func TestLoadAgentProfilesRejectsMissingName(t *testing.T) {
	path := writeAgentYAML(t, "a.yaml", "model: claude-opus\n")
	_, err := LoadAgentProfiles([]string{path})
	require.Error(t, err)
	var cfgErr *team.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
