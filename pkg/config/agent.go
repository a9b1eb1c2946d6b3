package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conclave-dev/conclave/pkg/team"
)

// TemplatesConfig mirrors team.Templates for YAML/env loading.
type TemplatesConfig struct {
	NextStepTemplate                     string `yaml:"next_step_template"`
	NextStepTruncatedObservationTemplate string `yaml:"next_step_truncated_observation_template"`
	MaxObservationLength                 int    `yaml:"max_observation_length"`
}

// AgentProfile is one entry of agent_config_paths: everything needed to
// build one roster member (via refagent.New or openaiagent.New, selected by
// Provider), independent of which instance it ends up running against.
type AgentProfile struct {
	Name         string  `yaml:"name"`
	Provider     string  `yaml:"provider"` // "anthropic" (default) or "openai"
	APIKeyEnv    string  `yaml:"api_key_env"`
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	MaxTokens    int64   `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`

	SharingPolicy       string `yaml:"sharing_policy"`
	EnableHandoffTool   bool   `yaml:"enable_handoff_tool"`
	MaxConsecutiveTurns int    `yaml:"max_consecutive_turns"`
	MaxRequeries        int    `yaml:"max_requeries"`
	RequestsPerMinute   float64 `yaml:"requests_per_minute"`

	Templates TemplatesConfig `yaml:"templates"`
}

// LoadAgentProfiles reads one AgentProfile per path, in order. The API key
// is read from the profile's api_key_env (ANTHROPIC_API_KEY by default,
// OPENAI_API_KEY for provider "openai"); when that variable is set it
// replaces any api_key written in the YAML file.
func LoadAgentProfiles(paths []string) ([]AgentProfile, error) {
	profiles := make([]AgentProfile, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &team.ConfigurationError{Msg: fmt.Sprintf("read agent config %s: %v", path, err)}
		}
		var profile AgentProfile
		if err := yaml.Unmarshal(raw, &profile); err != nil {
			return nil, &team.ConfigurationError{Msg: fmt.Sprintf("parse agent config %s: %v", path, err)}
		}
		if profile.APIKeyEnv == "" {
			profile.APIKeyEnv = defaultAPIKeyEnv(profile.Provider)
		}
		if v := os.Getenv(profile.APIKeyEnv); v != "" {
			profile.APIKey = v
		}
		if profile.Name == "" {
			return nil, &team.ConfigurationError{Msg: fmt.Sprintf("agent config %s: name must be set", path)}
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func defaultAPIKeyEnv(provider string) string {
	if provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// SharingPolicyValue translates the profile's string enum into the
// team.SharingPolicy the orchestrator dispatches on, defaulting to full
// sharing when unset or unrecognized.
func (p AgentProfile) SharingPolicyValue() team.SharingPolicy {
	switch p.SharingPolicy {
	case "tool_results_only":
		return team.SharingToolResultsOnly
	case "thought_only":
		return team.SharingThoughtOnly
	default:
		return team.SharingFull
	}
}
