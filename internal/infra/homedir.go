package infra

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveHomeDir returns the effective home directory for Conclave state
// (image cache registry, default output root). Checks CONCLAVE_HOME first,
// falls back to ~/.conclave if not set or empty.
func ResolveHomeDir() string {
	if envHome := strings.TrimSpace(os.Getenv("CONCLAVE_HOME")); envHome != "" {
		return envHome
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		// Extreme fallback
		return filepath.Join(os.TempDir(), ".conclave")
	}
	return filepath.Join(home, ".conclave")
}
