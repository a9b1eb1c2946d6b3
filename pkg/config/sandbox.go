package config

import (
	"time"

	"github.com/conclave-dev/conclave/pkg/sandbox"
)

// Spec converts the config surface into a sandbox.Spec for one instance,
// letting image override the run default (an instance source may pin a
// different image per problem).
func (s SandboxConfig) Spec(image string) sandbox.Spec {
	if image == "" {
		image = s.Image
	}
	spec := sandbox.Spec{
		Image:         image,
		ContainerPort: s.ContainerPort,
		Env:           s.Env,
		CacheRoot:     s.CacheRoot,
	}
	switch s.PullPolicy {
	case "always":
		spec.PullPolicy = sandbox.PullAlways
	case "never":
		spec.PullPolicy = sandbox.PullNever
	default:
		spec.PullPolicy = sandbox.PullMissing
	}
	if s.StartupTimeout > 0 {
		spec.StartupTimeout = time.Duration(s.StartupTimeout) * time.Second
	}
	return spec
}
