package sandbox

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"

	"github.com/conclave-dev/conclave/pkg/logger"
)

// ContainerDeployment is the Deployment implementation grounded on the
// teacher's pkg/agent/sandbox/container.go (ensureContainer, createAndStart,
// binds, stopAndRemoveContainer) and pkg/daemon/daemon.go's SIGTERM/SIGKILL
// stop escalation, generalized from a long-lived tool sandbox to a
// one-shot-per-instance SWE sandbox.
type ContainerDeployment struct {
	spec   Spec
	docker *client.Client

	containerID string
	hostPort    int
	token       string
	runtime     *httpRuntimeClient

	stopAttempts int
}

// NewContainerDeployment builds a deployment bound to the local docker
// daemon (via DOCKER_HOST / the default socket, same as the teacher).
func NewContainerDeployment(spec Spec) (*ContainerDeployment, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: docker client: %w", err)
	}
	return &ContainerDeployment{spec: spec, docker: cli}, nil
}

func (d *ContainerDeployment) Start(ctx context.Context) error {
	if err := d.ensureImage(ctx); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}

	token, err := generateBearerToken()
	if err != nil {
		return fmt.Errorf("sandbox: generate bearer token: %w", err)
	}
	d.token = token

	hostPort, err := freeHostPort()
	if err != nil {
		return fmt.Errorf("sandbox: allocate host port: %w", err)
	}
	d.hostPort = hostPort

	if err := d.createAndStart(ctx); err != nil {
		return fmt.Errorf("sandbox: create and start container: %w", err)
	}

	d.runtime = newHTTPRuntimeClient(fmt.Sprintf("http://127.0.0.1:%d", d.hostPort), d.token)

	startupCtx, cancel := context.WithTimeout(ctx, d.spec.startupTimeout())
	defer cancel()
	if err := d.waitForLiveness(startupCtx); err != nil {
		tail := d.stderrTail(ctx)
		_ = d.Stop(context.Background())
		return &deploymentStartError{cause: err, stderrTail: tail}
	}

	logger.InfoCF("sandbox", "container deployment ready", map[string]any{
		"image": d.spec.Image, "host_port": d.hostPort,
	})
	return nil
}

type deploymentStartError struct {
	cause      error
	stderrTail string
}

func (e *deploymentStartError) Error() string {
	return fmt.Sprintf("deployment did not become alive: %v (stderr tail: %s)", e.cause, e.stderrTail)
}
func (e *deploymentStartError) Unwrap() error { return e.cause }

func (d *ContainerDeployment) ensureImage(ctx context.Context) error {
	cachePath := imageCachePath(d.spec.CacheRoot, d.spec.Image)
	lockPath := cachePath + ".lock"

	switch d.spec.PullPolicy {
	case PullNever:
		return nil
	case PullMissing:
		if imageAlreadyCached(cachePath) {
			return nil
		}
	case PullAlways:
		// always re-pull below
	}

	release, err := acquireImageLock(lockPath, 2*time.Minute)
	if err != nil {
		return err
	}
	defer release()

	if d.spec.PullPolicy == PullMissing && imageAlreadyCached(cachePath) {
		// another worker pulled it while we waited for the lock
		return nil
	}

	rc, err := d.docker.ImagePull(ctx, d.spec.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", d.spec.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull %s: %w", d.spec.Image, err)
	}

	return markImagePulled(cachePath)
}

func (d *ContainerDeployment) createAndStart(ctx context.Context) error {
	portStr := fmt.Sprintf("%d/tcp", d.spec.containerPort())
	env := make([]string, 0, len(d.spec.Env)+1)
	env = append(env, "CONCLAVE_RUNTIME_TOKEN="+d.token)
	for k, v := range d.spec.Env {
		env = append(env, k+"="+v)
	}

	cfg := &container.Config{
		Image: d.spec.Image,
		Env:   env,
		ExposedPorts: map[string]struct{}{
			portStr: {},
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: map[string][]container.PortBinding{
			portStr: {{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", d.hostPort)}},
		},
		AutoRemove: false,
	}

	created, err := d.docker.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return err
	}
	d.containerID = created.ID

	if err := d.docker.ContainerStart(ctx, d.containerID, container.StartOptions{}); err != nil {
		return err
	}
	return nil
}

func (d *ContainerDeployment) waitForLiveness(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		result, err := d.IsAlive(ctx, 2*time.Second)
		if err == nil && result.OK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *ContainerDeployment) IsAlive(ctx context.Context, timeout time.Duration) (*LivenessResult, error) {
	if d.runtime == nil {
		return &LivenessResult{OK: false, Message: "runtime not started"}, nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := d.runtime.Exec(probeCtx, ExecRequest{Command: []string{"true"}})
	if err != nil {
		return &LivenessResult{OK: false, Message: err.Error()}, nil
	}
	return &LivenessResult{OK: true}, nil
}

func (d *ContainerDeployment) Runtime() RuntimeClient {
	return d.runtime
}

// Stop terminates the container with the teacher's daemon.go SIGTERM->wait->
// SIGKILL escalation, adapted from process signals to docker's equivalent
// ContainerStop(timeout)/ContainerKill calls. Idempotent: stopping an
// already-stopped or never-started deployment is a no-op.
func (d *ContainerDeployment) Stop(ctx context.Context) error {
	if d.containerID == "" {
		return nil
	}
	for d.stopAttempts < 3 {
		d.stopAttempts++
		timeoutSeconds := 10
		err := d.docker.ContainerStop(ctx, d.containerID, container.StopOptions{Timeout: &timeoutSeconds})
		if err == nil {
			break
		}
		logger.WarnCF("sandbox", "container stop attempt failed, escalating", map[string]any{
			"attempt": d.stopAttempts, "error": err.Error(),
		})
		if d.stopAttempts >= 3 {
			_ = d.docker.ContainerKill(ctx, d.containerID, "SIGKILL")
			break
		}
	}
	err := d.docker.ContainerRemove(ctx, d.containerID, container.RemoveOptions{Force: true})
	d.containerID = ""
	return err
}

func (d *ContainerDeployment) stderrTail(ctx context.Context) string {
	if d.containerID == "" {
		return ""
	}
	rc, err := d.docker.ContainerLogs(ctx, d.containerID, container.LogsOptions{ShowStderr: true, Tail: "50"})
	if err != nil {
		return ""
	}
	defer rc.Close()
	var out, errBuf bytes.Buffer
	_, _ = stdcopy.StdCopy(&out, &errBuf, io.LimitReader(rc, 64*1024))
	logger.DebugCF("sandbox", "captured stderr tail", map[string]any{"size": units.HumanSize(float64(errBuf.Len()))})
	return errBuf.String()
}

func generateBearerToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func freeHostPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
