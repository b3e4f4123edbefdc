package executor

import (
	"fmt"

	"drift/internal/config"
	"drift/internal/logging"
)

// New builds the executor for an explicit backend kind.
func New(kind Kind, opts Options) (Executor, error) {
	switch kind {
	case KindMock:
		return NewMock(opts), nil
	case KindLocal:
		return NewLocal(opts), nil
	case KindDocker:
		return NewDocker(opts), nil
	default:
		return nil, fmt.Errorf("unknown executor backend: %s", kind)
	}
}

// FromConfig builds the executor the configuration asks for, carrying the
// configured timeout, output cap, sandbox root, and image. A docker
// backend whose daemon probe fails falls back to local with a warning
// rather than failing the run.
func FromConfig(cfg *config.Config, audit *Auditor) Executor {
	opts := Options{
		Timeout:        cfg.CommandTimeout(),
		MaxOutputBytes: cfg.MaxOutputBytes(),
		SandboxRoot:    cfg.Executor.SandboxRoot,
		DockerImage:    cfg.Executor.DockerImage,
		Audit:          audit,
	}

	switch cfg.Executor.Backend {
	case config.BackendMock:
		return NewMock(opts)

	case config.BackendDocker:
		docker := NewDocker(opts)
		if docker.Available() {
			return docker
		}
		logging.ExecutorWarn("docker backend requested but unavailable, falling back to local")
		return NewLocal(opts)

	default:
		return NewLocal(opts)
	}
}
