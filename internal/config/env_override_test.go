package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_DryRun(t *testing.T) {
	t.Run("DRIFT_DRY_RUN=1 forces dry run", func(t *testing.T) {
		t.Setenv(EnvDryRun, "1")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.ForceDryRun)
	})

	t.Run("DRIFT_DRY_RUN=true forces dry run", func(t *testing.T) {
		t.Setenv(EnvDryRun, "true")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.ForceDryRun)
	})

	t.Run("other values leave dry run off", func(t *testing.T) {
		t.Setenv(EnvDryRun, "0")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.False(t, cfg.ForceDryRun)
	})
}

func TestEnvOverrides_Executor(t *testing.T) {
	t.Run("DRIFT_EXECUTOR selects backend", func(t *testing.T) {
		t.Setenv(EnvExecutor, "mock")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, BackendMock, cfg.Executor.Backend)
	})

	t.Run("DRIFT_SANDBOX_ROOT overrides sandbox root", func(t *testing.T) {
		t.Setenv(EnvSandboxRoot, "/tmp/box")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/box", cfg.Executor.SandboxRoot)
	})

	t.Run("environment wins over file values", func(t *testing.T) {
		t.Setenv(EnvExecutor, "docker")

		cfg := DefaultConfig()
		cfg.Executor.Backend = BackendLocal
		cfg.applyEnvOverrides()

		assert.Equal(t, BackendDocker, cfg.Executor.Backend)
	})
}

func TestEnvOverrides_StateDir(t *testing.T) {
	t.Setenv(EnvHome, "/tmp/drift-home")

	assert.Equal(t, "/tmp/drift-home", StateDir())
}
