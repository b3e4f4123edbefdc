package executor

import (
	"testing"
	"time"

	"drift/internal/config"
)

func TestNewByKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want Kind
	}{
		{KindMock, KindMock},
		{KindLocal, KindLocal},
		{KindDocker, KindDocker},
	}

	for _, tt := range tests {
		e, err := New(tt.kind, Options{})
		if err != nil {
			t.Fatalf("New(%s): %v", tt.kind, err)
		}
		if e.Kind() != tt.want {
			t.Errorf("New(%s).Kind() = %s", tt.kind, e.Kind())
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Kind("chroot"), Options{}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestFromConfigMock(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Executor.Backend = config.BackendMock

	e := FromConfig(cfg, nil)
	if e.Kind() != KindMock {
		t.Errorf("kind = %s, want %s", e.Kind(), KindMock)
	}
}

func TestFromConfigLocalCarriesOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Executor.Backend = config.BackendLocal
	cfg.Executor.SandboxRoot = "/tmp/drift-sandbox"
	cfg.Executor.CommandTimeout = "45s"
	cfg.Executor.MaxOutputKB = 64

	e := FromConfig(cfg, nil)
	local, ok := e.(*LocalExecutor)
	if !ok {
		t.Fatalf("got %T, want *LocalExecutor", e)
	}
	if local.opts.SandboxRoot != "/tmp/drift-sandbox" {
		t.Errorf("sandbox root = %q", local.opts.SandboxRoot)
	}
	if local.opts.Timeout != 45*time.Second {
		t.Errorf("timeout = %s", local.opts.Timeout)
	}
	if local.opts.MaxOutputBytes != 64*1024 {
		t.Errorf("max output = %d", local.opts.MaxOutputBytes)
	}
}
