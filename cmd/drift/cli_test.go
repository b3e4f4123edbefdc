package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"drift/internal/config"
	"drift/internal/history"
	"drift/internal/plan"
	"drift/internal/safety"
)

// testEnv points the state directory at a temp dir and resets the
// globals the commands read.
func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DRIFT_HOME", t.TempDir())
	cfg = config.DefaultConfig()
	logger = zap.NewNop()
	configPath = ""
}

func TestRunSetup(t *testing.T) {
	testEnv(t)

	if err := runSetup(setupCmd, nil); err != nil {
		t.Fatalf("runSetup failed: %v", err)
	}

	path := config.DefaultPath()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config written at %s: %v", path, err)
	}
	if _, err := os.Stat(cfg.Snapshots.Dir); err != nil {
		t.Errorf("Expected snapshots dir created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(config.StateDir(), "logs")); err != nil {
		t.Errorf("Expected logs dir created: %v", err)
	}

	// Second run must not overwrite without --force.
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if err := os.WriteFile(path, append(before, []byte("\n# edited\n")...), 0644); err != nil {
		t.Fatalf("failed to edit config: %v", err)
	}
	if err := runSetup(setupCmd, nil); err != nil {
		t.Fatalf("runSetup second run failed: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to re-read config: %v", err)
	}
	if !strings.Contains(string(after), "# edited") {
		t.Error("Expected existing config preserved without --force")
	}
}

func TestRunHistoryEmpty(t *testing.T) {
	testEnv(t)

	if err := runHistory(historyCmd, nil); err != nil {
		t.Fatalf("runHistory failed on empty store: %v", err)
	}
}

func TestRunHistoryWithRecords(t *testing.T) {
	testEnv(t)

	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	rec := &history.Record{
		Query: "list files",
		Plan: plan.Plan{
			Summary:  "List files",
			Risk:     plan.RiskLow,
			Commands: []plan.Command{{Command: "ls", Description: "list"}},
		},
		Executed: true,
	}
	if err := hist.Append(rec); err != nil {
		t.Fatalf("failed to append record: %v", err)
	}
	hist.Close()

	if err := runHistory(historyCmd, nil); err != nil {
		t.Fatalf("runHistory failed: %v", err)
	}
}

func TestRunAgainWithoutHistory(t *testing.T) {
	testEnv(t)

	err := runAgain(againCmd, nil)
	if err == nil {
		t.Fatal("Expected error when nothing has executed")
	}
	if !strings.Contains(err.Error(), "no executed plan") {
		t.Errorf("Expected no-executed-plan error, got %v", err)
	}
}

func TestRunCleanupEmptyStore(t *testing.T) {
	testEnv(t)

	cleanupAuto = true
	defer func() { cleanupAuto = false }()

	if err := runCleanup(cleanupCmd, nil); err != nil {
		t.Fatalf("runCleanup failed on empty store: %v", err)
	}
}

func TestAutoConfirm(t *testing.T) {
	tests := []struct {
		risk plan.Risk
		want string
	}{
		{plan.RiskLow, "y"},
		{plan.RiskMedium, "y"},
		{plan.RiskHigh, "YES"},
	}

	for _, tt := range tests {
		got, err := autoConfirm(safety.PlanVerdict{Overall: tt.risk})
		if err != nil {
			t.Fatalf("autoConfirm(%s) failed: %v", tt.risk, err)
		}
		if got != tt.want {
			t.Errorf("autoConfirm(%s): expected %q, got %q", tt.risk, tt.want, got)
		}
	}
}

func TestAuditLogStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	lines := []string{
		`{"type":"start","backend":"local","command":"ls"}`,
		`{"type":"complete","backend":"local","command":"ls"}`,
		`{"type":"blocked","command":"rm -rf /","block_reason":"recursive-root-delete"}`,
		`not json at all`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write audit log: %v", err)
	}

	total, blocked, err := auditLogStats(path)
	if err != nil {
		t.Fatalf("auditLogStats failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected 3 decoded events, got %d", total)
	}
	if blocked != 1 {
		t.Errorf("Expected 1 blocked event, got %d", blocked)
	}
}

func TestAuditLogStatsMissingFile(t *testing.T) {
	_, _, err := auditLogStats(filepath.Join(t.TempDir(), "nope.jsonl"))
	if !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("12345"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("failed to make subdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b"), []byte("123"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if got := dirSize(dir); got != 8 {
		t.Errorf("Expected 8 bytes, got %d", got)
	}
	if got := dirSize(filepath.Join(dir, "missing")); got != 0 {
		t.Errorf("Expected 0 for missing dir, got %d", got)
	}
}
