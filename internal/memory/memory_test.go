package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"drift/internal/plan"
)

func execPlan(risk plan.Risk, commands ...string) plan.Plan {
	p := plan.Plan{Risk: risk}
	for _, c := range commands {
		p.Commands = append(p.Commands, plan.Command{Command: c})
	}
	return p
}

func TestOpenFreshDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "memory")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := s.PromptContext()
	if !strings.Contains(got, "safer, conservative") {
		t.Errorf("fresh context = %q, want conservative default", got)
	}
}

func TestLearnFavoriteTools(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Learn(execPlan(plan.RiskLow, "git status"), true, true)
	s.Learn(execPlan(plan.RiskLow, "git add .", "git commit -m x"), true, true)
	s.Learn(execPlan(plan.RiskLow, "ls -la"), true, true)

	got := s.PromptContext()
	if !strings.Contains(got, "Familiar tools: git, ls") {
		t.Errorf("context = %q, want git before ls", got)
	}
}

func TestLearnFailedExecutionTeachesNothing(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Learn(execPlan(plan.RiskLow, "git status"), true, false)
	if strings.Contains(s.PromptContext(), "Familiar tools") {
		t.Error("failed execution should not record tool affinity")
	}
}

func TestLearnHighRiskComfortPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Learn(execPlan(plan.RiskHigh, "sudo systemctl restart nginx"), true, true)
	if !strings.Contains(s.PromptContext(), "comfortable with higher-risk") {
		t.Fatalf("context = %q", s.PromptContext())
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !strings.Contains(reopened.PromptContext(), "comfortable with higher-risk") {
		t.Error("high-risk comfort not persisted")
	}
}

func TestLearnRejectionRecordsAvoidedHeads(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Learn(execPlan(plan.RiskMedium, "rm -rf build"), false, false)
	s.Learn(execPlan(plan.RiskMedium, "rm -rf dist"), false, false)

	if got := s.prefs.AvoidedPatterns; len(got) != 1 || got[0] != "rm" {
		t.Errorf("avoided = %v, want [rm]", got)
	}
	if !strings.Contains(s.PromptContext(), "avoid: rm") {
		t.Errorf("context = %q", s.PromptContext())
	}
}

func TestAvoidedPatternsRing(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 14; i++ {
		s.Learn(execPlan(plan.RiskLow, fmt.Sprintf("tool%02d --flag", i)), false, false)
	}

	got := s.prefs.AvoidedPatterns
	if len(got) != avoidedPatternLimit {
		t.Fatalf("len = %d, want %d", len(got), avoidedPatternLimit)
	}
	if got[0] != "tool04" || got[len(got)-1] != "tool13" {
		t.Errorf("ring = %v, want oldest tool04 newest tool13", got)
	}
}

func TestRecordQueryRing(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 12; i++ {
		s.RecordQuery(fmt.Sprintf("query %02d", i))
	}
	if n := len(s.ctx.RecentQueries); n != recentQueryLimit {
		t.Fatalf("len = %d, want %d", n, recentQueryLimit)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n := len(reopened.ctx.RecentQueries); n != recentQueryLimit {
		t.Errorf("persisted len = %d, want %d", n, recentQueryLimit)
	}

	// The block shows queries before the current one, newest last.
	got := reopened.PromptContext()
	if !strings.Contains(got, "query 08; query 09; query 10") {
		t.Errorf("context = %q", got)
	}
	if strings.Contains(got, "query 11") {
		t.Errorf("context leaks the current query: %q", got)
	}
}

func TestDetectProjectType(t *testing.T) {
	tests := []struct {
		marker string
		want   string
	}{
		{"go.mod", "go"},
		{"package.json", "node"},
		{"Cargo.toml", "rust"},
		{"pyproject.toml", "python"},
		{"requirements.txt", "python"},
		{"Makefile", "make"},
	}

	for _, tt := range tests {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, tt.marker), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if got := detectProjectType(dir); got != tt.want {
			t.Errorf("detectProjectType(%s) = %q, want %q", tt.marker, got, tt.want)
		}
	}

	if got := detectProjectType(t.TempDir()); got != "" {
		t.Errorf("empty dir = %q, want none", got)
	}
}

func TestCommandHead(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"git status", "git"},
		{"FOO=bar npm install", "npm"},
		{"A=1 B=2 make build", "make"},
		{"ls", "ls"},
		{"", ""},
		{"   ", ""},
		{"VAR=1", ""},
	}

	for _, tt := range tests {
		if got := commandHead(tt.command); got != tt.want {
			t.Errorf("commandHead(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}

func TestCorruptFilesStartFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, prefsFile), []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.prefs.ComfortableWithHighRisk || len(s.prefs.FavoriteTools) != 0 {
		t.Errorf("prefs = %+v, want zero state", s.prefs)
	}
}

func TestReset(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Learn(execPlan(plan.RiskHigh, "sudo reboot"), true, true)
	s.Reset()

	if strings.Contains(s.PromptContext(), "comfortable with higher-risk") {
		t.Error("Reset kept learned preferences")
	}
}

func TestNilStoreIsInert(t *testing.T) {
	var s *Store
	s.RecordQuery("anything")
	s.Learn(execPlan(plan.RiskLow, "ls"), true, true)
	s.Reset()
	if got := s.PromptContext(); got != "" {
		t.Errorf("nil PromptContext = %q, want empty", got)
	}
}
