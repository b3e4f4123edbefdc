// Package memory persists lightweight user preferences between runs so plan
// generation can be personalized: which tools the user actually runs, what
// they tend to reject, and whether they routinely confirm high-risk plans.
// Everything here is advisory prompt context; nothing in this package can
// loosen a safety verdict.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drift/internal/logging"
	"drift/internal/plan"
)

const (
	prefsFile   = "memory.json"
	contextFile = "context.json"

	recentQueryLimit    = 10
	avoidedPatternLimit = 10
	favoriteToolDisplay = 5
)

// Prefs holds learned preferences, persisted globally.
type Prefs struct {
	// ComfortableWithHighRisk flips on the first confirmed and executed
	// high-risk plan. It only ever loosens prompt phrasing, never policy.
	ComfortableWithHighRisk bool `json:"comfortable_with_high_risk"`
	// FavoriteTools counts executions per command head.
	FavoriteTools map[string]int `json:"favorite_tools,omitempty"`
	// AvoidedPatterns keeps the heads of the last rejected commands.
	AvoidedPatterns []string `json:"avoided_patterns,omitempty"`
}

// SessionContext holds the rolling view of what the user is doing.
type SessionContext struct {
	Directory     string   `json:"directory,omitempty"`
	ProjectType   string   `json:"project_type,omitempty"`
	RecentQueries []string `json:"recent_queries,omitempty"`
}

// Store owns the on-disk memory files. A nil Store is valid and inert, so
// callers can disable memory by simply not opening one.
type Store struct {
	dir   string
	prefs Prefs
	ctx   SessionContext
}

// Open loads memory from dir, creating it if needed. Corrupt or missing
// files start fresh rather than failing the run.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}

	s := &Store{dir: dir}
	loadJSON(filepath.Join(dir, prefsFile), &s.prefs)
	loadJSON(filepath.Join(dir, contextFile), &s.ctx)
	if s.prefs.FavoriteTools == nil {
		s.prefs.FavoriteTools = make(map[string]int)
	}
	return s, nil
}

// RecordQuery notes a new query and refreshes the detected environment.
func (s *Store) RecordQuery(query string) {
	if s == nil {
		return
	}

	if cwd, err := os.Getwd(); err == nil {
		s.ctx.Directory = cwd
		s.ctx.ProjectType = detectProjectType(cwd)
	}

	query = strings.TrimSpace(query)
	if query != "" {
		s.ctx.RecentQueries = append(s.ctx.RecentQueries, query)
		if n := len(s.ctx.RecentQueries); n > recentQueryLimit {
			s.ctx.RecentQueries = s.ctx.RecentQueries[n-recentQueryLimit:]
		}
	}

	s.saveContext()
}

// Learn updates preferences from one plan outcome. Executed plans teach
// tool affinity and risk tolerance; rejected plans teach avoidance.
func (s *Store) Learn(p plan.Plan, executed, success bool) {
	if s == nil {
		return
	}

	if executed {
		if success {
			for _, cmd := range p.Commands {
				if head := commandHead(cmd.Command); head != "" {
					s.prefs.FavoriteTools[head]++
				}
			}
		}
		if p.Risk == plan.RiskHigh {
			s.prefs.ComfortableWithHighRisk = true
		}
	} else {
		for _, cmd := range p.Commands {
			head := commandHead(cmd.Command)
			if head == "" || contains(s.prefs.AvoidedPatterns, head) {
				continue
			}
			s.prefs.AvoidedPatterns = append(s.prefs.AvoidedPatterns, head)
			if n := len(s.prefs.AvoidedPatterns); n > avoidedPatternLimit {
				s.prefs.AvoidedPatterns = s.prefs.AvoidedPatterns[n-avoidedPatternLimit:]
			}
		}
	}

	s.savePrefs()
}

// PromptContext renders the learned state as a block for the LLM prompt.
// Returns "" when there is nothing worth saying.
func (s *Store) PromptContext() string {
	if s == nil {
		return ""
	}

	var lines []string

	if tools := s.topTools(favoriteToolDisplay); len(tools) > 0 {
		lines = append(lines, "Familiar tools: "+strings.Join(tools, ", "))
	}
	if s.prefs.ComfortableWithHighRisk {
		lines = append(lines, "User is comfortable with higher-risk operations")
	} else {
		lines = append(lines, "User prefers safer, conservative approaches")
	}
	if len(s.prefs.AvoidedPatterns) > 0 {
		show := s.prefs.AvoidedPatterns
		if len(show) > 3 {
			show = show[len(show)-3:]
		}
		lines = append(lines, "User tends to avoid: "+strings.Join(show, ", "))
	}
	if s.ctx.ProjectType != "" {
		lines = append(lines, "Project type: "+s.ctx.ProjectType)
	}
	if n := len(s.ctx.RecentQueries); n > 1 {
		prior := s.ctx.RecentQueries[:n-1]
		if len(prior) > 3 {
			prior = prior[len(prior)-3:]
		}
		lines = append(lines, "Recent queries: "+strings.Join(prior, "; "))
	}

	if len(lines) == 0 {
		return ""
	}
	return "User preferences:\n- " + strings.Join(lines, "\n- ")
}

// Reset clears learned preferences but keeps session context.
func (s *Store) Reset() {
	if s == nil {
		return
	}
	s.prefs = Prefs{FavoriteTools: make(map[string]int)}
	s.savePrefs()
}

// topTools returns up to n tool heads ordered by use count, ties by name.
func (s *Store) topTools(n int) []string {
	type toolCount struct {
		name  string
		count int
	}
	counts := make([]toolCount, 0, len(s.prefs.FavoriteTools))
	for name, count := range s.prefs.FavoriteTools {
		counts = append(counts, toolCount{name, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].name < counts[j].name
	})

	if len(counts) > n {
		counts = counts[:n]
	}
	tools := make([]string, len(counts))
	for i, tc := range counts {
		tools[i] = tc.name
	}
	return tools
}

func (s *Store) savePrefs() {
	if err := atomicWriteJSON(filepath.Join(s.dir, prefsFile), s.prefs); err != nil {
		logging.Memory("failed to save preferences: %v", err)
	}
}

func (s *Store) saveContext() {
	if err := atomicWriteJSON(filepath.Join(s.dir, contextFile), s.ctx); err != nil {
		logging.Memory("failed to save context: %v", err)
	}
}

// detectProjectType inspects marker files; the first match wins.
func detectProjectType(dir string) string {
	markers := []struct {
		file string
		kind string
	}{
		{"package.json", "node"},
		{"go.mod", "go"},
		{"Cargo.toml", "rust"},
		{"pyproject.toml", "python"},
		{"requirements.txt", "python"},
		{"Makefile", "make"},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			return m.kind
		}
	}
	return ""
}

// commandHead returns the first word of a command, skipping FOO=bar env
// assignment prefixes.
func commandHead(command string) string {
	for _, field := range strings.Fields(command) {
		if strings.Contains(field, "=") && !strings.HasPrefix(field, "=") {
			continue
		}
		return field
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// loadJSON fills dst from path, ignoring missing or corrupt files.
func loadJSON(path string, dst any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logging.MemoryDebug("ignoring corrupt %s: %v", filepath.Base(path), err)
	}
}

// atomicWriteJSON stages the encoded value next to the target and promotes
// it with a rename so readers never see a torn file.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}
	success = true
	return nil
}
