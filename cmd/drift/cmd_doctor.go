package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"drift/cmd/drift/ui"
	"drift/internal/config"
	"drift/internal/executor"
	"drift/internal/history"
	"drift/internal/llm"
	"drift/internal/safety"
	"drift/internal/snapshot"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common problems",
	Long: `Checks the pieces drift depends on: configuration, state
directory, safety rules, history database, snapshot store, the configured
model backend, docker, and the audit log.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	styles := ui.NewStyles()
	ok := true
	pass := func(format string, a ...interface{}) { fmt.Println(styles.Successf(format, a...)) }
	warn := func(format string, a ...interface{}) { fmt.Println(styles.Warningf(format, a...)) }
	fail := func(format string, a ...interface{}) { ok = false; fmt.Println(styles.Errorf(format, a...)) }

	fmt.Println(styles.Title.Render("drift doctor"))
	fmt.Println()

	// Configuration
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		pass("config: %s", path)
	} else {
		warn("config: %s missing, using defaults (drift setup writes one)", path)
	}
	if configErr != nil {
		fail("config unusable, running on defaults: %v (drift setup --force rewrites it)", configErr)
	}

	// State directory
	state := config.StateDir()
	if err := os.MkdirAll(state, 0755); err != nil {
		fail("state dir %s: %v", state, err)
	} else if f, err := os.CreateTemp(state, ".doctor-*"); err != nil {
		fail("state dir %s not writable: %v", state, err)
	} else {
		f.Close()
		os.Remove(f.Name())
		pass("state dir writable: %s", state)
	}

	// Safety rules
	classifier := safety.New()
	if rules := cfg.Safety.UserRulesFile; rules != "" {
		if err := classifier.LoadUserRules(rules); err != nil && !os.IsNotExist(err) {
			fail("user rules %s: %v", rules, err)
		}
	}
	blocked, high, medium := classifier.RuleCount()
	pass("safety rules loaded: %d blocked, %d high, %d medium", blocked, high, medium)

	// History database
	if hist, err := history.Open(cfg.History.Path); err != nil {
		fail("history db %s: %v", cfg.History.Path, err)
	} else {
		if n, err := hist.Count(); err != nil {
			fail("history db unreadable: %v", err)
		} else {
			pass("history db: %d record(s)", n)
		}
		hist.Close()
	}

	// Snapshot store
	if snaps, err := snapshot.NewStore(cfg.Snapshots.Dir, snapshotRoot()); err != nil {
		fail("snapshot store %s: %v", cfg.Snapshots.Dir, err)
	} else if list, err := snaps.List(); err != nil {
		fail("snapshot store unreadable: %v", err)
	} else {
		pass("snapshot store: %d snapshot(s)", len(list))
		if len(list) > autoCleanupThreshold {
			warn("snapshot store is large, consider drift cleanup")
		}
	}

	// Model backend
	switch cfg.LLM.Provider {
	case "", "ollama":
		client := llm.NewOllama(llm.OllamaConfig{BaseURL: cfg.LLM.OllamaURL, Model: cfg.LLM.Model}, nil)
		if client.Available(ctx) {
			pass("ollama reachable at %s (model %s)", cfg.LLM.OllamaURL, cfg.LLM.Model)
		} else {
			fail("ollama not reachable at %s → ollama serve", cfg.LLM.OllamaURL)
		}
		client.Close()
	case "gemini":
		if cfg.APIKey() != "" {
			pass("gemini key present in %s", cfg.LLM.APIKeyEnv)
		} else {
			fail("gemini selected but %s is not set", cfg.LLM.APIKeyEnv)
		}
	default:
		fail("unknown llm provider %q", cfg.LLM.Provider)
	}

	// Docker (only matters when configured, but always worth reporting)
	docker := executor.NewDocker(executor.Options{DockerImage: cfg.Executor.DockerImage})
	if docker.Available() {
		pass("docker available (image %s)", cfg.Executor.DockerImage)
	} else if cfg.Executor.Backend == config.BackendDocker {
		fail("executor backend is docker but no daemon responded")
	} else {
		warn("docker not available (backend %s keeps working)", cfg.Executor.Backend)
	}

	// Audit log
	auditPath := filepath.Join(state, "logs", "audit.jsonl")
	total, blockedEvents, err := auditLogStats(auditPath)
	switch {
	case os.IsNotExist(err):
		warn("audit log: none yet")
	case err != nil:
		warn("audit log unreadable: %v", err)
	default:
		pass("audit log: %d event(s), %d blocked", total, blockedEvents)
	}

	fmt.Println()
	if ok {
		fmt.Println(styles.Success.Render("All checks passed"))
		return nil
	}
	fmt.Println(styles.Warning.Render("Some issues remain, see above"))
	return fmt.Errorf("doctor found problems")
}

// auditLogStats scans the audit JSONL and tallies events.
func auditLogStats(path string) (total, blocked int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev executor.AuditEvent
		if json.Unmarshal(sc.Bytes(), &ev) != nil {
			continue
		}
		total++
		if ev.Type == executor.AuditBlocked {
			blocked++
		}
	}
	return total, blocked, sc.Err()
}
