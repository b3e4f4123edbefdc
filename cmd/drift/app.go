package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"drift/cmd/drift/ui"
	"drift/internal/config"
	"drift/internal/core"
	"drift/internal/executor"
	"drift/internal/history"
	"drift/internal/safety"
	"drift/internal/snapshot"
)

// app is the wired pipeline behind every command that classifies, runs,
// or records plans. Built per invocation; Close releases the stores.
type app struct {
	cfg        *config.Config
	classifier *safety.Classifier
	snapshots  *snapshot.Store
	history    *history.Store
	audit      *executor.Auditor
	exec       executor.Executor
	orch       *core.Orchestrator
	styles     ui.Styles
	prompt     *ui.Prompter
}

func openApp() (*app, error) {
	classifier := safety.New()
	if path := cfg.Safety.UserRulesFile; path != "" {
		if err := classifier.LoadUserRules(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load user rules: %w", err)
		}
	}

	snaps, err := snapshot.NewStore(cfg.Snapshots.Dir, snapshotRoot())
	if err != nil {
		return nil, err
	}

	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, err
	}

	audit := executor.NewAuditor()
	auditPath := filepath.Join(config.StateDir(), "logs", "audit.jsonl")
	if err := audit.EnableFile(auditPath); err != nil {
		logger.Warn("audit log disabled", zap.String("path", auditPath), zap.Error(err))
	}

	exec := executor.FromConfig(cfg, audit)
	styles := ui.NewStyles()

	return &app{
		cfg:        cfg,
		classifier: classifier,
		snapshots:  snaps,
		history:    hist,
		audit:      audit,
		exec:       exec,
		orch:       core.New(cfg, classifier, snaps, hist, exec, audit),
		styles:     styles,
		prompt:     ui.NewPrompter(styles),
	}, nil
}

func (a *app) Close() {
	if a.history != nil {
		_ = a.history.Close()
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
}

// snapshotRoot is the widest directory undo may write into: the sandbox
// root when the executor is confined, otherwise the user's home.
func snapshotRoot() string {
	if cfg.Executor.SandboxRoot != "" {
		return cfg.Executor.SandboxRoot
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/"
	}
	return home
}
