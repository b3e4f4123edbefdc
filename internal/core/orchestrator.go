// Package core drives a plan from validation through execution to its
// history record. One orchestrator runs one plan at a time; within a plan,
// commands execute sequentially because later ones may depend on the side
// effects of earlier ones.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"drift/internal/config"
	"drift/internal/executor"
	"drift/internal/history"
	"drift/internal/logging"
	"drift/internal/plan"
	"drift/internal/safety"
	"drift/internal/snapshot"
)

// State identifies where in its life a plan run ended up.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateBlocked
	StateAwaitingConfirmation
	StateCancelled
	StateSnapshotting
	StateExecuting
	StateRecorded
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateBlocked:
		return "blocked"
	case StateAwaitingConfirmation:
		return "awaiting-confirmation"
	case StateCancelled:
		return "cancelled"
	case StateSnapshotting:
		return "snapshotting"
	case StateExecuting:
		return "executing"
	case StateRecorded:
		return "recorded"
	default:
		return "unknown"
	}
}

// ConfirmFunc asks the user to approve a plan and returns the literal line
// they typed. The orchestrator judges the line; the callback never does.
type ConfirmFunc func(v safety.PlanVerdict) (string, error)

// Outcome reports how a run ended.
type Outcome struct {
	// State is the terminal state the run reached.
	State State
	// Verdict is the safety classification of the plan.
	Verdict safety.PlanVerdict
	// Record is the history entry written for blocked and executed runs.
	Record *history.Record
	// Reason explains cancelled outcomes.
	Reason string
}

// Orchestrator wires the classifier, snapshot store, history store, and
// executor into the run/undo/cleanup surface.
type Orchestrator struct {
	cfg        *config.Config
	classifier *safety.Classifier
	snapshots  *snapshot.Store
	history    *history.Store
	exec       executor.Executor
	audit      *executor.Auditor
}

// New creates an orchestrator over the given collaborators.
func New(cfg *config.Config, classifier *safety.Classifier, snapshots *snapshot.Store, hist *history.Store, exec executor.Executor, audit *executor.Auditor) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		snapshots:  snapshots,
		history:    hist,
		exec:       exec,
		audit:      audit,
	}
}

// Validate classifies every command in the plan.
func (o *Orchestrator) Validate(p plan.Plan) safety.PlanVerdict {
	return safety.ValidatePlan(o.classifier, p)
}

// Confirmed reports whether input meets the strength the risk demands.
// High risk accepts exactly the literal "YES" and nothing else; low and
// medium accept a simple affirmative. Blocked never confirms.
func Confirmed(risk plan.Risk, input string) bool {
	switch risk {
	case plan.RiskBlocked:
		return false
	case plan.RiskHigh:
		return input == "YES"
	default:
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

// Run drives one plan to a terminal state. Blocked plans are recorded and
// returned as *PolicyBlockedError; rejected confirmations return
// *ConfirmationError with nothing recorded; a snapshot failure aborts
// before any command runs. An executed plan always produces exactly one
// history record, whatever the individual exit codes.
func (o *Orchestrator) Run(ctx context.Context, query string, p plan.Plan, confirm ConfirmFunc) (*Outcome, error) {
	out := &Outcome{State: StateReceived}

	if !p.Runnable() {
		return out, fmt.Errorf("plan is not runnable: %d commands, %d clarification questions",
			len(p.Commands), len(p.Clarification))
	}

	out.Verdict = o.Validate(p)
	out.State = StateValidated
	logging.CoreDebug("validated %d commands: overall %s", len(p.Commands), out.Verdict.Overall)

	if out.Verdict.Blocked() {
		idx, v := out.Verdict.FirstBlocked()
		cmd := p.Commands[idx].Command
		o.audit.LogBlocked(cmd, v.RuleID)

		rec := &history.Record{Query: query, Plan: p, Blocked: true}
		if err := o.history.Append(rec); err != nil {
			logging.Core("failed to record blocked plan: %v", err)
		} else {
			out.Record = rec
		}

		out.State = StateBlocked
		logging.Core("blocked by %s: %s", v.RuleID, cmd)
		return out, &PolicyBlockedError{
			RuleID:  v.RuleID,
			Pattern: v.Pattern,
			Command: cmd,
			Index:   idx,
		}
	}

	if o.cfg.ForceDryRun {
		out.State = StateCancelled
		out.Reason = "dry run: confirmation and execution skipped"
		logging.Core("dry run, stopping before confirmation")
		return out, nil
	}

	out.State = StateAwaitingConfirmation
	if confirm == nil {
		out.State = StateCancelled
		return out, &ConfirmationError{Risk: out.Verdict.Overall, Err: errors.New("no confirmation callback")}
	}
	input, err := confirm(out.Verdict)
	if err != nil {
		out.State = StateCancelled
		return out, &ConfirmationError{Risk: out.Verdict.Overall, Err: err}
	}
	if !Confirmed(out.Verdict.Overall, input) {
		out.State = StateCancelled
		out.Reason = "confirmation rejected"
		logging.Core("confirmation rejected for %s plan: %q", out.Verdict.Overall, input)
		return out, &ConfirmationError{Risk: out.Verdict.Overall, Input: input}
	}

	var snapshotID string
	if len(p.AffectedFiles) > 0 || o.cfg.Safety.AutoSnapshot {
		out.State = StateSnapshotting
		snap, err := o.snapshots.Create(ctx, p.AffectedFiles)
		if err != nil {
			out.State = StateCancelled
			out.Reason = "snapshot failed"
			logging.Core("snapshot failed, refusing to execute unprotected: %v", err)
			return out, fmt.Errorf("snapshot before execution: %w", err)
		}
		snapshotID = snap.ID
		logging.Core("snapshot %s protects %d paths", snap.ID, len(snap.Files))
	}

	out.State = StateExecuting
	results := make([]*executor.ExecutionResult, 0, len(p.Commands))
	failed := false
	for i, cmd := range p.Commands {
		if failed {
			results = append(results, executor.SkippedResult(cmd))
			continue
		}

		res, err := o.exec.Execute(ctx, cmd)
		if err != nil {
			res = &executor.ExecutionResult{
				Command:   cmd.Command,
				ExitCode:  -1,
				StartedAt: time.Now(),
				Error:     err.Error(),
			}
		}
		results = append(results, res)

		if res.Failed() {
			logging.Core("command %d failed, skipping %d remaining", i+1, len(p.Commands)-i-1)
			failed = true
		}
	}

	rec := &history.Record{
		Query:      query,
		Plan:       p,
		Executed:   true,
		Results:    results,
		SnapshotID: snapshotID,
	}
	if err := o.history.Append(rec); err != nil {
		return out, fmt.Errorf("failed to record executed plan: %w", err)
	}

	out.State = StateRecorded
	out.Record = rec
	logging.Core("recorded plan %d: %d commands, snapshot %q", rec.ID, len(results), snapshotID)
	return out, nil
}

// Undo restores the most recent snapshot that has not been consumed yet,
// then consumes it so the next undo reaches the one before.
func (o *Orchestrator) Undo(ctx context.Context) (*snapshot.RestoreReport, error) {
	snap, err := o.snapshots.LatestUnconsumed()
	if err != nil {
		return nil, err
	}

	logging.Core("undoing via snapshot %s (%d files)", snap.ID, len(snap.Files))
	report, err := o.snapshots.Restore(snap.ID)
	if err != nil {
		return nil, err
	}

	if err := o.snapshots.Consume(snap.ID); err != nil {
		return report, fmt.Errorf("restored but could not consume snapshot %s: %w", snap.ID, err)
	}
	return report, nil
}

// Cleanup prunes old snapshots per the retention arguments. History
// records are never touched; a pruned snapshot just makes its record's
// undo inapplicable.
func (o *Orchestrator) Cleanup(keepNewest, olderThanDays int) (int, error) {
	return o.snapshots.Prune(keepNewest, time.Duration(olderThanDays)*24*time.Hour)
}
