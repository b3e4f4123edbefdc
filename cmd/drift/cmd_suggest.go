package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"drift/internal/config"
	"drift/internal/core"
	"drift/internal/llm"
	"drift/internal/memory"
	"drift/internal/plan"
	"drift/internal/safety"
)

// Suggest flags, shared with the root command so a bare
// `drift -e "query"` behaves like `drift suggest -e "query"`.
var (
	executeNow bool
	dryRun     bool
	noMemory   bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <query...>",
	Short: "Turn a natural language query into a reviewed shell plan",
	Long: `Generates a shell plan for the query, classifies every command
against the safety rules, and asks for confirmation proportional to the
risk before executing. Plans that touch files are snapshotted first.

Examples:
  drift suggest "delete all .pyc files under src"
  drift suggest -d "rename every .jpeg to .jpg"
  drift suggest -e "show disk usage by directory"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSuggest,
}

var findCmd = &cobra.Command{
	Use:   "find <query...>",
	Short: "Smart file and content search",
	Long: `Search wrapper around suggest: steers the model toward read-only
commands like find, rg, grep, fd, and ls.

Example:
  drift find "that yaml file with the retry settings"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := fmt.Sprintf(
			"Find: %s. Use safe read-only commands like 'find', 'rg', 'grep', 'fd', or 'ls'. Do not modify any files.",
			strings.Join(args, " "))
		return suggest(query)
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, suggestCmd, findCmd} {
		c.Flags().BoolVarP(&executeNow, "execute", "e", false, "Execute without asking for confirmation")
		c.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Show the plan, run nothing")
		c.Flags().BoolVar(&noMemory, "no-memory", false, "Disable personalization for this query")
	}
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(findCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	return suggest(strings.Join(args, " "))
}

func suggest(query string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	autoCleanupSnapshots(app)

	var mem *memory.Store
	if !noMemory {
		mem, err = memory.Open(config.StateDir())
		if err != nil {
			logger.Warn("memory disabled", zap.Error(err))
			mem = nil
		}
	}
	mem.RecordQuery(query)

	client, err := llm.NewFromConfig(cfg, app.classifier)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := ensureReachable(ctx, app, client); err != nil {
		return err
	}

	contextBlock := promptContext(mem)

	fmt.Println(app.styles.Muted.Render("Thinking..."))
	p, err := client.GeneratePlan(ctx, query, contextBlock)
	if err != nil {
		return err
	}

	if len(p.Clarification) > 0 {
		answers, err := app.prompt.AskClarification(p.Clarification)
		if err != nil {
			return err
		}

		var sb strings.Builder
		sb.WriteString(contextBlock)
		sb.WriteString("\n\nClarifications:\n")
		for i, q := range p.Clarification {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", q.Question, answers[i])
		}

		fmt.Println(app.styles.Muted.Render("Re-analyzing..."))
		p, err = client.GeneratePlan(ctx, query, sb.String())
		if err != nil {
			return err
		}
	}

	if !p.Runnable() {
		return errors.New("the model returned no runnable commands")
	}

	return runPlan(ctx, app, mem, query, *p)
}

// runPlan drives a plan through review, confirmation, and execution, and
// renders what happened. Shared by suggest and again.
func runPlan(ctx context.Context, app *app, mem *memory.Store, query string, p plan.Plan) error {
	verdict := app.orch.Validate(p)
	fmt.Print(app.styles.RenderPlan(p, verdict, verbose))
	fmt.Println()

	if dryRun {
		cfg.ForceDryRun = true
	}

	confirm := app.prompt.Confirm
	if executeNow {
		confirm = autoConfirm
	}

	out, runErr := app.orch.Run(ctx, query, p, confirm)
	return renderOutcome(app, mem, p, out, runErr)
}

// autoConfirm supplies the confirmation the risk tier demands, for -e.
func autoConfirm(v safety.PlanVerdict) (string, error) {
	if v.Overall == plan.RiskHigh {
		return "YES", nil
	}
	return "y", nil
}

// renderOutcome turns the orchestrator's outcome into terminal output and
// an exit decision, and teaches the memory store what happened.
func renderOutcome(app *app, mem *memory.Store, p plan.Plan, out *core.Outcome, runErr error) error {
	if runErr != nil {
		var blocked *core.PolicyBlockedError
		var rejected *core.ConfirmationError
		switch {
		case errors.As(runErr, &blocked):
			mem.Learn(p, false, false)
			fmt.Println(app.styles.Errorf("commands blocked for safety, aborting"))
			return runErr
		case errors.As(runErr, &rejected):
			mem.Learn(p, false, false)
			fmt.Println(app.styles.Infof("Cancelled"))
			return nil
		default:
			return runErr
		}
	}

	if out.State == core.StateCancelled {
		// Dry run stops the pipeline before confirmation.
		mem.Learn(p, false, false)
		fmt.Println(app.styles.Infof("%s", out.Reason))
		return nil
	}

	rec := out.Record
	fmt.Print(app.styles.RenderResults(rec.Results))

	success := true
	for _, r := range rec.Results {
		if r.Failed() {
			success = false
			break
		}
	}
	mem.Learn(p, true, success)

	fmt.Println()
	if success {
		fmt.Println(app.styles.Successf("Done"))
	} else {
		fmt.Println(app.styles.Errorf("some commands failed, remaining ones were skipped"))
	}

	if rec.SnapshotID != "" && success {
		fmt.Println(app.styles.Muted.Render(fmt.Sprintf("Snapshot: %.8s… (drift undo to rollback)", rec.SnapshotID)))
	}

	if !success {
		return errors.New("plan failed")
	}
	return nil
}

// ensureReachable pre-checks an ollama backend so the user gets fix-it
// steps instead of a cold connection error. Hosted providers skip this.
func ensureReachable(ctx context.Context, app *app, client llm.Client) error {
	oc, ok := client.(*llm.OllamaClient)
	if !ok || oc.Available(ctx) {
		return nil
	}
	fmt.Println(app.styles.Errorf("cannot reach ollama at %s", cfg.LLM.OllamaURL))
	fmt.Println("  1. Install Ollama  → https://ollama.com")
	fmt.Println("  2. Start it        → ollama serve")
	fmt.Printf("  3. Pull the model  → ollama pull %s\n", cfg.LLM.Model)
	return errors.New("ollama unavailable")
}

// promptContext assembles the context block sent with the query.
func promptContext(mem *memory.Store) string {
	var parts []string
	if wd, err := os.Getwd(); err == nil {
		parts = append(parts, "cwd: "+wd)
	}
	if pc := mem.PromptContext(); pc != "" {
		parts = append(parts, pc)
	}
	return strings.Join(parts, "\n\n")
}

// autoCleanupSnapshots silently prunes when the store has grown past the
// unattended threshold. Failures never interrupt the query.
func autoCleanupSnapshots(app *app) {
	snaps, err := app.snapshots.List()
	if err != nil || len(snaps) <= autoCleanupThreshold {
		return
	}
	if n, err := app.orch.Cleanup(autoCleanupKeep, autoCleanupMaxAgeDays); err == nil && n > 0 {
		logger.Debug("auto-pruned snapshots", zap.Int("deleted", n))
	}
}

// signalContext cancels on SIGINT/SIGTERM so an in-flight LLM request or
// confirmation wait dies cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()
	return ctx, cancel
}
