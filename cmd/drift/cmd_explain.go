package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"drift/internal/llm"
	"drift/internal/plan"
)

var explainCmd = &cobra.Command{
	Use:   "explain <command...>",
	Short: "Explain what a shell command does",
	Long: `Shows the safety classifier's verdict for the command, then asks
the model for a detailed explanation: what it does, flag by flag, and
what the risks are.

Example:
  drift explain "tar -xzvf backup.tar.gz"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	command := strings.Join(args, " ")
	verdict := app.classifier.Classify(command)

	fmt.Println()
	fmt.Printf("%s  %s\n", app.styles.Command.Render(command), app.styles.RiskBadge(verdict.Risk))
	if verdict.RuleID != "" {
		fmt.Println(app.styles.Muted.Render(fmt.Sprintf("matched rule %s: %s", verdict.RuleID, verdict.Pattern)))
	}
	if verdict.Risk == plan.RiskBlocked {
		fmt.Println(app.styles.Errorf("drift would refuse to run this command"))
	}
	fmt.Println()

	client, err := llm.NewFromConfig(cfg, app.classifier)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := ensureReachable(ctx, app, client); err != nil {
		return err
	}

	fmt.Println(app.styles.Muted.Render("Thinking..."))
	explanation, err := client.Explain(ctx, command)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(renderMarkdown(explanation))
	return nil
}

// renderMarkdown pretty-prints model output, falling back to the raw text
// when the terminal renderer cannot be built.
func renderMarkdown(text string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}
