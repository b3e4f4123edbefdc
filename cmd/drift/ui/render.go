package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"drift/internal/executor"
	"drift/internal/history"
	"drift/internal/plan"
	"drift/internal/safety"
	"drift/internal/snapshot"
)

const queryDisplayWidth = 40

// Table renders static rows with computed column widths.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow appends a row. Cells may carry ANSI styling; widths use the
// printable width.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// View renders the table.
func (t *Table) View(styles Styles) string {
	if len(t.Rows) == 0 {
		return ""
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := lipgloss.Width(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	var sb strings.Builder
	headerStyle := styles.Bold

	for i, h := range t.Headers {
		sb.WriteString(headerStyle.Render(pad(h, widths[i])))
		if i < len(t.Headers)-1 {
			sb.WriteString("  ")
		}
	}
	sb.WriteString("\n")

	total := 0
	for _, w := range widths {
		total += w
	}
	total += 2 * (len(t.Headers) - 1)
	sb.WriteString(styles.Muted.Render(strings.Repeat("─", total)))
	sb.WriteString("\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				sb.WriteString(pad(cell, widths[i]))
				if i < len(row)-1 {
					sb.WriteString("  ")
				}
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// pad right-pads by printable width so styled cells line up.
func pad(cell string, width int) string {
	gap := width - lipgloss.Width(cell)
	if gap <= 0 {
		return cell
	}
	return cell + strings.Repeat(" ", gap)
}

// RenderPlan formats a plan for review before confirmation. The verdict
// supplies per-command tiers so each line shows what the classifier said,
// not what the model claimed. Explanation renders only when verbose.
func (s Styles) RenderPlan(p plan.Plan, verdict safety.PlanVerdict, verbose bool) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(s.Title.Render(p.Summary))
	sb.WriteString("  ")
	sb.WriteString(s.RiskBadge(verdict.Overall))
	sb.WriteString("\n\n")

	table := NewTable("#", "Command", "Description")
	for i, cmd := range p.Commands {
		style := s.Command
		if i < len(verdict.PerCommand) {
			style = s.RiskStyle(verdict.PerCommand[i].Risk)
		}
		table.AddRow(
			s.Muted.Render(fmt.Sprintf("%d", i+1)),
			style.Render(cmd.Command),
			cmd.Description,
		)
	}
	sb.WriteString(table.View(s))

	if verbose && p.Explanation != "" {
		sb.WriteString("\n")
		sb.WriteString(s.Bold.Render("Explanation"))
		sb.WriteString("\n")
		sb.WriteString(p.Explanation)
		sb.WriteString("\n")
	}

	if len(p.AffectedFiles) > 0 {
		sb.WriteString("\n")
		sb.WriteString(s.Muted.Render("Affects: " + strings.Join(p.AffectedFiles, ", ")))
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderResults formats per-command execution results. Skipped commands
// get a one-line marker; everything else shows exit status and captured
// output.
func (s Styles) RenderResults(results []*executor.ExecutionResult) string {
	var sb strings.Builder

	for _, r := range results {
		switch {
		case r.Skipped:
			sb.WriteString(s.Muted.Render(fmt.Sprintf("○ skipped: %s", r.Command)))
			sb.WriteString("\n")
			continue
		case r.Simulated:
			sb.WriteString(s.Info.Render("≈ ") + r.Command)
			sb.WriteString("\n")
		case r.Failed():
			sb.WriteString(s.Error.Render("✗ ") + r.Command)
			sb.WriteString(s.Muted.Render(fmt.Sprintf("  (exit %d, %s)", r.ExitCode, r.Duration.Round(time.Millisecond))))
			sb.WriteString("\n")
		default:
			sb.WriteString(s.Success.Render("✓ ") + r.Command)
			sb.WriteString(s.Muted.Render(fmt.Sprintf("  (%s)", r.Duration.Round(time.Millisecond))))
			sb.WriteString("\n")
		}

		if out := strings.TrimRight(r.Stdout, "\n"); out != "" {
			sb.WriteString(indent(out))
			sb.WriteString("\n")
		}
		if errOut := strings.TrimRight(r.Stderr, "\n"); errOut != "" {
			sb.WriteString(indent(s.Muted.Render(errOut)))
			sb.WriteString("\n")
		}
		if r.Killed {
			sb.WriteString(indent(s.Error.Render("killed: " + r.KillReason)))
			sb.WriteString("\n")
		}
		if r.Error != "" {
			sb.WriteString(indent(s.Error.Render(r.Error)))
			sb.WriteString("\n")
		}
		if r.Truncated {
			sb.WriteString(indent(s.Muted.Render(fmt.Sprintf("output truncated (%d bytes dropped)", r.TruncatedBytes))))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// RenderHistory formats recent records newest-first.
func (s Styles) RenderHistory(records []*history.Record) string {
	if len(records) == 0 {
		return s.Muted.Render("No history yet.") + "\n"
	}

	table := NewTable("Time", "Query", "Status", "Risk")
	for _, rec := range records {
		status := s.Muted.Render("○")
		switch {
		case rec.Blocked:
			status = s.RiskBlocked.Render("✗")
		case rec.Executed:
			status = s.Success.Render("✓")
		}

		table.AddRow(
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncate(rec.Query, queryDisplayWidth),
			status,
			s.RiskStyle(rec.Plan.Risk).Render(rec.Plan.Risk.String()),
		)
	}

	return table.View(s)
}

// RenderRestore summarizes what an undo did.
func (s Styles) RenderRestore(report *snapshot.RestoreReport) string {
	var sb strings.Builder

	sb.WriteString(s.Successf("restored snapshot %.8s", report.SnapshotID))
	sb.WriteString("\n")
	for _, p := range report.Restored {
		sb.WriteString(fmt.Sprintf("  restored  %s\n", p))
	}
	for _, p := range report.Deleted {
		sb.WriteString(fmt.Sprintf("  removed   %s\n", p))
	}
	for _, p := range report.Skipped {
		sb.WriteString(s.Muted.Render(fmt.Sprintf("  unchanged %s", p)) + "\n")
	}

	return sb.String()
}

func truncate(v string, max int) string {
	runes := []rune(v)
	if len(runes) <= max {
		return v
	}
	return string(runes[:max-1]) + "…"
}

func indent(v string) string {
	lines := strings.Split(v, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
