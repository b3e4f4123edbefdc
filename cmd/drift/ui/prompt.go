package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"drift/internal/plan"
	"drift/internal/safety"
)

// Prompter reads interactive answers. The confirmation path hands the
// typed line back verbatim so the caller's risk gate sees exactly what the
// user typed, including case and surrounding whitespace.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	styles Styles
}

// NewPrompter reads from stdin and writes to stdout.
func NewPrompter(styles Styles) *Prompter {
	return &Prompter{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		styles: styles,
	}
}

// readLine returns one input line without its trailing newline. Nothing
// else is stripped.
func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// Confirm shows the risk-appropriate execution prompt and returns the
// literal line the user typed.
func (p *Prompter) Confirm(v safety.PlanVerdict) (string, error) {
	if v.Overall == plan.RiskHigh {
		fmt.Fprintln(p.out, p.styles.RiskHigh.Render("⚠ HIGH RISK: review commands carefully"))
		fmt.Fprint(p.out, p.styles.Bold.Render("Type 'YES' to proceed: "))
	} else {
		fmt.Fprint(p.out, p.styles.Bold.Render("Execute? [y/N]: "))
	}
	return p.readLine()
}

// YesNo asks a plain yes/no question, defaulting to no.
func (p *Prompter) YesNo(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// AskClarification walks the model's questions and collects one answer
// per question. Questions with options accept a 1-based choice number;
// anything else is taken as a free-form answer.
func (p *Prompter) AskClarification(questions []plan.Question) ([]string, error) {
	fmt.Fprintln(p.out, p.styles.Warning.Render("Need clarification:"))
	fmt.Fprintln(p.out)

	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		fmt.Fprintln(p.out, p.styles.Bold.Render(q.Question))
		for i, option := range q.Options {
			fmt.Fprintf(p.out, "  %d. %s\n", i+1, option)
		}
		if len(q.Options) > 0 {
			fmt.Fprint(p.out, "Choice: ")
		} else {
			fmt.Fprint(p.out, "> ")
		}

		line, err := p.readLine()
		if err != nil {
			return nil, err
		}
		answers = append(answers, resolveAnswer(q, line))
		fmt.Fprintln(p.out)
	}

	return answers, nil
}

// resolveAnswer maps a numeric choice onto its option text when one
// applies, otherwise keeps the raw answer.
func resolveAnswer(q plan.Question, line string) string {
	answer := strings.TrimSpace(line)
	if len(q.Options) == 0 {
		return answer
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1]
	}
	return answer
}
