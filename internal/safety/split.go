package safety

import (
	"context"
	"strings"

	"drift/internal/logging"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
)

// SplitCommand breaks a compound command into independently classifiable
// segments. It parses with the bash grammar first; when the parse fails or
// the grammar reports errors it falls back to a quote-aware scan over the
// shell connectors. The second return value reports whether a clean parse
// was obtained; callers treat a false as a reason to also match the whole
// string conservatively (which Classify does regardless).
func SplitCommand(command string) ([]string, bool) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return nil, true
	}

	if segments, ok := splitTreeSitter(trimmed); ok {
		return segments, true
	}

	logging.SafetyDebug("bash parse failed, falling back to connector scan: %q", trimmed)
	return splitConnectors(trimmed), false
}

// splitTreeSitter extracts every simple-command node from a bash parse
// tree. Commands nested in substitutions count as segments too, so
// `echo $(rm -rf /tmp/x)` yields both the echo and the rm.
func splitTreeSitter(command string) ([]string, bool) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(bash.GetLanguage())

	src := []byte(command)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, false
	}

	var segments []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "command" {
			if text := strings.TrimSpace(n.Content(src)); text != "" {
				segments = append(segments, text)
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)

	if len(segments) == 0 {
		return nil, false
	}
	return segments, true
}

// splitConnectors splits on ;, &&, ||, and | while respecting single and
// double quotes. It never errors; unterminated quotes simply keep the rest
// of the string in one segment.
func splitConnectors(command string) []string {
	var segments []string
	var current strings.Builder
	inSingle := false
	inDouble := false

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			segments = append(segments, s)
		}
		current.Reset()
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if ch == '\'' && !inDouble {
			inSingle = !inSingle
			current.WriteRune(ch)
			continue
		}
		if ch == '"' && !inSingle {
			inDouble = !inDouble
			current.WriteRune(ch)
			continue
		}
		if inSingle || inDouble {
			current.WriteRune(ch)
			continue
		}

		switch {
		case ch == '&' && i+1 < len(runes) && runes[i+1] == '&':
			flush()
			i++
		case ch == '|' && i+1 < len(runes) && runes[i+1] == '|':
			flush()
			i++
		case ch == '|':
			flush()
		case ch == ';':
			flush()
		default:
			current.WriteRune(ch)
		}
	}
	flush()

	return segments
}
