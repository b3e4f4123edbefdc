// Package plan defines the data model shared by the safety, execution, and
// history layers: a Plan is an ordered batch of shell commands proposed by
// the upstream generator, plus the metadata needed to judge it, confirm it,
// and reverse it.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Risk is the severity tier assigned to a single command or a whole plan.
// Tiers are strictly ordered; aggregation always takes the maximum, so a
// compound command can never smuggle a severe sub-command behind a mild one.
type Risk int

const (
	// RiskLow matched no rule at any tier.
	RiskLow Risk = iota
	// RiskMedium implies mutation without elevated privilege (writes,
	// installs, moves).
	RiskMedium
	// RiskHigh implies irreversible or privileged effect (sudo, unscoped
	// deletion, destructive package operations).
	RiskHigh
	// RiskBlocked matched the hard blocklist. Terminal; carries no override.
	RiskBlocked
)

// String returns the lowercase wire form of the tier.
func (r Risk) String() string {
	switch r {
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskBlocked:
		return "blocked"
	default:
		return "low"
	}
}

// ParseRisk maps a wire string to a Risk. Unknown values parse to
// RiskMedium so a malformed generator cannot understate severity.
func ParseRisk(s string) Risk {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow
	case "medium", "moderate":
		return RiskMedium
	case "high":
		return RiskHigh
	case "blocked":
		return RiskBlocked
	default:
		return RiskMedium
	}
}

// MaxRisk returns the more severe of a and b.
func MaxRisk(a, b Risk) Risk {
	if b > a {
		return b
	}
	return a
}

// MarshalJSON encodes the tier as its lowercase word.
func (r Risk) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts any case and maps unknown tiers through ParseRisk.
func (r *Risk) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("risk must be a string: %w", err)
	}
	*r = ParseRisk(s)
	return nil
}

// Command is a single proposed shell invocation. Immutable once produced by
// the generator.
type Command struct {
	// Command is the raw shell string.
	Command string `json:"command" yaml:"command"`
	// Description is an optional human-readable summary of the effect.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// DryRun is an optional non-mutating preview form (e.g. rsync -n).
	DryRun string `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// Question asks the user to resolve an ambiguity before a runnable plan can
// be produced. A plan carrying questions is mutually exclusive with a
// runnable command list.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// Plan is the unit the orchestrator consumes: an ordered command batch with
// the generator's own risk estimate and the files it expects to touch.
type Plan struct {
	Summary       string     `json:"summary"`
	Risk          Risk       `json:"risk"`
	Commands      []Command  `json:"commands"`
	Explanation   string     `json:"explanation,omitempty"`
	AffectedFiles []string   `json:"affected_files,omitempty"`
	Clarification []Question `json:"clarification_needed,omitempty"`
}

// Runnable reports whether the plan has commands and no open clarification
// questions.
func (p Plan) Runnable() bool {
	return len(p.Commands) > 0 && len(p.Clarification) == 0
}

// CommandStrings returns the raw command strings in order.
func (p Plan) CommandStrings() []string {
	out := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		out[i] = c.Command
	}
	return out
}
