package safety

import (
	"regexp"
	"strings"
	"sync"

	"drift/internal/logging"
	"drift/internal/plan"
)

// Verdict is the classification result for one command string.
type Verdict struct {
	// Risk is the final severity: the maximum over the whole string and
	// every split segment.
	Risk plan.Risk `json:"risk"`
	// RuleID names the rule that produced Risk. Empty only for low.
	RuleID string `json:"rule_id,omitempty"`
	// Pattern is the matching rule's pattern, for operator display.
	Pattern string `json:"pattern,omitempty"`
	// Segments carries the per-segment classification of a compound
	// command. Single-segment commands have one entry.
	Segments []SegmentVerdict `json:"segments,omitempty"`
	// CleanParse is false when the bash grammar could not parse the
	// command and the connector-scan fallback was used.
	CleanParse bool `json:"clean_parse"`
}

// SegmentVerdict classifies one segment of a compound command.
type SegmentVerdict struct {
	Segment string    `json:"segment"`
	Risk    plan.Risk `json:"risk"`
	RuleID  string    `json:"rule_id,omitempty"`
}

// Blocked reports whether the command may never execute.
func (v Verdict) Blocked() bool {
	return v.Risk == plan.RiskBlocked
}

// Classifier evaluates commands against the ordered rule tables. The zero
// value is not usable; construct with New. Safe for concurrent use; the
// rule set can be swapped at runtime by a rules-file reload.
type Classifier struct {
	mu      sync.RWMutex
	blocked []Rule
	high    []Rule
	medium  []Rule
}

// New returns a Classifier loaded with the built-in rule tables.
func New() *Classifier {
	return &Classifier{
		blocked: blocklistRules,
		high:    highRules,
		medium:  mediumRules,
	}
}

// LoadUserRules appends the rules from a YAML file to the built-in tables,
// replacing any previously loaded user rules. On any error, including a
// missing file, the current set stays untouched.
func (c *Classifier) LoadUserRules(path string) error {
	blocked, high, medium, err := loadUserRules(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = append(append([]Rule{}, blocklistRules...), blocked...)
	c.high = append(append([]Rule{}, highRules...), high...)
	c.medium = append(append([]Rule{}, mediumRules...), medium...)

	logging.Safety("loaded user rules from %s: %d blocked, %d high, %d medium",
		path, len(blocked), len(high), len(medium))
	return nil
}

// ResetUserRules restores the built-in tables.
func (c *Classifier) ResetUserRules() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = blocklistRules
	c.high = highRules
	c.medium = mediumRules
}

// RuleCount returns the number of active rules per tier, for diagnostics.
func (c *Classifier) RuleCount() (blocked, high, medium int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocked), len(c.high), len(c.medium)
}

// Classify evaluates a command. Tiers are strictly ordered and
// short-circuiting: blocklist, then high, then medium; no match is low.
// Compound commands are split and each segment classified independently;
// the whole string is also matched so patterns spanning a connector (pipe
// to shell) still fire. The final risk is the maximum over everything.
func (c *Classifier) Classify(command string) Verdict {
	normalized := normalize(command)
	if normalized == "" {
		return Verdict{Risk: plan.RiskLow, CleanParse: true}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	verdict := Verdict{Risk: plan.RiskLow, CleanParse: true}

	// Whole-string pass catches connector-spanning patterns and covers the
	// conservative case where splitting is unreliable.
	if tier, rule := c.matchTiers(normalized); rule != nil {
		verdict.Risk = tier
		verdict.RuleID = rule.ID
		verdict.Pattern = rule.Pattern
	}

	segments, clean := SplitCommand(command)
	verdict.CleanParse = clean

	for _, seg := range segments {
		sv := SegmentVerdict{Segment: seg, Risk: plan.RiskLow}
		if tier, rule := c.matchTiers(normalize(seg)); rule != nil {
			sv.Risk = tier
			sv.RuleID = rule.ID
			if tier > verdict.Risk {
				verdict.Risk = tier
				verdict.RuleID = rule.ID
				verdict.Pattern = rule.Pattern
			}
		}
		verdict.Segments = append(verdict.Segments, sv)
	}

	if verdict.Risk >= plan.RiskHigh {
		logging.Safety("classified %s: %q (rule %s)", verdict.Risk, normalized, verdict.RuleID)
	}
	return verdict
}

// matchTiers runs the ordered short-circuit over one normalized string.
// Callers hold at least a read lock.
func (c *Classifier) matchTiers(normalized string) (plan.Risk, *Rule) {
	for i := range c.blocked {
		if c.blocked[i].Matches(normalized) {
			return plan.RiskBlocked, &c.blocked[i]
		}
	}
	for i := range c.high {
		if c.high[i].Matches(normalized) {
			return plan.RiskHigh, &c.high[i]
		}
	}
	for i := range c.medium {
		if c.medium[i].Matches(normalized) {
			return plan.RiskMedium, &c.medium[i]
		}
	}
	return plan.RiskLow, nil
}

var spaceRun = regexp.MustCompile(`\s+`)

// normalize collapses whitespace runs to single spaces so repeated spaces
// or tabs cannot slip a token past a pattern.
func normalize(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
