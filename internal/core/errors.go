package core

import (
	"fmt"

	"drift/internal/plan"
)

// PolicyBlockedError reports a plan refused by the blocklist. Refusals are
// always attributable: the rule and the offending command index are named.
// A blocked plan is never retried and never overridable.
type PolicyBlockedError struct {
	// RuleID names the blocklist rule that fired.
	RuleID string
	// Pattern is the rule's pattern, for display.
	Pattern string
	// Command is the offending command line.
	Command string
	// Index is the command's position in the plan.
	Index int
}

func (e *PolicyBlockedError) Error() string {
	return fmt.Sprintf("command %d blocked by rule %s: %s", e.Index+1, e.RuleID, e.Command)
}

// ConfirmationError reports input that did not meet the confirmation
// strength the plan's risk demands. The caller may fix the cause and
// resubmit the whole plan; nothing was executed or recorded.
type ConfirmationError struct {
	// Risk is the overall verdict that set the required strength.
	Risk plan.Risk
	// Input is the literal line the user typed.
	Input string
	// Err is set when the confirmation callback itself failed.
	Err error
}

func (e *ConfirmationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("confirmation failed: %v", e.Err)
	}
	if e.Risk == plan.RiskHigh {
		return fmt.Sprintf("high-risk plan requires the literal YES, got %q", e.Input)
	}
	return fmt.Sprintf("confirmation rejected: %q", e.Input)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }
