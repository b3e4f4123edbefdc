package safety

import (
	"drift/internal/plan"
)

// PlanVerdict is the validation report for a whole plan.
type PlanVerdict struct {
	// Overall is blocked if any command is blocked, otherwise the maximum
	// tier among commands. An empty plan is low.
	Overall plan.Risk `json:"overall"`
	// PerCommand holds one verdict per plan command, in order.
	PerCommand []Verdict `json:"per_command"`
}

// Blocked reports whether any command in the plan is blocked.
func (pv PlanVerdict) Blocked() bool {
	return pv.Overall == plan.RiskBlocked
}

// FirstBlocked returns the index and verdict of the first blocked command,
// or (-1, zero) when none is.
func (pv PlanVerdict) FirstBlocked() (int, Verdict) {
	for i, v := range pv.PerCommand {
		if v.Blocked() {
			return i, v
		}
	}
	return -1, Verdict{}
}

// ValidatePlan classifies every command in the plan. Pure: the plan is
// never mutated and no error paths exist. An empty command list validates
// to low with an empty per-command list.
func ValidatePlan(c *Classifier, p plan.Plan) PlanVerdict {
	verdict := PlanVerdict{
		Overall:    plan.RiskLow,
		PerCommand: make([]Verdict, 0, len(p.Commands)),
	}

	for _, cmd := range p.Commands {
		v := c.Classify(cmd.Command)
		verdict.PerCommand = append(verdict.PerCommand, v)
		verdict.Overall = plan.MaxRisk(verdict.Overall, v.Risk)
	}

	return verdict
}
