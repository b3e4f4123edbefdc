package plan

import (
	"encoding/json"
	"testing"
)

func TestParseRisk(t *testing.T) {
	cases := []struct {
		in   string
		want Risk
	}{
		{"low", RiskLow},
		{"LOW", RiskLow},
		{"medium", RiskMedium},
		{"moderate", RiskMedium},
		{"high", RiskHigh},
		{" High ", RiskHigh},
		{"blocked", RiskBlocked},
		{"", RiskMedium},
		{"catastrophic", RiskMedium},
	}

	for _, c := range cases {
		if got := ParseRisk(c.in); got != c.want {
			t.Errorf("ParseRisk(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestRiskOrdering(t *testing.T) {
	if !(RiskLow < RiskMedium && RiskMedium < RiskHigh && RiskHigh < RiskBlocked) {
		t.Fatalf("risk tiers are not strictly ordered: %d %d %d %d",
			RiskLow, RiskMedium, RiskHigh, RiskBlocked)
	}

	if got := MaxRisk(RiskLow, RiskBlocked); got != RiskBlocked {
		t.Errorf("MaxRisk(low, blocked) = %v, want blocked", got)
	}
	if got := MaxRisk(RiskHigh, RiskMedium); got != RiskHigh {
		t.Errorf("MaxRisk(high, medium) = %v, want high", got)
	}
}

func TestRiskJSON(t *testing.T) {
	data, err := json.Marshal(RiskHigh)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"high"` {
		t.Errorf("Expected \"high\", got %s", data)
	}

	var r Risk
	if err := json.Unmarshal([]byte(`"BLOCKED"`), &r); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if r != RiskBlocked {
		t.Errorf("Expected blocked, got %v", r)
	}

	if err := json.Unmarshal([]byte(`42`), &r); err == nil {
		t.Error("Expected error for non-string risk, got nil")
	}
}

func TestPlanRunnable(t *testing.T) {
	p := Plan{
		Summary:  "list files",
		Risk:     RiskLow,
		Commands: []Command{{Command: "ls -la"}},
	}
	if !p.Runnable() {
		t.Error("Expected plan with commands to be runnable")
	}

	p.Clarification = []Question{{Question: "which directory?"}}
	if p.Runnable() {
		t.Error("Expected plan with open questions to not be runnable")
	}

	empty := Plan{Summary: "nothing"}
	if empty.Runnable() {
		t.Error("Expected empty plan to not be runnable")
	}
}
