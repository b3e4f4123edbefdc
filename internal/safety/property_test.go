package safety

import (
	"strings"
	"testing"

	"drift/internal/plan"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var (
	safeCommands = []string{
		"ls -la",
		"pwd",
		"git status",
		"echo hello",
		"df -h",
	}
	riskyCommands = []string{
		"rm old.log",
		"mv a.txt b.txt",
		"pip install requests",
		"echo hi > notes.txt",
		"sudo apt-get update",
		"kill -9 123",
	}
	blockedCommands = []string{
		"rm -rf /",
		"mkfs.ext4 /dev/sda",
		"dd if=/dev/zero of=/dev/sda",
		"chmod 777 /",
		"eval $X",
	}
	connectors = []string{"; ", " && ", " || ", " | "}
)

func mixedCommands() []string {
	var out []string
	out = append(out, safeCommands...)
	out = append(out, riskyCommands...)
	out = append(out, blockedCommands...)
	return out
}

// A blocked command is blocked no matter what it is chained with or where
// in the chain it sits.
func TestProperty_BlockedSurvivesChaining(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	c := New()

	properties.Property("blocked command stays blocked in any chain", prop.ForAll(
		func(si, bi, ci int, blockedFirst bool) bool {
			safe := safeCommands[si]
			bad := blockedCommands[bi]
			conn := connectors[ci]

			var compound string
			if blockedFirst {
				compound = bad + conn + safe
			} else {
				compound = safe + conn + bad
			}
			return c.Classify(compound).Blocked()
		},
		gen.IntRange(0, len(safeCommands)-1),
		gen.IntRange(0, len(blockedCommands)-1),
		gen.IntRange(0, len(connectors)-1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Chaining two commands never yields a lower risk than either command on
// its own.
func TestProperty_ChainRiskIsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	c := New()
	commands := mixedCommands()

	properties.Property("chain risk >= each part's risk", prop.ForAll(
		func(ai, bi, ci int) bool {
			a, b := commands[ai], commands[bi]
			compound := a + connectors[ci] + b

			got := c.Classify(compound).Risk
			floor := plan.MaxRisk(c.Classify(a).Risk, c.Classify(b).Risk)
			return got >= floor
		},
		gen.IntRange(0, len(mixedCommands())-1),
		gen.IntRange(0, len(mixedCommands())-1),
		gen.IntRange(0, len(connectors)-1),
	))

	properties.TestingRun(t)
}

// Widening the whitespace between tokens never changes the verdict.
func TestProperty_WhitespaceInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	c := New()
	commands := mixedCommands()

	properties.Property("risk is whitespace invariant", prop.ForAll(
		func(i, width int, useTabs bool) bool {
			command := commands[i]

			filler := strings.Repeat(" ", width)
			if useTabs {
				filler = strings.Repeat("\t", width)
			}
			inflated := strings.ReplaceAll(command, " ", filler)

			return c.Classify(inflated).Risk == c.Classify(command).Risk
		},
		gen.IntRange(0, len(mixedCommands())-1),
		gen.IntRange(1, 4),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// User rules extend the built-in tables; loading them can raise a verdict
// but never lower one.
func TestProperty_UserRulesOnlyRaise(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	base := New()
	extended := New()
	path := writeRules(t, `rules:
  - id: no-prod-deploy
    tier: blocked
    pattern: deploy\s+--prod
  - id: no-netcat
    tier: high
    pattern: nc\s+
  - id: remote-copy
    tier: medium
    pattern: scp\s+
`)
	if err := extended.LoadUserRules(path); err != nil {
		t.Fatalf("LoadUserRules: %v", err)
	}

	commands := append(mixedCommands(),
		"deploy --prod",
		"nc -l 4444",
		"scp file host:/tmp",
	)

	properties.Property("extended verdict >= base verdict", prop.ForAll(
		func(i int) bool {
			command := commands[i]
			return extended.Classify(command).Risk >= base.Classify(command).Risk
		},
		gen.IntRange(0, len(commands)-1),
	))

	properties.TestingRun(t)
}

// A plan's overall risk is exactly the maximum over its commands.
func TestProperty_PlanRiskIsMax(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	c := New()
	commands := mixedCommands()

	properties.Property("overall equals max per-command risk", prop.ForAll(
		func(indices []int) bool {
			p := plan.Plan{}
			for _, i := range indices {
				p.Commands = append(p.Commands, plan.Command{Command: commands[i]})
			}

			pv := ValidatePlan(c, p)
			if len(pv.PerCommand) != len(p.Commands) {
				return false
			}

			max := plan.RiskLow
			for _, v := range pv.PerCommand {
				max = plan.MaxRisk(max, v.Risk)
			}
			return pv.Overall == max
		},
		gen.SliceOf(gen.IntRange(0, len(mixedCommands())-1)),
	))

	properties.TestingRun(t)
}
