package safety

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"drift/internal/plan"

	"gopkg.in/yaml.v3"
)

// Rule is one classification pattern. Rules are data: adding one is a table
// edit, not a control-flow change.
type Rule struct {
	// ID uniquely names the rule for verdict attribution.
	ID string `yaml:"id"`
	// Tier is the severity assigned on match (blocked, high, medium).
	Tier plan.Risk `yaml:"-"`
	// Pattern is a regular expression searched case-insensitively against
	// the whitespace-normalized command.
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// Matches reports whether the rule fires on a normalized command string.
func (r *Rule) Matches(normalized string) bool {
	return r.re != nil && r.re.MatchString(normalized)
}

// Commands matching these patterns are never executed, under any
// confirmation path. Ordering matters only for attribution; the first
// match wins.
var blocklistRules = compileBuiltin(plan.RiskBlocked, []Rule{
	// Destructive root operations
	{ID: "recursive-root-delete", Pattern: `rm\s+-rf\s*/($|\s)`},
	{ID: "recursive-system-delete", Pattern: `rm\s+-rf\s+/[a-z]+`},
	{ID: "recursive-wildcard-delete", Pattern: `rm\s+-rf\s+\*`},
	{ID: "sudo-recursive-delete", Pattern: `sudo\s+rm\s+-rf`},
	{ID: "disk-format", Pattern: `mkfs\.`},
	{ID: "raw-device-copy", Pattern: `dd\s+if=.*of=/dev/`},
	{ID: "raw-device-dd", Pattern: `dd\s+.*of=/dev/(sd|hd|nvme)`},
	// Downloads piped straight into an interpreter
	{ID: "curl-pipe-shell", Pattern: `curl[^|]*\|\s*(sh|bash|zsh|python|ruby|perl)`},
	{ID: "wget-pipe-shell", Pattern: `wget[^|]*\|\s*(sh|bash|zsh|python|ruby|perl)`},
	{ID: "curl-process-substitution", Pattern: `<\(curl`},
	{ID: "wget-process-substitution", Pattern: `<\(wget`},
	// Fork bomb
	{ID: "fork-bomb", Pattern: `:\(\)\{\s*:\|:&\s*\};:`},
	// Disk and partition operations
	{ID: "disk-erase", Pattern: `diskutil\s+(eraseDisk|eraseVolume)`},
	{ID: "partition-fdisk", Pattern: `fdisk\s+`},
	{ID: "partition-parted", Pattern: `parted\s+`},
	// Writing to raw devices
	{ID: "raw-device-redirect", Pattern: `>\s*/dev/(sd|hd|nvme)`},
	{ID: "raw-device-move", Pattern: `mv\s+.*\s+/dev/(sd|hd|nvme|null)`},
	// Privilege-escalating permission sweeps
	{ID: "world-writable-root", Pattern: `chmod\s+(-R\s+)?777\s+/`},
	{ID: "recursive-chown-root", Pattern: `chown\s+-R\s+.*\s+/`},
	// Inline code execution
	{ID: "python-inline-exec", Pattern: `python[23]?\s+-c\s+.*exec\s*\(`},
	{ID: "python-inline-eval", Pattern: `python[23]?\s+-c\s+.*eval\s*\(`},
	{ID: "perl-inline-exec", Pattern: `perl\s+-e\s+`},
	{ID: "ruby-inline-exec", Pattern: `ruby\s+-e\s+`},
	{ID: "node-inline-exec", Pattern: `node\s+-e\s+`},
	{ID: "php-inline-exec", Pattern: `php\s+-r\s+`},
	// Shell injection constructs
	{ID: "command-substitution", Pattern: `bash\s+-c\s+.*\$\(`},
	{ID: "backtick-substitution", Pattern: "sh\\s+-c\\s+.*`"},
	{ID: "eval-variable", Pattern: `eval\s+\$`},
	// Miners and obfuscated payloads
	{ID: "miner-xmrig", Pattern: `xmrig`},
	{ID: "miner-cryptonight", Pattern: `cryptonight`},
	{ID: "base64-obfuscated-exec", Pattern: `base64.*perl.*exec`},
})

// High risk: irreversible or privileged effect, runnable only behind the
// strong confirmation gate.
var highRules = compileBuiltin(plan.RiskHigh, []Rule{
	{ID: "sudo", Pattern: `sudo\s+`},
	{ID: "recursive-delete", Pattern: `rm\s+-r(f)?\s+`},
	{ID: "chmod-777", Pattern: `chmod\s+777`},
	{ID: "recursive-chmod", Pattern: `chmod\s+-R`},
	{ID: "recursive-chown", Pattern: `chown\s+-R`},
	{ID: "device-redirect", Pattern: `>/dev/`},
	{ID: "raw-copy", Pattern: `dd\s+`},
	{ID: "format", Pattern: `format\s+`},
	{ID: "force-kill", Pattern: `kill\s+-9`},
	{ID: "pkill", Pattern: `pkill\s+`},
	{ID: "killall", Pattern: `killall\s+`},
	{ID: "directory-services", Pattern: `dscl\s+`},
	{ID: "launchctl-unload", Pattern: `launchctl\s+unload`},
	{ID: "systemctl-disable", Pattern: `systemctl\s+disable`},
	{ID: "git-force-push", Pattern: `git\s+push\s+(-f|--force)`},
	{ID: "git-hard-reset", Pattern: `git\s+reset\s+--hard`},
	{ID: "docker-prune-all", Pattern: `docker\s+system\s+prune\s+-a`},
	{ID: "npm-global-uninstall", Pattern: `npm\s+uninstall\s+-g`},
	{ID: "brew-uninstall", Pattern: `brew\s+uninstall`},
})

// Medium risk: mutation without elevated privilege.
var mediumRules = compileBuiltin(plan.RiskMedium, []Rule{
	{ID: "delete", Pattern: `rm\s+`},
	{ID: "move", Pattern: `mv\s+`},
	{ID: "chmod", Pattern: `chmod\s+`},
	{ID: "chown", Pattern: `chown\s+`},
	{ID: "git-push", Pattern: `git\s+push`},
	{ID: "git-amend", Pattern: `git\s+commit\s+--amend`},
	{ID: "npm-global-install", Pattern: `npm\s+install\s+-g`},
	{ID: "pip-install", Pattern: `pip\s+install`},
	{ID: "brew-install", Pattern: `brew\s+install`},
	{ID: "apt-install", Pattern: `apt-get\s+install`},
	{ID: "yum-install", Pattern: `yum\s+install`},
	{ID: "docker-run", Pattern: `docker\s+run`},
	{ID: "docker-exec", Pattern: `docker\s+exec`},
	{ID: "redirect", Pattern: `>\s*`},
	{ID: "append-redirect", Pattern: `>>`},
})

// compileBuiltin compiles a built-in rule table. Built-ins are part of the
// program; an invalid pattern is a programming error, so it panics.
func compileBuiltin(tier plan.Risk, rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Tier = tier
		r.re = regexp.MustCompile("(?i)" + r.Pattern)
		out[i] = r
	}
	return out
}

// userRulesFile is the YAML shape of an optional user rules file. User
// rules extend the built-in tables; they can add patterns, never remove or
// downgrade one.
type userRulesFile struct {
	Rules []userRule `yaml:"rules"`
}

type userRule struct {
	ID      string `yaml:"id"`
	Tier    string `yaml:"tier"`
	Pattern string `yaml:"pattern"`
}

// loadUserRules parses a user rules file into per-tier rule slices. Any
// invalid entry fails the whole load so a half-applied rule file never
// silently weakens review.
func loadUserRules(path string) (blocked, high, medium []Rule, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}

	var file userRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for i, ur := range file.Rules {
		if ur.ID == "" {
			return nil, nil, nil, fmt.Errorf("rule %d: id is required", i)
		}
		if ur.Pattern == "" {
			return nil, nil, nil, fmt.Errorf("rule %q: pattern is required", ur.ID)
		}

		re, err := regexp.Compile("(?i)" + ur.Pattern)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("rule %q: invalid pattern: %w", ur.ID, err)
		}

		rule := Rule{ID: ur.ID, Pattern: ur.Pattern, re: re}
		switch strings.ToLower(strings.TrimSpace(ur.Tier)) {
		case "blocked":
			rule.Tier = plan.RiskBlocked
			blocked = append(blocked, rule)
		case "high":
			rule.Tier = plan.RiskHigh
			high = append(high, rule)
		case "medium":
			rule.Tier = plan.RiskMedium
			medium = append(medium, rule)
		default:
			return nil, nil, nil, fmt.Errorf("rule %q: tier must be blocked, high, or medium (got %q)", ur.ID, ur.Tier)
		}
	}

	return blocked, high, medium, nil
}
