package step

import (
	"regexp"
)

// RiskLevel indicates the danger level of a command.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskWarning
	RiskBlocked
)

// RiskResult contains the analysis of a command's risk.
type RiskResult struct {
	Level       RiskLevel
	Reason      string
	Alternative string
}

// Pattern defines a dangerous command pattern.
type Pattern struct {
	Regex       *regexp.Regexp
	Level       RiskLevel
	Reason      string
	Alternative string
}

// Guard filters dangerous commands before execution.
type Guard struct {
	patterns []Pattern
}

// NewGuard creates a guard with the default pattern set.
func NewGuard() *Guard {
	return &Guard{patterns: defaultPatterns()}
}

func defaultPatterns() []Pattern {
	return []Pattern{
		// Filesystem destruction
		{
			Regex:       regexp.MustCompile(`rm\s+(-[rf]+\s+)*(/|/\*|\.\.|~)(\s|$)`),
			Level:       RiskBlocked,
			Reason:      "BLOCKED: destructive filesystem operation on critical path",
			Alternative: "Be specific: rm -rf ./specific-directory",
		},
		{
			Regex:       regexp.MustCompile(`mkfs\s`),
			Level:       RiskBlocked,
			Reason:      "BLOCKED: filesystem formatting",
			Alternative: "Format operations require explicit confirmation outside taskpilot",
		},
		{
			Regex:       regexp.MustCompile(`dd\s+.*of=/dev/`),
			Level:       RiskBlocked,
			Reason:      "BLOCKED: direct device write",
			Alternative: "Device operations require explicit confirmation",
		},

		// Git history violence
		{
			Regex:       regexp.MustCompile(`git\s+push\s+.*--force(\s|$)`),
			Level:       RiskBlocked,
			Reason:      "BLOCKED: force push destroys remote history",
			Alternative: "Use: git push --force-with-lease",
		},
		{
			Regex:       regexp.MustCompile(`git\s+reset\s+--hard\s+HEAD~`),
			Level:       RiskWarning,
			Reason:      "WARNING: hard reset discards uncommitted changes",
			Alternative: "Consider: git stash first, or git reset --soft",
		},
		{
			Regex:       regexp.MustCompile(`rm\s+-rf\s+\.git(\s|$)`),
			Level:       RiskBlocked,
			Reason:      "BLOCKED: deleting .git destroys repository history",
			Alternative: "If intentional, do this manually outside taskpilot",
		},

		// Credential leaks
		{
			Regex:       regexp.MustCompile(`git\s+add\s+.*\.env`),
			Level:       RiskBlocked,
			Reason:      "BLOCKED: .env files contain secrets",
			Alternative: "Add .env to .gitignore, use environment variables",
		},
		{
			Regex:       regexp.MustCompile(`git\s+add\s+.*(id_rsa|id_ed25519|\.pem|\.key)`),
			Level:       RiskBlocked,
			Reason:      "BLOCKED: private keys must never be committed",
			Alternative: "Add to .gitignore, use secrets management",
		},

		// Privilege escalation
		{
			Regex:       regexp.MustCompile(`^sudo\s`),
			Level:       RiskWarning,
			Reason:      "WARNING: command runs with elevated privileges",
			Alternative: "Run without sudo where possible",
		},
		{
			Regex:       regexp.MustCompile(`curl\s+.*\|\s*(ba)?sh`),
			Level:       RiskBlocked,
			Reason:      "BLOCKED: piping a remote script into a shell",
			Alternative: "Download, inspect, then run the script",
		},
	}
}

// Analyze checks a command against the pattern table. The first match
// wins; patterns are ordered most-destructive first.
func (g *Guard) Analyze(command string) RiskResult {
	for _, p := range g.patterns {
		if p.Regex.MatchString(command) {
			return RiskResult{Level: p.Level, Reason: p.Reason, Alternative: p.Alternative}
		}
	}
	return RiskResult{Level: RiskSafe}
}
