package logparser

import (
	"regexp"
	"strings"
)

// Purpose says what a pattern identifies in a log line.
type Purpose string

const (
	// PurposeCommand marks patterns that locate the command a job ran.
	PurposeCommand Purpose = "command"
	// PurposeError marks patterns that locate the line describing a failure.
	PurposeError Purpose = "error"
	// PurposeBlock marks patterns that open a multi-line failure report, such
	// as a Python traceback or a jest FAIL section. They are consulted only
	// when no PurposeError pattern matched.
	PurposeBlock Purpose = "block"
)

// Pattern is one named entry of the registry.
//
// Tier groups patterns into priority bands. The analyzer scans every line
// for tier 1 before trying tier 2, so a specific match anywhere in the log
// beats a generic match that happens to appear earlier.
type Pattern struct {
	Name    string
	Purpose Purpose
	Tier    int
	Regexp  *regexp.Regexp
	// Group selects the capture group returned as the extracted text.
	// Zero means the whole trimmed line.
	Group int
	// Exclude rejects an otherwise matching line.
	Exclude *regexp.Regexp
	// Accept, when set, vets the extracted text.
	Accept func(text string) bool
	// Span is how many lines after the anchor a block pattern keeps in its
	// context. Zero uses the analyzer's own window.
	Span int
}

// Extract returns the text this pattern extracts from line and whether it matched.
func (p Pattern) Extract(line string) (string, bool) {
	m := p.Regexp.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	if p.Exclude != nil && p.Exclude.MatchString(line) {
		return "", false
	}
	text := strings.TrimSpace(line)
	if p.Group > 0 && p.Group < len(m) {
		text = strings.TrimSpace(m[p.Group])
	}
	if p.Accept != nil && !p.Accept(text) {
		return "", false
	}
	return text, true
}

// Registry is an ordered pattern table. Order within a tier is priority order.
type Registry struct {
	patterns []Pattern
}

// NewRegistry builds a registry from patterns in priority order.
func NewRegistry(patterns ...Pattern) *Registry {
	r := &Registry{}
	for _, p := range patterns {
		r.Register(p)
	}
	return r
}

// Register appends a pattern. Tiers below 1 are treated as tier 1.
func (r *Registry) Register(p Pattern) {
	if p.Tier < 1 {
		p.Tier = 1
	}
	r.patterns = append(r.patterns, p)
}

// Patterns returns the entries for purpose in table order.
func (r *Registry) Patterns(purpose Purpose) []Pattern {
	var out []Pattern
	for _, p := range r.patterns {
		if p.Purpose == purpose {
			out = append(out, p)
		}
	}
	return out
}

// tiers returns the patterns for purpose grouped by ascending tier.
func (r *Registry) tiers(purpose Purpose) [][]Pattern {
	byTier := map[int][]Pattern{}
	maxTier := 0
	for _, p := range r.Patterns(purpose) {
		byTier[p.Tier] = append(byTier[p.Tier], p)
		if p.Tier > maxTier {
			maxTier = p.Tier
		}
	}
	var out [][]Pattern
	for t := 1; t <= maxTier; t++ {
		if len(byTier[t]) > 0 {
			out = append(out, byTier[t])
		}
	}
	return out
}

// Match returns the first pattern for purpose that matches line, in table order.
func (r *Registry) Match(line string, purpose Purpose) (Pattern, string, bool) {
	for _, p := range r.Patterns(purpose) {
		if text, ok := p.Extract(line); ok {
			return p, text, true
		}
	}
	return Pattern{}, "", false
}

// lineNumbered matches the "N │ text" / "N | text" form used by tools that
// print annotated source excerpts.
var lineNumbered = regexp.MustCompile(`^\s*(\d+)\s*[│|]\s?(.*)$`)

// IsLineNumbered reports whether line looks like part of a line-numbered block.
func IsLineNumbered(line string) bool {
	return lineNumbered.MatchString(line)
}

var (
	successNoise = regexp.MustCompile(`(?i)success|completed|all checks passed`)
	// agentSetup matches the checkout steps the Buildkite agent echoes before
	// the job's own command runs.
	agentSetup = regexp.MustCompile(`^\$ (?:cd |git (?:clone|fetch|checkout|clean|submodule|config|remote|lfs)\b|buildkite-agent )`)
	// hintNoise rejects success reports and log-level chatter.
	hintNoise = regexp.MustCompile(`(?i:success|completed|all checks passed)|^\s*(?:INFO|DEBUG)\b`)
	// agentSummary matches the agent's own exit report, which restates the
	// exit status rather than the cause.
	agentSummary = regexp.MustCompile(`🚨|exited with status`)
)

// plausibleCommand rejects section markers, progress chatter and fragments.
func plausibleCommand(text string) bool {
	if len(text) <= 3 {
		return false
	}
	if strings.HasPrefix(text, "---") || strings.HasPrefix(text, "===") {
		return false
	}
	head := strings.ToLower(text)
	if len(head) > 10 {
		head = head[:10]
	}
	return !strings.Contains(head, "info")
}

func command(name string, tier int, expr string, group int) Pattern {
	return Pattern{
		Name:    name,
		Purpose: PurposeCommand,
		Tier:    tier,
		Regexp:  regexp.MustCompile(expr),
		Group:   group,
		Accept:  plausibleCommand,
	}
}

func failure(name string, tier int, expr string) Pattern {
	return Pattern{
		Name:    name,
		Purpose: PurposeError,
		Tier:    tier,
		Regexp:  regexp.MustCompile(expr),
	}
}

func failureExcept(name string, tier int, expr string, exclude *regexp.Regexp) Pattern {
	p := failure(name, tier, expr)
	p.Exclude = exclude
	return p
}

func block(name string, tier int, expr string, span int) Pattern {
	return Pattern{
		Name:    name,
		Purpose: PurposeBlock,
		Tier:    tier,
		Regexp:  regexp.MustCompile(expr),
		Span:    span,
	}
}

var defaultRegistry = NewRegistry(
	// Shell echoes emitted by Buildkite agents and `set -x`. A `+` trace is
	// the job's own command; `$` lines also cover the agent's checkout steps.
	command("shell-trace", 1, `^\+ (.+)$`, 1),
	Pattern{
		Name:    "shell-prompt",
		Purpose: PurposeCommand,
		Tier:    2,
		Regexp:  regexp.MustCompile(`^\$ (.+)$`),
		Group:   1,
		Exclude: agentSetup,
		Accept:  plausibleCommand,
	},

	command("bazel", 3, `(?i)^\s*((?:bazel|bazelisk) (?:build|test|run|query)\b.*)$`, 1),
	command("npm-script", 3, `(?i)^\s*((?:npm|yarn|pnpm) (?:run|test|exec)\b.*)$`, 1),
	command("python-module", 3, `(?i)^\s*(python3? -m \S+.*)$`, 1),
	command("pytest", 3, `(?i)^\s*(pytest\b.*)$`, 1),
	command("mypy", 3, `(?i)^\s*(mypy\b.*)$`, 1),
	command("ruff", 3, `(?i)^\s*(ruff (?:check|format)\b.*)$`, 1),
	command("black", 3, `(?i)^\s*(black --check\b.*)$`, 1),
	command("make", 3, `(?i)^\s*(make\s+[\w.-]+.*)$`, 1),
	command("cargo", 3, `(?i)^\s*(cargo (?:build|test|check|clippy)\b.*)$`, 1),
	command("go", 3, `(?i)^\s*(go (?:build|test|vet)\b.*)$`, 1),
	command("docker-run", 3, `(?i)^\s*(docker (?:run|build|compose)\b.*)$`, 1),
	command("gradle", 3, `(?i)^\s*(\./gradlew\s+\S+.*)$`, 1),
	command("maven", 3, `(?i)^\s*(mvn\s+\S+.*)$`, 1),
	command("clyde", 3, `(?i)^\s*(clyde\s+\S+.*)$`, 1),

	failure("assertion", 1, `\bAssertionError\b`),
	failure("python-exception", 1, `^\s*(?:[\w.]+\.)?(?:ModuleNotFoundError|ImportError|SyntaxError|TypeError|ValueError|KeyError|AttributeError|NameError|RuntimeError|IndexError|FileNotFoundError)\b`),
	failureExcept("error-colon", 1, `\w*Error: \S`, agentSummary),
	failure("missing-module", 1, `(?i)cannot find module`),
	failure("npm-err", 1, `^npm ERR!`),
	failure("go-test-fail", 1, `^\s*--- FAIL: `),
	failure("go-panic", 1, `^panic: `),
	failure("failed-target", 1, `^FAILED[: ]`),
	failure("build-failed", 1, `(?i)\b(?:bazel|npm|compilation|tests?|build) failed\b`),

	failureExcept("generic", 2, `(?i)\b(?:error|fail|failure|exception|fatal):\s*\S`, agentSummary),

	failure("buildkite-alert", 3, `🚨 Error:`),
	failure("exit-status", 3, `(?i)exited with status|exit (?:code|status) [1-9]|process exited with code [1-9]|command failed|killed by signal`),

	Pattern{
		Name:    "failure-indicator",
		Purpose: PurposeError,
		Tier:    4,
		Regexp:  regexp.MustCompile(`(?i)failed to|unable to|\bcannot\b|could not|not found|permission denied|access denied|timed? ?out|connection refused|no such file|segmentation fault`),
		Exclude: successNoise,
	},

	block("traceback", 1, `Traceback \(most recent call last\):`, 9),
	block("pnpm-err", 1, `^\s*pnpm ERR!`, 4),
	block("jest-fail", 1, `^\s*FAIL\s+\S`, 5),
	block("test-summary", 1, `^\s*Tests?:\s+\d+ failed`, 4),

	// Last resort: any line that mentions a failure at all.
	Pattern{
		Name:    "failure-word",
		Purpose: PurposeBlock,
		Tier:    2,
		Regexp:  regexp.MustCompile(`(?i)\b(?:errors?|fail(?:ed|s|ure)?|exceptions?|missing)\b`),
		Exclude: hintNoise,
		Accept:  func(text string) bool { return len(text) > 10 },
	},
)

// Default returns the built-in pattern registry.
func Default() *Registry {
	return defaultRegistry
}
