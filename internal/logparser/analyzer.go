// Package logparser extracts a failure summary from raw CI job logs.
//
// The analyzer looks for the command a job ran and the line that best
// describes why it failed, then cuts a small line-numbered window of
// surrounding output. Matching is driven by an ordered pattern registry.
package logparser

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultContextBefore is the number of lines shown before the anchor line.
	DefaultContextBefore = 3
	// DefaultContextAfter is the number of lines shown after the anchor line.
	DefaultContextAfter = 1

	// blockBefore is the number of lines kept above a multi-line failure report.
	blockBefore = 2
)

// Analysis is the summary extracted from one job log. Empty strings mean the
// value could not be located.
type Analysis struct {
	Command string   `json:"failing_command,omitempty"`
	Error   string   `json:"error_message,omitempty"`
	Context []string `json:"error_context,omitempty"`

	// CommandLine and ErrorLine are 1-based line numbers, zero when absent.
	CommandLine int `json:"command_line,omitempty"`
	ErrorLine   int `json:"error_line,omitempty"`

	// FailedTests lists test names reported as failing by common runners.
	FailedTests []string `json:"failed_tests,omitempty"`
}

// Found reports whether anything useful was extracted.
func (a Analysis) Found() bool {
	return a.Command != "" || a.Error != "" || len(a.Context) > 0 || len(a.FailedTests) > 0
}

// Analyzer holds the pattern table and window sizes. The zero value uses the
// default registry with a zero-width window; use NewAnalyzer for defaults.
// An Analyzer is safe for concurrent use.
type Analyzer struct {
	Registry *Registry
	Before   int
	After    int
}

// NewAnalyzer returns an analyzer over the default registry.
// Negative window sizes fall back to the defaults.
func NewAnalyzer(before, after int) *Analyzer {
	if before < 0 {
		before = DefaultContextBefore
	}
	if after < 0 {
		after = DefaultContextAfter
	}
	return &Analyzer{Registry: Default(), Before: before, After: after}
}

var defaultAnalyzer = NewAnalyzer(DefaultContextBefore, DefaultContextAfter)

// Analyze runs the default analyzer over raw.
func Analyze(raw string) Analysis {
	return defaultAnalyzer.Analyze(raw)
}

// Analyze extracts the failing command, the error line and a context window
// from raw. It accepts any input, including empty or binary text, and never
// returns an error: a log with nothing recognizable yields an empty Analysis.
func (a *Analyzer) Analyze(raw string) Analysis {
	lines := CleanLines(raw)
	if len(lines) == 0 {
		return Analysis{}
	}

	reg := a.Registry
	if reg == nil {
		reg = Default()
	}

	result := Analysis{FailedTests: failedTests(lines)}

	cmdIdx, _, cmd := scan(lines, reg.tiers(PurposeCommand), 0)
	errorTiers := reg.tiers(PurposeError)
	start := 0
	if cmdIdx >= 0 {
		start = cmdIdx
		result.Command = cmd
		result.CommandLine = cmdIdx + 1
	}

	errIdx, _, msg := scan(lines, errorTiers, start)
	if errIdx < 0 && start > 0 {
		errIdx, _, msg = scan(lines, errorTiers, 0)
	}
	if errIdx >= 0 {
		result.Error = msg
		result.ErrorLine = errIdx + 1
	} else if a.block(lines, reg.tiers(PurposeBlock), start, &result) {
		return result
	}

	switch {
	case errIdx >= 0:
		result.Context = window(lines, errIdx, max(a.Before, 0), max(a.After, 0))
	case cmdIdx >= 0:
		result.Context = window(lines, cmdIdx, max(a.Before, 0), max(a.After, 0))
	default:
		result.Context = numberedBlock(lines)
	}
	return result
}

// block is the second pass for logs where no single line explained the
// failure. It looks for the start of a multi-line report, picks the most
// descriptive line inside it as the error and cuts a window sized by the
// pattern. It reports whether result was filled in.
func (a *Analyzer) block(lines []string, tiers [][]Pattern, start int, result *Analysis) bool {
	idx, p, text := scan(lines, tiers, start)
	if idx < 0 && start > 0 {
		idx, p, text = scan(lines, tiers, 0)
	}
	if idx < 0 {
		return false
	}

	before, after := max(a.Before, 0), max(a.After, 0)
	line := idx
	if p.Span > 0 {
		before, after = blockBefore, p.Span
		if i := describe(lines, idx, min(idx+p.Span, len(lines)-1)); i >= 0 {
			line, text = i, strings.TrimSpace(lines[i])
		}
	}
	result.Error = text
	result.ErrorLine = line + 1
	result.Context = window(lines, idx, before, after)
	return true
}

// describe returns the index of the first line in lines[from:to+1] that
// states what went wrong, or -1.
func describe(lines []string, from, to int) int {
	for i := from; i <= to; i++ {
		l := strings.ToLower(lines[i])
		if strings.Contains(l, "error:") || strings.Contains(l, "failed") || strings.Contains(l, "cannot") {
			return i
		}
	}
	return -1
}

// scan walks tiers in order and returns the first line at or after start that
// any pattern of the current tier matches, with the pattern and its text.
func scan(lines []string, tiers [][]Pattern, start int) (int, Pattern, string) {
	for _, tier := range tiers {
		for i := start; i < len(lines); i++ {
			if skippable(lines[i]) {
				continue
			}
			for _, p := range tier {
				if text, ok := p.Extract(lines[i]); ok {
					return i, p, text
				}
			}
		}
	}
	return -1, Pattern{}, ""
}

// window returns lines[anchor-before : anchor+after], clamped, each prefixed
// with its right-aligned 1-based line number.
func window(lines []string, anchor, before, after int) []string {
	lo := max(anchor-before, 0)
	hi := min(anchor+after, len(lines)-1)
	width := len(strconv.Itoa(hi + 1))

	out := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, fmt.Sprintf("%*d │ %s", width, i+1, lines[i]))
	}
	return out
}

// numberedBlock returns the longest run of consecutive line-numbered lines,
// unchanged. Runs shorter than two lines are ignored. Ties go to the first run.
func numberedBlock(lines []string) []string {
	bestStart, bestLen := -1, 0
	runStart, runLen := -1, 0
	for i, line := range lines {
		if IsLineNumbered(line) {
			if runLen == 0 {
				runStart = i
			}
			runLen++
			if runLen > bestLen {
				bestStart, bestLen = runStart, runLen
			}
			continue
		}
		runLen = 0
	}
	if bestLen < 2 {
		return nil
	}

	out := make([]string, 0, bestLen)
	for _, line := range lines[bestStart : bestStart+bestLen] {
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return out
}
