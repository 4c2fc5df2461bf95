package logparser

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	// buildkiteEscapePattern matches the APC sequences the Buildkite agent
	// embeds for per-line timestamps, e.g. "\x1b_bk;t=1706280580776\x07".
	buildkiteEscapePattern = regexp.MustCompile(`\x1b_bk;[^\x07]*\x07`)

	// bareBuildkiteTimestamp matches timestamp markers whose escape bytes were
	// already lost, e.g. "_bk;t=1706280580776" or "bk;t=1706280580776$".
	bareBuildkiteTimestamp = regexp.MustCompile(`_?bk;t=\d+\$?\x07?`)

	// timestampPattern matches ISO-8601 log timestamp prefixes.
	// Format: 2026-01-26T14:49:40.7760945Z
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z\s*`)

	// jobPrefixPattern matches GitHub Actions job/step prefixes.
	// Format: "JobName\tStepName\t2026-01-26..."
	jobPrefixPattern = regexp.MustCompile(`^[^\t]+\t[^\t]+\t\d{4}-\d{2}-\d{2}T[^\s]+\s*`)
)

// Lines splits raw log text into lines without dropping any, so that a line's
// index is always its original line number minus one. A trailing newline does
// not produce an extra empty line.
func Lines(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimSuffix(raw, "\n")
	return strings.Split(raw, "\n")
}

// CleanLine strips agent escapes, colors and timestamp prefixes from one line.
// A bare carriage return is treated as a terminal overwrite: only the last
// non-empty segment survives.
func CleanLine(line string) string {
	if strings.Contains(line, "\r") {
		segments := strings.Split(line, "\r")
		line = ""
		for i := len(segments) - 1; i >= 0; i-- {
			if strings.TrimSpace(segments[i]) != "" {
				line = segments[i]
				break
			}
		}
	}
	line = buildkiteEscapePattern.ReplaceAllString(line, "")
	line = ansi.Strip(line)
	line = bareBuildkiteTimestamp.ReplaceAllString(line, "")
	line = jobPrefixPattern.ReplaceAllString(line, "")
	line = timestampPattern.ReplaceAllString(line, "")
	return strings.TrimRight(line, " \t")
}

// CleanLines returns the cleaned form of every line in raw, one-for-one.
func CleanLines(raw string) []string {
	lines := Lines(raw)
	for i, line := range lines {
		lines[i] = CleanLine(line)
	}
	return lines
}

// isSectionMarker reports lines the Buildkite agent uses to fold output into
// groups ("--- :go: Test", "+++ Failures", "~~~ Setup", "^^^ +++").
// Go test result lines such as "--- FAIL: TestX" are not markers.
func isSectionMarker(line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "+++"),
		strings.HasPrefix(trimmed, "~~~"),
		strings.HasPrefix(trimmed, "^^^ +++"):
		return true
	case strings.HasPrefix(trimmed, "---"):
		rest := strings.TrimSpace(strings.TrimLeft(trimmed, "-"))
		return !(strings.HasPrefix(rest, "FAIL") || strings.HasPrefix(rest, "PASS") || strings.HasPrefix(rest, "SKIP"))
	case strings.HasPrefix(trimmed, "==="):
		return true
	}
	return false
}

// skippable reports lines that never carry a command or an error.
func skippable(line string) bool {
	return strings.TrimSpace(line) == "" || isSectionMarker(line)
}
