package logparser

import (
	"regexp"
)

var testFailurePatterns = []*regexp.Regexp{
	// Standard go test failure: --- FAIL: TestName (duration)
	regexp.MustCompile(`^\s*---\s*FAIL:\s*(\S+)\s*\([\d.]+s\)`),
	// Gotestsum format: === FAIL: package TestName (duration)
	regexp.MustCompile(`^===\s*FAIL:\s*\S+\s+(\S+)\s*\([\d.]+s\)`),
	// pytest short summary: FAILED tests/test_auth.py::test_login - AssertionError
	regexp.MustCompile(`^FAILED\s+(\S+::\S+)`),
	// cargo test: test module::name ... FAILED
	regexp.MustCompile(`^test\s+(\S+)\s+\.\.\.\s+FAILED`),
}

// failedTests returns the names of failing tests reported in lines, in order
// of first appearance and without duplicates.
func failedTests(lines []string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, line := range lines {
		for _, p := range testFailurePatterns {
			m := p.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
			break
		}
	}
	return names
}
