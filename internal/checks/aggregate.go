package checks

import (
	"fmt"
	"strconv"
	"strings"
)

// Aggregate counts checks in one pass and lists every failed check, in input
// order, as a pending detail numbered 1..K. The result goes through the same
// validation as any other AnalysisResult.
func Aggregate(checks []CheckStatus) (AnalysisResult, error) {
	var (
		counts     Counts
		other      map[string]int
		failures   []FailureDetail
		inProgress []CheckStatus
	)
	counts.Total = len(checks)

	for _, c := range checks {
		if c.Backend == BackendBuildkite {
			counts.Buildkite++
		}
		switch c.State {
		case StatePassed:
			counts.Passed++
		case StateFailed:
			counts.Failed++
			d, err := NewFailureDetail(len(failures)+1, c)
			if err != nil {
				return AnalysisResult{}, err
			}
			failures = append(failures, d)
		case StateRunning, StatePending:
			if c.State == StateRunning {
				counts.Running++
			} else {
				counts.Pending++
			}
			if c.Backend == BackendBuildkite {
				inProgress = append(inProgress, c)
			}
		default:
			counts.Other++
			if other == nil {
				other = make(map[string]int)
			}
			raw := c.RawState
			if raw == "" {
				raw = "UNKNOWN"
			}
			other[raw]++
		}
	}

	return NewAnalysisResult(counts, other, failures, inProgress)
}

// ParseIndices parses a comma-separated list of 1-based failure ordinals.
// Duplicates are dropped; first-seen order is kept.
func ParseIndices(s string) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q must be a positive integer", ErrInvalidIndex, part)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no indices in %q", ErrInvalidIndex, s)
	}
	return out, nil
}

// ValidateIndices checks every ordinal against the failure count.
func (r AnalysisResult) ValidateIndices(indices []int) error {
	for _, n := range indices {
		if _, err := r.Failure(n); err != nil {
			return err
		}
	}
	return nil
}
