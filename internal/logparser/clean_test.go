package logparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "buildkite timestamp escape",
			input: "\x1b_bk;t=1706280580776\x07$ make lint",
			want:  "$ make lint",
		},
		{
			name:  "bare buildkite timestamp",
			input: "_bk;t=1706280580776$ make lint",
			want:  " make lint",
		},
		{
			name:  "ansi colors",
			input: "=== \x1b[31mFAIL\x1b[0m: TestName",
			want:  "=== FAIL: TestName",
		},
		{
			name:  "iso timestamp",
			input: "2026-01-26T14:49:40.7760945Z --- FAIL: TestName",
			want:  "--- FAIL: TestName",
		},
		{
			name:  "github actions job prefix",
			input: "Test\tRun tests\t2026-01-26T14:49:40.7760945Z ok",
			want:  "ok",
		},
		{
			name:  "carriage return overwrite",
			input: "progress 10%\rprogress 55%\rprogress 100%\r",
			want:  "progress 100%",
		},
		{
			name:  "trailing whitespace",
			input: "value   \t",
			want:  "value",
		},
		{
			name:  "plain text untouched",
			input: "  indented line",
			want:  "  indented line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanLine(tt.input))
		})
	}
}

func TestLines_PreservesLineNumbers(t *testing.T) {
	assert.Nil(t, Lines(""))
	assert.Equal(t, []string{"a", "", "b"}, Lines("a\r\n\r\nb\n"))
	assert.Equal(t, []string{"a", "b", ""}, Lines("a\nb\n\n"))
}

func TestCleanLines(t *testing.T) {
	input := "\x1b[1mone\x1b[0m\n\ntwo\rthree"
	assert.Equal(t, []string{"one", "", "three"}, CleanLines(input))
}

func TestIsSectionMarker(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"--- :go: Running tests", true},
		{"+++ :rotating_light: Failures", true},
		{"~~~ Preparing plugins", true},
		{"^^^ +++", true},
		{"=== RUN   TestLogin", true},
		{"---", true},
		{"--- FAIL: TestLogin (0.01s)", false},
		{"--- PASS: TestLogin (0.01s)", false},
		{"+ make test", false},
		{"regular output", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, isSectionMarker(tt.line))
		})
	}
}
