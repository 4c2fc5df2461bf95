package buildkite

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidBuild is returned for build arguments that are neither a build
// number nor a Buildkite build URL.
var ErrInvalidBuild = errors.New("invalid build")

// ErrNoPipeline is returned when no pipeline slug can be determined.
var ErrNoPipeline = errors.New("pipeline slug required")

// buildURLPattern matches https://buildkite.com/<org>/<pipeline>/builds/<number>.
var buildURLPattern = regexp.MustCompile(`^https://buildkite\.com/([^/]+)/([^/]+)/builds/(\d+)(?:[/#?].*)?$`)

// BuildRef identifies one build.
type BuildRef struct {
	Org      string `json:"org,omitempty"`
	Pipeline string `json:"pipeline_slug,omitempty"`
	Number   string `json:"build_id"`
}

// String renders the ref as "<pipeline>#<number>".
func (r BuildRef) String() string {
	if r.Pipeline == "" {
		return "#" + r.Number
	}
	return r.Pipeline + "#" + r.Number
}

// ParseBuildURL extracts the build reference from a Buildkite build URL.
func ParseBuildURL(raw string) (BuildRef, error) {
	m := buildURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return BuildRef{}, fmt.Errorf("%w: %q is not a Buildkite build URL", ErrInvalidBuild, raw)
	}
	return BuildRef{Org: m[1], Pipeline: m[2], Number: m[3]}, nil
}

// ParseBuildInput accepts a positive build number or a build URL. Only
// https://buildkite.com URLs are accepted; the pipeline is filled in only
// when the input is a URL.
func ParseBuildInput(input string) (BuildRef, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return BuildRef{}, fmt.Errorf("%w: build ID cannot be empty", ErrInvalidBuild)
	}

	if strings.Contains(input, "://") {
		u, err := url.Parse(input)
		if err != nil {
			return BuildRef{}, fmt.Errorf("%w: %v", ErrInvalidBuild, err)
		}
		if u.Scheme != "https" || u.Host != buildkiteHostName {
			return BuildRef{}, fmt.Errorf("%w: URL must start with https://buildkite.com/", ErrInvalidBuild)
		}
		return ParseBuildURL(input)
	}

	n, err := strconv.Atoi(input)
	if err != nil || n <= 0 {
		return BuildRef{}, fmt.Errorf("%w: %q must be a build number or a Buildkite build URL", ErrInvalidBuild, input)
	}
	return BuildRef{Number: strconv.Itoa(n)}, nil
}

// ResolvePipeline picks the pipeline slug for ref: an explicit flag wins, then
// the slug parsed from a URL, then the configured default.
func ResolvePipeline(ref BuildRef, flag, fallback string) (BuildRef, error) {
	switch {
	case flag != "":
		ref.Pipeline = flag
	case ref.Pipeline != "":
	case fallback != "":
		ref.Pipeline = fallback
	default:
		return ref, fmt.Errorf("%w: pass --pipeline-slug, use a build URL, or set a default pipeline", ErrNoPipeline)
	}
	return ref, nil
}

// IsBuildkiteURL reports whether link points at buildkite.com.
func IsBuildkiteURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Host == buildkiteHostName || strings.HasSuffix(u.Host, "."+buildkiteHostName)
}
