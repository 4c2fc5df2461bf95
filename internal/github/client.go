// Package github reads pull request state through the gh CLI.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/newhook/cifail/internal/checks"
	"github.com/newhook/cifail/internal/logging"
	"github.com/newhook/cifail/internal/process"
)

var (
	// ErrNoPR is returned when the current branch has no pull request.
	ErrNoPR = errors.New("no pull request found for the current branch")
	// ErrInvalidPR is returned for --pr values that are neither a number nor a PR URL.
	ErrInvalidPR = errors.New("invalid pull request")
)

// gh pr checks exits 1 when a check failed and 8 when checks are pending,
// while still printing the JSON.
var checksExitCodes = map[int]bool{1: true, 8: true}

// Client wraps the gh CLI.
type Client struct {
	runner process.Runner
	dir    string
}

// NewClient creates a client that runs gh in dir.
func NewClient(runner process.Runner, dir string) *Client {
	return &Client{runner: runner, dir: dir}
}

// PRInfo identifies a pull request.
type PRInfo struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

func (c *Client) gh(ctx context.Context, args ...string) (process.Result, error) {
	return c.runner.Run(ctx, process.Command{Name: "gh", Args: args, Dir: c.dir})
}

// PRInfo fetches the pull request for pr, or for the current branch when pr
// is empty.
func (c *Client) PRInfo(ctx context.Context, pr string) (PRInfo, error) {
	args := []string{"pr", "view"}
	if pr != "" {
		args = append(args, pr)
	}
	args = append(args, "--json", "number,url,title")

	res, err := c.gh(ctx, args...)
	if err != nil {
		if noPR(err) {
			return PRInfo{}, ErrNoPR
		}
		return PRInfo{}, fmt.Errorf("failed to get PR info: %w", err)
	}

	var info PRInfo
	if err := json.Unmarshal(res.Stdout, &info); err != nil {
		logging.Error("failed to parse PR info", "error", err, "output", string(res.Stdout))
		return PRInfo{}, fmt.Errorf("failed to parse PR info: %w", err)
	}
	logging.Debug("found PR", "number", info.Number, "url", info.URL)
	return info, nil
}

// PRChecks lists the checks of pr, or of the current branch's PR.
func (c *Client) PRChecks(ctx context.Context, pr string) ([]checks.RawCheck, error) {
	args := []string{"pr", "checks"}
	if pr != "" {
		args = append(args, pr)
	}
	args = append(args, "--json", "name,state,description,workflow,link,bucket")

	res, err := c.gh(ctx, args...)
	if err != nil {
		var exitErr *process.ExitError
		switch {
		case errors.As(err, &exitErr) && strings.Contains(strings.ToLower(exitErr.Stderr), "no checks reported"):
			return []checks.RawCheck{}, nil
		case noPR(err):
			return nil, ErrNoPR
		case errors.As(err, &exitErr) && checksExitCodes[exitErr.ExitCode] && json.Valid(bytes.TrimSpace(res.Stdout)):
			logging.Debug("gh pr checks exited non-zero with output", "code", exitErr.ExitCode)
		default:
			return nil, fmt.Errorf("failed to get PR checks: %w", err)
		}
	}

	out := bytes.TrimSpace(res.Stdout)
	if len(out) == 0 {
		return []checks.RawCheck{}, nil
	}
	var raw []checks.RawCheck
	if err := json.Unmarshal(out, &raw); err != nil {
		logging.Error("failed to parse PR checks", "error", err, "output", string(out))
		return nil, fmt.Errorf("failed to parse PR checks: %w", err)
	}
	logging.Debug("fetched PR checks", "count", len(raw))
	return raw, nil
}

// AuthStatus verifies gh is logged in.
func (c *Client) AuthStatus(ctx context.Context) error {
	if _, err := c.gh(ctx, "auth", "status"); err != nil {
		return fmt.Errorf("GitHub CLI is not authenticated (run: gh auth login): %w", err)
	}
	return nil
}

func noPR(err error) bool {
	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return strings.Contains(strings.ToLower(exitErr.Stderr), "no pull requests found")
}

// ParsePRArg validates a --pr value: a positive number or a
// https://github.com/<owner>/<repo>/pull/<n> URL. The value is returned in the
// form gh accepts.
func ParsePRArg(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if strings.Contains(s, "://") {
		if _, _, err := parsePRURL(s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPR, err)
		}
		return s, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%w: %q must be a PR number or URL", ErrInvalidPR, s)
	}
	return strconv.Itoa(n), nil
}

// parsePRURL splits https://github.com/owner/repo/pull/123 into its number
// and owner/repo.
func parsePRURL(prURL string) (prNumber, repo string, err error) {
	u, err := url.Parse(prURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" {
		return "", "", fmt.Errorf("URL must use HTTPS scheme, got: %s", u.Scheme)
	}
	if u.Host != "github.com" {
		return "", "", fmt.Errorf("URL must be from github.com, got: %s", u.Host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 {
		return "", "", fmt.Errorf("invalid PR URL path structure: expected /owner/repo/pull/number, got: %s", u.Path)
	}
	if parts[2] != "pull" {
		return "", "", fmt.Errorf("URL is not a pull request URL: %s", prURL)
	}
	owner, name, prNumber := parts[0], parts[1], parts[3]
	if owner == "" || name == "" {
		return "", "", fmt.Errorf("owner and repository are required in PR URL: %s", prURL)
	}
	if n, err := strconv.Atoi(prNumber); err != nil || n <= 0 {
		return "", "", fmt.Errorf("PR number must be a positive integer, got: %s", prNumber)
	}
	return prNumber, owner + "/" + name, nil
}
