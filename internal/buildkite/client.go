// Package buildkite reaches Buildkite through the bk CLI.
package buildkite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/newhook/cifail/internal/cachemanager"
	"github.com/newhook/cifail/internal/logging"
	"github.com/newhook/cifail/internal/process"
)

var (
	// ErrNotFound is returned when a build, job or log does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAuth is returned when bk rejects the configured credentials.
	ErrAuth = errors.New("buildkite authentication failed")
)

// Client wraps the bk CLI. Builds and logs are memoized for the lifetime of
// the client, which is one invocation.
type Client struct {
	runner process.Runner
	env    []string
	builds *cachemanager.InMemoryCacheManager[string, Build]
	logs   *cachemanager.InMemoryCacheManager[string, string]
}

// NewClient creates a client. env is appended to the bk process environment
// and normally carries the API token.
func NewClient(runner process.Runner, env []string) *Client {
	return &Client{
		runner: runner,
		env:    append([]string{"ACCESSIBLE=true"}, env...),
		builds: cachemanager.NewInMemoryCacheManager[string, Build]("buildkite-builds",
			cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
		logs: cachemanager.NewInMemoryCacheManager[string, string]("buildkite-logs",
			cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
	}
}

func (c *Client) bk(ctx context.Context, dir string, args ...string) ([]byte, error) {
	res, err := c.runner.Run(ctx, process.Command{Name: "bk", Args: args, Dir: dir, Env: c.env})
	if err == nil {
		return res.Stdout, nil
	}
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		return nil, classify(exitErr, res.Stdout)
	}
	return nil, err
}

// classify maps bk failure output onto sentinel errors.
func classify(exitErr *process.ExitError, stdout []byte) error {
	text := strings.ToLower(exitErr.Stderr + " " + string(stdout))
	// Auth first: "API token not found" is a credentials problem.
	switch {
	case strings.Contains(text, "401") || strings.Contains(text, "403") ||
		strings.Contains(text, "unauthorized") || strings.Contains(text, "forbidden") ||
		strings.Contains(text, "token"):
		return fmt.Errorf("%w: %v", ErrAuth, exitErr)
	case strings.Contains(text, "404") || strings.Contains(text, "not found"):
		return fmt.Errorf("%w: %v", ErrNotFound, exitErr)
	}
	return exitErr
}

// Build fetches a build with its jobs.
func (c *Client) Build(ctx context.Context, pipeline, number string) (Build, error) {
	key := pipeline + "/" + number
	return c.builds.GetOrLoad(ctx, key, func(ctx context.Context) (Build, error) {
		logging.Debug("fetching build", "pipeline", pipeline, "build", number)

		out, err := c.bk(ctx, "", "api", fmt.Sprintf("/pipelines/%s/builds/%s", pipeline, number))
		if err != nil {
			return Build{}, fmt.Errorf("failed to get build %s for pipeline %s: %w", number, pipeline, err)
		}

		var build Build
		if err := json.Unmarshal(out, &build); err != nil {
			logging.Error("failed to parse build", "error", err, "output", truncate(out))
			return Build{}, fmt.Errorf("failed to parse build %s: %w", number, err)
		}
		if build.Pipeline.Slug == "" {
			build.Pipeline.Slug = pipeline
		}

		logging.Debug("fetched build", "build", build.Ref(), "state", build.State, "jobs", len(build.Jobs))
		return build, nil
	})
}

// JobLog fetches a job's raw log text.
func (c *Client) JobLog(ctx context.Context, pipeline, number, jobID string) (string, error) {
	key := pipeline + "/" + number + "/" + jobID
	return c.logs.GetOrLoad(ctx, key, func(ctx context.Context) (string, error) {
		logging.Debug("fetching job log", "pipeline", pipeline, "build", number, "job", jobID)

		out, err := c.bk(ctx, "", "api", fmt.Sprintf("/pipelines/%s/builds/%s/jobs/%s/log", pipeline, number, jobID))
		if err != nil {
			return "", fmt.Errorf("failed to get log for job %s: %w", jobID, err)
		}
		return ParseLogResponse(out), nil
	})
}

// ParseLogResponse extracts log text from a bk api response. The API wraps
// logs as {"content": "..."}; anything else is returned as raw text.
func ParseLogResponse(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var payload struct {
			Content *string `json:"content"`
		}
		if err := json.Unmarshal(trimmed, &payload); err == nil && payload.Content != nil {
			return *payload.Content
		}
	}
	return string(out)
}

// Ping checks that bk can reach the API with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.bk(ctx, "", "api", "/pipelines?per_page=1"); err != nil {
		return fmt.Errorf("buildkite CLI is not properly configured: %w", err)
	}
	return nil
}

// Configure stores token and org in the bk CLI's user config. bk is run from
// home so it does not drop a project-local .bk.yaml into the working tree;
// a stray one left in cwd by older versions is removed.
func (c *Client) Configure(ctx context.Context, home, cwd, token, org string) (removedLocal bool, err error) {
	if _, err := c.bk(ctx, home, "configure", "--force", "--token", token, "--org", org); err != nil {
		return false, fmt.Errorf("failed to configure buildkite CLI: %w", err)
	}

	if cwd == "" || cwd == home {
		return false, nil
	}
	local := filepath.Join(cwd, ".bk.yaml")
	if _, statErr := os.Stat(local); statErr != nil {
		return false, nil
	}
	if err := os.Remove(local); err != nil {
		logging.Warn("failed to remove local bk config", "path", local, "error", err)
		return false, nil
	}
	return true, nil
}

// UseOrg selects org as the bk CLI default.
func (c *Client) UseOrg(ctx context.Context, org string) error {
	if _, err := c.bk(ctx, "", "use", org); err != nil {
		return fmt.Errorf("failed to select organization %s: %w", org, err)
	}
	return nil
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
