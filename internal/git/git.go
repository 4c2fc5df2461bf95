// Package git answers the few questions cifail asks about the working tree.
package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newhook/cifail/internal/process"
)

// ErrNotRepo is returned when dir is not inside a git work tree.
var ErrNotRepo = errors.New("not a git repository")

// IsRepo reports whether dir is inside a git work tree. A missing git
// executable is an error; any other failure means "no".
func IsRepo(ctx context.Context, runner process.Runner, dir string) (bool, error) {
	res, err := runner.Run(ctx, process.Command{Name: "git", Args: []string{"rev-parse", "--is-inside-work-tree"}, Dir: dir})
	if err != nil {
		if errors.Is(err, process.ErrCommandNotFound) {
			return false, err
		}
		return false, nil
	}
	return strings.TrimSpace(string(res.Stdout)) == "true", nil
}

// RequireRepo returns ErrNotRepo when dir is not inside a git work tree.
func RequireRepo(ctx context.Context, runner process.Runner, dir string) error {
	ok, err := IsRepo(ctx, runner, dir)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRepo, dir)
	}
	return nil
}

// CurrentBranch returns the checked-out branch, or "" for a detached HEAD.
func CurrentBranch(ctx context.Context, runner process.Runner, dir string) (string, error) {
	res, err := runner.Run(ctx, process.Command{Name: "git", Args: []string{"branch", "--show-current"}, Dir: dir})
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}
