package git

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/cifail/internal/process"
)

func runnerReturning(stdout string, err error) *process.RunnerMock {
	return &process.RunnerMock{
		RunFunc: func(ctx context.Context, cmd process.Command) (process.Result, error) {
			return process.Result{Stdout: []byte(stdout)}, err
		},
	}
}

func TestIsRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("inside work tree", func(t *testing.T) {
		r := runnerReturning("true\n", nil)
		ok, err := IsRepo(ctx, r, "/repo")
		require.NoError(t, err)
		assert.True(t, ok)

		calls := r.RunCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "git", calls[0].Cmd.Name)
		assert.Equal(t, "/repo", calls[0].Cmd.Dir)
		assert.Equal(t, []string{"rev-parse", "--is-inside-work-tree"}, calls[0].Cmd.Args)
		require.NoError(t, RequireRepo(ctx, r, "/repo"))
	})

	t.Run("outside work tree", func(t *testing.T) {
		r := runnerReturning("", &process.ExitError{Command: "git", ExitCode: 128, Stderr: "fatal: not a git repository"})
		ok, err := IsRepo(ctx, r, "/tmp")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, RequireRepo(ctx, r, "/tmp"), ErrNotRepo)
	})

	t.Run("git missing", func(t *testing.T) {
		r := runnerReturning("", &process.NotFoundError{Name: "git"})
		_, err := IsRepo(ctx, r, "/repo")
		assert.ErrorIs(t, err, process.ErrCommandNotFound)
	})
}

func TestCurrentBranch(t *testing.T) {
	r := runnerReturning("feature/ci\n", nil)
	branch, err := CurrentBranch(context.Background(), r, "")
	require.NoError(t, err)
	assert.Equal(t, "feature/ci", branch)
	assert.Equal(t, []string{"branch", "--show-current"}, r.RunCalls()[0].Cmd.Args)

	_, err = CurrentBranch(context.Background(), runnerReturning("", &process.ExitError{Command: "git", ExitCode: 1}), "")
	assert.Error(t, err)
}
