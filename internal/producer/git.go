package producer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Git serves reference text from a git revision of the working repository.
type Git struct {
	Dir string // Repository working directory; "" means the process cwd
	Rev string // Revision holding the reference snapshot; "" means HEAD
}

// GitError carries the stderr of a failed git invocation.
type GitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), msg)
}

func (e *GitError) Unwrap() error { return e.Err }

func (g *Git) rev() string {
	if g.Rev == "" {
		return "HEAD"
	}
	return g.Rev
}

// FetchReferenceSource returns the file at the configured revision. Paths that
// do not exist at that revision have an empty reference.
func (g *Git) FetchReferenceSource(ctx context.Context, key string, _ bool) (string, error) {
	out, err := g.run(ctx, "show", g.rev()+":"+filepath.ToSlash(key))
	if err != nil {
		var gerr *GitError
		if errors.As(err, &gerr) && isMissingPath(gerr.Stderr) {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// LastModified returns the commit time of the last change to key at or before
// the configured revision.
func (g *Git) LastModified(ctx context.Context, key string) (time.Time, error) {
	out, err := g.run(ctx, "log", "-1", "--format=%ct", g.rev(), "--", filepath.ToSlash(key))
	if err != nil {
		return time.Time{}, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return time.Time{}, nil
	}
	secs, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing commit time %q: %w", out, err)
	}
	return time.Unix(secs, 0), nil
}

// TopLevel returns the root of the working tree containing Dir. Resource keys
// passed to Git are relative to it.
func (g *Git) TopLevel(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &GitError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

func isMissingPath(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "does not exist in") ||
		strings.Contains(s, "exists on disk, but not in")
}
