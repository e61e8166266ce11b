package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/steveyegge/issuelens/internal/types"
)

// FilePlaceholder in an analyzer command is replaced by the resource key.
// A command without it gets the key appended as its last argument.
const FilePlaceholder = "{file}"

// Exec runs an external analyzer that prints a JSON array of issues on stdout.
// The same command shape serves full and incremental analysis and the
// exclusion query.
type Exec struct {
	Command string // e.g. "golangci-lint-json {file}"
	Dir     string
}

// ErrNoCommand is returned when the analyzer command is not configured.
var ErrNoCommand = errors.New("analyzer command not configured")

// RunFullAnalysis runs the command and tags results as full-analysis issues.
func (e *Exec) RunFullAnalysis(ctx context.Context, key string) ([]*types.Issue, error) {
	issues, err := e.run(ctx, key)
	if err != nil {
		return nil, err
	}
	return stamp(issues, key, types.SourceFull), nil
}

// RunIncrementalCommand runs the command and tags results as command issues.
func (e *Exec) RunIncrementalCommand(ctx context.Context, key string) ([]*types.Issue, error) {
	issues, err := e.run(ctx, key)
	if err != nil {
		return nil, err
	}
	return stamp(issues, key, types.SourceCommand), nil
}

// QueryExclusions runs the command and tags results as exclusions. It lets a
// tracker CLI serve the remote exclusion query.
func (e *Exec) QueryExclusions(ctx context.Context, key string) ([]*types.Issue, error) {
	issues, err := e.run(ctx, key)
	if err != nil {
		return nil, err
	}
	return stamp(issues, key, types.SourceExclusions), nil
}

func (e *Exec) argv(key string) []string {
	fields := strings.Fields(e.Command)
	replaced := false
	for i, f := range fields {
		if strings.Contains(f, FilePlaceholder) {
			fields[i] = strings.ReplaceAll(f, FilePlaceholder, key)
			replaced = true
		}
	}
	if !replaced {
		fields = append(fields, key)
	}
	return fields
}

func (e *Exec) run(ctx context.Context, key string) ([]*types.Issue, error) {
	if strings.TrimSpace(e.Command) == "" {
		return nil, ErrNoCommand
	}
	argv := e.argv(key)
	// #nosec G204 - analyzer command comes from user configuration
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("analyzer %s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}
	var issues []*types.Issue
	if err := json.Unmarshal(out, &issues); err != nil {
		return nil, fmt.Errorf("analyzer %s: decoding output: %w", argv[0], err)
	}
	return issues, nil
}
