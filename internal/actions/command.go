package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/steveyegge/issuelens/internal/types"
)

// CommandUpdater forwards changes to an external tracker CLI. The request is
// written to the command's stdin as JSON.
type CommandUpdater struct {
	Command []string
	Dir     string
}

type commandRequest struct {
	Action string         `json:"action"`
	Issues []*types.Issue `json:"issues"`
	Change Change         `json:"change"`
}

// UpdateIssues runs the command once for the whole batch.
func (c *CommandUpdater) UpdateIssues(ctx context.Context, action string, issues []*types.Issue, change Change) error {
	if len(c.Command) == 0 {
		return fmt.Errorf("no tracker command configured")
	}
	payload, err := json.Marshal(commandRequest{Action: action, Issues: issues, Change: change})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...) // #nosec G204 -- command comes from user config
	cmd.Dir = c.Dir
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", c.Command[0], err)
		}
		return fmt.Errorf("%s: %w: %s", c.Command[0], err, msg)
	}
	return nil
}
