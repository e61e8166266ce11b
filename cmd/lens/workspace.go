package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/issuelens/internal/actions"
	"github.com/steveyegge/issuelens/internal/config"
	"github.com/steveyegge/issuelens/internal/orchestrator"
	"github.com/steveyegge/issuelens/internal/producer"
	"github.com/steveyegge/issuelens/internal/settings"
	"github.com/steveyegge/issuelens/internal/telemetry"
)

// workspace is the engine wired from configuration for one lens invocation.
type workspace struct {
	root     string // Resource keys are relative to root
	settings config.Settings
	fixture  *producer.Fixture
	orch     *orchestrator.Orchestrator
	remote   actions.IssueUpdater
}

func newWorkspace(ctx context.Context) (*workspace, error) {
	s := config.Get()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	ws := &workspace{root: cwd, settings: s}

	set, err := ws.producers(ctx)
	if err != nil {
		return nil, err
	}
	ws.orch = orchestrator.New(orchestrator.Config{
		Producers:   telemetry.WrapProducers(set),
		Logger:      logger,
		Jobs:        s.BatchJobs,
		HoursPerDay: s.HoursPerDay,
	})
	if cmd := strings.Fields(s.TrackerCommand); len(cmd) > 0 {
		ws.remote = &actions.CommandUpdater{Command: cmd, Dir: ws.root}
	}
	return ws, nil
}

// producers builds the producer set. A fixture serves everything it holds;
// configured commands and the reference mode fill the rest.
func (ws *workspace) producers(ctx context.Context) (producer.Set, error) {
	s := ws.settings
	var set producer.Set

	if s.IssuesFixture != "" {
		f, err := producer.LoadFixture(s.IssuesFixture)
		if err != nil {
			return set, err
		}
		ws.fixture = f
		set = producer.Set{Reference: f, Full: f, Incremental: f, Exclusions: f}
	}

	if ws.fixture == nil {
		switch s.ReferenceMode {
		case config.ReferenceDir:
			set.Reference = &producer.Dir{Root: s.ReferenceDir}
		default:
			g := &producer.Git{Dir: ws.root, Rev: s.ReferenceRev}
			top, err := g.TopLevel(ctx)
			if err != nil {
				return set, fmt.Errorf("reference.mode is git but %s is not in a git work tree: %w", ws.root, err)
			}
			ws.root = top
			g.Dir = top
			set.Reference = &producer.ResilientReference{Inner: g, MaxElapsed: s.RetryMaxElapsed, Logger: logger}
		}
	}

	if s.AnalyzerCommand != "" {
		set.Full = &producer.Exec{Command: s.AnalyzerCommand, Dir: ws.root}
		incremental := s.IncrementalCommand
		if incremental == "" {
			incremental = s.AnalyzerCommand
		}
		set.Incremental = &producer.Exec{Command: incremental, Dir: ws.root}
	}
	if s.ExclusionsCommand != "" {
		set.Exclusions = &producer.ResilientExclusions{
			Inner:      &producer.Exec{Command: s.ExclusionsCommand, Dir: ws.root},
			MaxElapsed: s.RetryMaxElapsed,
			Logger:     logger,
		}
	}

	if set.Full == nil {
		return set, fmt.Errorf("no analyzer: set %s or %s", config.KeyAnalyzerCommand, config.KeyIssuesFixture)
	}
	return set, nil
}

// key converts a command-line path to a resource key relative to root.
// Fixture keys are used verbatim.
func (ws *workspace) key(arg string) (string, error) {
	if ws.fixture != nil {
		if _, ok := ws.fixture.Resources[arg]; ok {
			return arg, nil
		}
	}
	return resourceKey(ws.root, arg)
}

func resourceKey(root, arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", arg, root)
	}
	return filepath.ToSlash(rel), nil
}

// loadBuffer puts the working copy of key into the orchestrator. A file that
// does not exist on disk is shown against its reference text.
func (ws *workspace) loadBuffer(key string) error {
	data, err := os.ReadFile(filepath.Join(ws.root, filepath.FromSlash(key))) // #nosec G304 -- user-selected file
	switch {
	case err == nil:
		ws.orch.SetBuffer(key, string(data))
	case errors.Is(err, os.ErrNotExist):
		ws.orch.CloseBuffer(key)
	default:
		return err
	}
	return nil
}

// openSettings returns the preferences store.
func openSettings() (*settings.Store, error) {
	path := config.GetString(config.KeySettingsPath)
	if path == "" {
		var err error
		if path, err = settings.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return settings.Open(path), nil
}
