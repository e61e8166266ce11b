// Package issuelens provides a minimal public API for embedding the issue
// overlay engine in editors and other tools.
//
// An Engine caches analyzer issues per resource, remaps them from the
// reference snapshot onto the working copy and filters them for display.
// Callers supply the producers; the lens CLI shows one way to wire them.
package issuelens

import (
	"github.com/steveyegge/issuelens/internal/filter"
	"github.com/steveyegge/issuelens/internal/orchestrator"
	"github.com/steveyegge/issuelens/internal/producer"
	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/types"
)

// Core types for working with issues
type (
	Issue      = types.Issue
	IssueKey   = types.IssueKey
	Severity   = types.Severity
	Status     = types.Status
	Resolution = types.Resolution
	Statistics = types.Statistics
	Positioned = remap.Positioned
	Criteria   = filter.Criteria
)

// Severity constants
const (
	SeverityBlocker  = types.SeverityBlocker
	SeverityCritical = types.SeverityCritical
	SeverityMajor    = types.SeverityMajor
	SeverityMinor    = types.SeverityMinor
	SeverityInfo     = types.SeverityInfo
)

// Producer interfaces implemented by the host
type (
	ReferenceSource     = producer.ReferenceSource
	FullAnalyzer        = producer.FullAnalyzer
	IncrementalAnalyzer = producer.IncrementalAnalyzer
	ExclusionQuerier    = producer.ExclusionQuerier
	Producers           = producer.Set
)

// Engine types
type (
	Engine  = orchestrator.Orchestrator
	Config  = orchestrator.Config
	Request = orchestrator.Request
	Mode    = orchestrator.Mode
	Trigger = orchestrator.Trigger
)

// Analysis modes and triggers
const (
	ModeFull        = orchestrator.ModeFull
	ModeIncremental = orchestrator.ModeIncremental
	ModeExclusions  = orchestrator.ModeExclusions

	TriggerSave = orchestrator.TriggerSave
	TriggerOpen = orchestrator.TriggerOpen
	TriggerUser = orchestrator.TriggerUser
)

// New creates an engine over the given producers with default settings.
func New(p Producers) *Engine {
	return orchestrator.New(orchestrator.Config{Producers: p})
}

// LoadFixture reads a YAML fixture that implements every producer interface,
// for demos and tests.
func LoadFixture(path string) (Producers, error) {
	f, err := producer.LoadFixture(path)
	if err != nil {
		return Producers{}, err
	}
	return Producers{Reference: f, Full: f, Incremental: f, Exclusions: f}, nil
}
