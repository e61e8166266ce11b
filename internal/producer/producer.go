// Package producer defines the collaborators that feed the engine: the
// reference-source fetcher, the full and incremental analyzers, and the
// remote exclusion query. It also ships local implementations backed by git,
// a directory tree, an external analyzer command and YAML fixtures.
package producer

import (
	"context"
	"time"

	"github.com/steveyegge/issuelens/internal/types"
)

// ReferenceSource returns the reference snapshot text of a resource, the text
// issue line numbers are anchored to. A resource with no reference (new file)
// yields "" and no error.
type ReferenceSource interface {
	FetchReferenceSource(ctx context.Context, key string, force bool) (string, error)
}

// ModificationProber is optionally implemented by a ReferenceSource that can
// report when the upstream resource last changed. The zero time means unknown.
type ModificationProber interface {
	LastModified(ctx context.Context, key string) (time.Time, error)
}

// FullAnalyzer runs the full local analysis of a resource.
type FullAnalyzer interface {
	RunFullAnalysis(ctx context.Context, key string) ([]*types.Issue, error)
}

// IncrementalAnalyzer runs the narrower plugin command for a resource.
type IncrementalAnalyzer interface {
	RunIncrementalCommand(ctx context.Context, key string) ([]*types.Issue, error)
}

// ExclusionQuerier returns the false-positive and won't-fix issues recorded
// for a resource.
type ExclusionQuerier interface {
	QueryExclusions(ctx context.Context, key string) ([]*types.Issue, error)
}

// Set bundles the producers an orchestrator drives. Any analyzer may be nil,
// in which case requests for that mode fail with an invocation error.
type Set struct {
	Reference   ReferenceSource
	Full        FullAnalyzer
	Incremental IncrementalAnalyzer
	Exclusions  ExclusionQuerier
}

// stamp fills in the resource and source on issues returned by a producer.
func stamp(issues []*types.Issue, key string, source types.Source) []*types.Issue {
	for _, issue := range issues {
		if issue.Resource == "" {
			issue.Resource = key
		}
		issue.Source = source
	}
	return issues
}
