package producer

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/issuelens/internal/types"
)

// Fixture serves canned producer results from a YAML file:
//
//	resources:
//	  src/a.go:
//	    reference: |
//	      package a
//	    issues:
//	      - {rule: go:S100, line: 1, severity: MAJOR, debt: 5min}
//	    command: []
//	    exclusions:
//	      - {rule: go:S100, line: 1, status: RESOLVED, resolution: FALSE-POSITIVE}
//
// It implements every producer interface and is used for demos and tests.
type Fixture struct {
	Resources map[string]*FixtureResource `yaml:"resources"`
}

// FixtureResource is one resource's canned data.
type FixtureResource struct {
	Reference  *string        `yaml:"reference,omitempty"`
	Issues     []*types.Issue `yaml:"issues,omitempty"`
	Command    []*types.Issue `yaml:"command,omitempty"`
	Exclusions []*types.Issue `yaml:"exclusions,omitempty"`
}

// LoadFixture parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	// #nosec G304 - fixture path comes from user configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture parses fixture YAML and validates every issue in it.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	for key, res := range f.Resources {
		if res == nil {
			f.Resources[key] = &FixtureResource{}
			continue
		}
		for _, list := range [][]*types.Issue{res.Issues, res.Command, res.Exclusions} {
			for i, issue := range list {
				if issue.Resource == "" {
					issue.Resource = key
				}
				if err := issue.Validate(); err != nil {
					return nil, fmt.Errorf("fixture %s issue %d: %w", key, i, err)
				}
			}
		}
	}
	return &f, nil
}

// Keys returns the fixture's resource keys in sorted order.
func (f *Fixture) Keys() []string {
	keys := make([]string, 0, len(f.Resources))
	for k := range f.Resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasReference reports whether the fixture carries reference text for key.
func (f *Fixture) HasReference(key string) bool {
	res := f.Resources[key]
	return res != nil && res.Reference != nil
}

func (f *Fixture) FetchReferenceSource(_ context.Context, key string, _ bool) (string, error) {
	res := f.Resources[key]
	if res == nil || res.Reference == nil {
		return "", nil
	}
	return *res.Reference, nil
}

func (f *Fixture) RunFullAnalysis(_ context.Context, key string) ([]*types.Issue, error) {
	return f.list(key, func(r *FixtureResource) []*types.Issue { return r.Issues }, types.SourceFull), nil
}

func (f *Fixture) RunIncrementalCommand(_ context.Context, key string) ([]*types.Issue, error) {
	return f.list(key, func(r *FixtureResource) []*types.Issue { return r.Command }, types.SourceCommand), nil
}

func (f *Fixture) QueryExclusions(_ context.Context, key string) ([]*types.Issue, error) {
	return f.list(key, func(r *FixtureResource) []*types.Issue { return r.Exclusions }, types.SourceExclusions), nil
}

func (f *Fixture) list(key string, pick func(*FixtureResource) []*types.Issue, source types.Source) []*types.Issue {
	res := f.Resources[key]
	if res == nil {
		return nil
	}
	src := pick(res)
	out := make([]*types.Issue, len(src))
	for i, issue := range src {
		out[i] = issue.Clone()
	}
	return stamp(out, key, source)
}
