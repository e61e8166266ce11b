package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/issuelens/internal/filter"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return Open(filepath.Join(t.TempDir(), "nested", "settings.toml"))
}

func TestValuesRoundTrip(t *testing.T) {
	s := newStore(t)

	_, err := s.Get("columns")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Set("columns", "severity,rule,line"))
	require.NoError(t, s.Set("sort", "line"))

	got, err := s.Get("columns")
	require.NoError(t, err)
	assert.Equal(t, "severity,rule,line", got)

	require.NoError(t, s.Delete("columns"))
	require.NoError(t, s.Delete("never-set"))
	_, err = s.Get("columns")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = s.Get("sort")
	require.NoError(t, err)
	assert.Equal(t, "line", got)
}

func TestFiltersPersistAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	since := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := filter.Criteria{
		Severities:        []string{"BLOCKER", "CRITICAL"},
		Statuses:          []string{"OPEN"},
		CreatedAfter:      "-7d",
		NewOnly:           true,
		NewSince:          since,
		ModifiedLinesOnly: true,
	}
	require.NoError(t, Open(path).SaveFilter("", c))
	require.NoError(t, Open(path).SaveFilter("mine", filter.Criteria{Assignees: []string{"ana"}}))

	reopened := Open(path)
	got, err := reopened.LoadFilter(DefaultFilter)
	require.NoError(t, err)
	assert.Equal(t, c.Severities, got.Severities)
	assert.Equal(t, c.Statuses, got.Statuses)
	assert.Equal(t, "-7d", got.CreatedAfter)
	assert.True(t, got.NewOnly)
	assert.True(t, got.ModifiedLinesOnly)
	assert.True(t, since.Equal(got.NewSince))

	names, err := reopened.FilterNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "mine"}, names)

	require.NoError(t, reopened.DeleteFilter("mine"))
	_, err = reopened.LoadFilter("mine")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmptyCriteriaRoundTrip(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveFilter("all", filter.Criteria{}))
	got, err := s.LoadFilter("all")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestCorruptFileReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("values = [broken"), 0o600))

	s := Open(path)
	_, err := s.Get("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
	assert.Error(t, s.Set("x", "y"))
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "settings.toml", filepath.Base(path))
	assert.Equal(t, "lens", filepath.Base(filepath.Dir(path)))
}
