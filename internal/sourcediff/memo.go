package sourcediff

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Memo caches the most recent report for one resource. Consumers re-render on
// every keystroke-driven refresh; when neither text changed the previous
// report is returned without diffing again.
type Memo struct {
	mu      sync.Mutex
	refHash uint64
	curHash uint64
	report  *Report
	err     error
}

// Diff returns the memoized report for (reference, current), computing it on
// a miss. Errors are memoized too so malformed text is not re-scanned.
func (m *Memo) Diff(reference, current string) (*Report, error) {
	rh, ch := xxhash.Sum64String(reference), xxhash.Sum64String(current)

	m.mu.Lock()
	defer m.mu.Unlock()
	if (m.report != nil || m.err != nil) && m.refHash == rh && m.curHash == ch {
		return m.report, m.err
	}
	m.report, m.err = Diff(reference, current)
	m.refHash, m.curHash = rh, ch
	return m.report, m.err
}

// Reset drops the memoized report.
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.report, m.err = nil, nil
}
