// Package sourcediff computes line-granularity differences between the
// reference snapshot of a resource and the text currently in the editor.
//
// Lines are compared by 64-bit xxhash signatures. Each distinct signature is
// interned to a rune so the longest-common-subsequence search can run over
// rune slices with go-diff's Myers implementation, which keeps very large
// files cheap: one hash per line, no string comparison per run.
package sourcediff

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"fortio.org/safecast"
	"github.com/cespare/xxhash/v2"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/steveyegge/issuelens/internal/debug"
)

// RunKind tags a run of a diff report.
type RunKind int

// Run kinds
const (
	Unchanged RunKind = iota
	Inserted
	Deleted
	Modified
)

func (k RunKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("RunKind(%d)", int(k))
	}
}

// MarshalText renders the kind by name in JSON output.
func (k RunKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Range is a half-open [Start, End) range of 0-based line indexes.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of lines in the range.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether line index i lies in the range.
func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// Run is one contiguous block of the diff in both coordinate spaces.
type Run struct {
	Kind RunKind `json:"kind"`
	Ref  Range   `json:"ref"`
	Cur  Range   `json:"cur"`
}

// Report is the ordered sequence of runs covering both texts exactly once.
type Report struct {
	Runs     []Run `json:"runs"`
	RefLines int   `json:"ref_lines"`
	CurLines int   `json:"cur_lines"`
}

// Changed reports whether any run is not Unchanged.
func (r *Report) Changed() bool {
	for _, run := range r.Runs {
		if run.Kind != Unchanged {
			return true
		}
	}
	return false
}

// ChangedRuns returns the runs that are not Unchanged.
func (r *Report) ChangedRuns() []Run {
	var out []Run
	for _, run := range r.Runs {
		if run.Kind != Unchanged {
			out = append(out, run)
		}
	}
	return out
}

// FindRef returns the run whose reference range contains line index i.
// Inserted runs have empty reference ranges and are never returned.
func (r *Report) FindRef(i int) (Run, bool) {
	lo, hi := 0, len(r.Runs)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		run := r.Runs[mid]
		switch {
		case run.Ref.End <= i:
			// Also skips zero-width inserted runs sitting at i.
			lo = mid + 1
		case run.Ref.Start > i:
			hi = mid
		default:
			return run, true
		}
	}
	return Run{}, false
}

// Validate checks the report invariant: ranges are contiguous, monotonic and
// cover each text exactly once.
func (r *Report) Validate() error {
	refPos, curPos := 0, 0
	for i, run := range r.Runs {
		if run.Ref.Start != refPos || run.Cur.Start != curPos {
			return fmt.Errorf("run %d (%s) not contiguous: ref %d/%d cur %d/%d",
				i, run.Kind, run.Ref.Start, refPos, run.Cur.Start, curPos)
		}
		if run.Ref.Len() < 0 || run.Cur.Len() < 0 {
			return fmt.Errorf("run %d (%s) has a negative range", i, run.Kind)
		}
		if err := checkKind(run); err != nil {
			return fmt.Errorf("run %d: %w", i, err)
		}
		refPos, curPos = run.Ref.End, run.Cur.End
	}
	if refPos != r.RefLines || curPos != r.CurLines {
		return fmt.Errorf("runs cover ref %d/%d cur %d/%d lines", refPos, r.RefLines, curPos, r.CurLines)
	}
	return nil
}

func checkKind(run Run) error {
	rl, cl := run.Ref.Len(), run.Cur.Len()
	ok := false
	switch run.Kind {
	case Unchanged:
		ok = rl == cl && rl > 0
	case Inserted:
		ok = rl == 0 && cl > 0
	case Deleted:
		ok = rl > 0 && cl == 0
	case Modified:
		ok = rl > 0 && cl > 0
	}
	if !ok {
		return fmt.Errorf("%s run with ref len %d, cur len %d", run.Kind, rl, cl)
	}
	return nil
}

// ComputationError reports text that cannot be correlated, e.g. invalid UTF-8.
// Callers treat it as "no correlation available".
type ComputationError struct {
	Side   string // "reference" or "current"
	Reason string
}

func (e *ComputationError) Error() string {
	if e.Side == "" {
		return "diff: " + e.Reason
	}
	return fmt.Sprintf("diff: %s text: %s", e.Side, e.Reason)
}

// SplitLines splits text on "\n". A trailing newline does not open an extra
// empty line, and an empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// LineCount returns len(SplitLines(text)) without allocating the lines.
func LineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// Diff computes the line-level diff between reference and current text.
// Identical inputs always produce identical reports.
func Diff(reference, current string) (*Report, error) {
	if !utf8.ValidString(reference) {
		return nil, &ComputationError{Side: "reference", Reason: "invalid UTF-8"}
	}
	if !utf8.ValidString(current) {
		return nil, &ComputationError{Side: "current", Reason: "invalid UTF-8"}
	}

	refLines := SplitLines(reference)
	curLines := SplitLines(current)

	in := newInterner()
	refSig, err := in.signatures(refLines)
	if err != nil {
		return nil, err
	}
	curSig, err := in.signatures(curLines)
	if err != nil {
		return nil, err
	}

	report := &Report{RefLines: len(refLines), CurLines: len(curLines)}
	if runesEqual(refSig, curSig) {
		if len(refSig) > 0 {
			report.Runs = []Run{{
				Kind: Unchanged,
				Ref:  Range{0, len(refSig)},
				Cur:  Range{0, len(curSig)},
			}}
		}
		return report, nil
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // Unbounded search keeps the result deterministic.
	diffs := dmp.DiffMainRunes(refSig, curSig, false)

	b := runBuilder{report: report}
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		if n == 0 {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.flush()
			b.add(Run{
				Kind: Unchanged,
				Ref:  Range{b.ref, b.ref + n},
				Cur:  Range{b.cur, b.cur + n},
			})
		case diffmatchpatch.DiffDelete:
			b.pendingDel += n
		case diffmatchpatch.DiffInsert:
			b.pendingIns += n
		}
	}
	b.flush()

	debug.Logf("sourcediff: %d ref lines, %d cur lines, %d runs (%d distinct lines)\n",
		report.RefLines, report.CurLines, len(report.Runs), in.size())
	return report, nil
}

// runBuilder accumulates adjacent delete/insert blocks so that a deletion
// followed by an insertion becomes a single Modified run.
type runBuilder struct {
	report     *Report
	ref, cur   int
	pendingDel int
	pendingIns int
}

func (b *runBuilder) add(run Run) {
	b.report.Runs = append(b.report.Runs, run)
	b.ref, b.cur = run.Ref.End, run.Cur.End
}

func (b *runBuilder) flush() {
	if b.pendingDel == 0 && b.pendingIns == 0 {
		return
	}
	kind := Modified
	switch {
	case b.pendingIns == 0:
		kind = Deleted
	case b.pendingDel == 0:
		kind = Inserted
	}
	b.add(Run{
		Kind: kind,
		Ref:  Range{b.ref, b.ref + b.pendingDel},
		Cur:  Range{b.cur, b.cur + b.pendingIns},
	})
	b.pendingDel, b.pendingIns = 0, 0
}

// Rune space used for interned signatures: every valid code point except the
// UTF-16 surrogate block, so string(runes) round-trips inside go-diff.
const (
	surrogateMin  = 0xD800
	surrogateSpan = 0x800
)

type interner struct {
	ids map[uint64]rune
}

func newInterner() *interner {
	return &interner{ids: make(map[uint64]rune)}
}

func (in *interner) size() int { return len(in.ids) }

func (in *interner) signatures(lines []string) ([]rune, error) {
	out := make([]rune, len(lines))
	for i, line := range lines {
		h := xxhash.Sum64String(strings.TrimSuffix(line, "\r"))
		r, ok := in.ids[h]
		if !ok {
			var err error
			r, err = signatureRune(len(in.ids) + 1)
			if err != nil {
				return nil, err
			}
			in.ids[h] = r
		}
		out[i] = r
	}
	return out, nil
}

func signatureRune(idx int) (rune, error) {
	if idx >= surrogateMin {
		idx += surrogateSpan
	}
	r, err := safecast.Convert[rune](idx)
	if err != nil || r > utf8.MaxRune {
		return 0, &ComputationError{Reason: fmt.Sprintf("too many distinct lines (%d)", idx)}
	}
	return r, nil
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
