package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects which producer an analysis request drives.
type Mode int

// Analysis modes
const (
	ModeFull Mode = iota
	ModeIncremental
	ModeExclusions
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeIncremental:
		return "incremental"
	case ModeExclusions:
		return "exclusions"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the names printed by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return ModeFull, nil
	case "incremental", "command":
		return ModeIncremental, nil
	case "exclusions":
		return ModeExclusions, nil
	}
	return 0, fmt.Errorf("invalid analysis mode %q (want full, incremental or exclusions)", s)
}

// Trigger records what caused a request. Save and open requests arriving
// while the resource is already running are dropped; user requests cancel
// the running one and take its place.
type Trigger int

// Request triggers
const (
	TriggerSave Trigger = iota
	TriggerOpen
	TriggerUser
)

func (t Trigger) String() string {
	switch t {
	case TriggerSave:
		return "save"
	case TriggerOpen:
		return "open"
	case TriggerUser:
		return "user"
	default:
		return fmt.Sprintf("Trigger(%d)", int(t))
	}
}

// State is a resource's admission state.
type State int

// Admission states
const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Outcome is how a request ended.
type Outcome int

// Request outcomes
const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	OutcomeCancelled
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "none"
	}
}

// Request asks for one analysis of one resource.
type Request struct {
	Resource string
	Mode     Mode
	Trigger  Trigger
	Force    bool // Discard cached analysis lists and refetch the reference text
}

var (
	// ErrDuplicate is returned when a save or open request arrives while the
	// resource is already running. The request is dropped.
	ErrDuplicate = errors.New("analysis already running for resource")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator closed")

	// errSuperseded cancels a request replaced by a user-initiated one.
	errSuperseded = errors.New("superseded by a newer request")
)

// InvocationError wraps a producer failure.
type InvocationError struct {
	Resource string
	Mode     Mode
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s analysis of %s failed: %v", e.Mode, e.Resource, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Diagnostic is the last recorded outcome for a resource.
type Diagnostic struct {
	Seq     uint64
	Mode    Mode
	Outcome Outcome
	Message string // Short user-facing text
	Err     error  // Detail; nil on success
	At      time.Time
}
