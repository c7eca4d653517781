// Package evolerr defines the typed error kinds the core library surfaces,
// per spec.md §7. Guard-rail rejections from topology mutation (EdgeExists,
// WouldDisconnect, DegreeExceeded, WouldCycle) are NOT modeled as error
// values here — mutation methods return them as a plain Kind alongside a
// bool so the mutator's "did nothing, try something else" path never pays
// for an error allocation or an Unwrap chain.
package evolerr

import "fmt"

// Kind identifies a class of core-library failure.
type Kind int

const (
	// InvalidTopology: validation failed (bad row counts, cycles, in-degree
	// violations, forbidden output activation).
	InvalidTopology Kind = iota
	// InvalidIndex: a constraint/joint refers to a non-existent
	// particle/body/geom.
	InvalidIndex
	// IncoherentConfig: non-positive dt/iterations, negative masses, etc.
	IncoherentConfig
	// PopulationEmpty: all species culled without replacement in the same call.
	PopulationEmpty

	// EdgeExists, WouldDisconnect, DegreeExceeded, WouldCycle are guard-rail
	// rejection kinds returned directly by mutation methods, never wrapped
	// in an Error value. They are listed here so callers can use the same
	// Kind type for both "thrown" and "returned" failure classes.
	EdgeExists
	WouldDisconnect
	DegreeExceeded
	WouldCycle
)

func (k Kind) String() string {
	switch k {
	case InvalidTopology:
		return "InvalidTopology"
	case InvalidIndex:
		return "InvalidIndex"
	case IncoherentConfig:
		return "IncoherentConfig"
	case PopulationEmpty:
		return "PopulationEmpty"
	case EdgeExists:
		return "EdgeExists"
	case WouldDisconnect:
		return "WouldDisconnect"
	case DegreeExceeded:
		return "DegreeExceeded"
	case WouldCycle:
		return "WouldCycle"
	default:
		return "Unknown"
	}
}

// Error is the error type returned for InvalidTopology, InvalidIndex,
// IncoherentConfig, and PopulationEmpty — the four kinds spec.md §7 says
// "must not be swallowed" and are surfaced to the caller.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	ee, ok := err.(*Error)
	return ok && ee.Kind == kind
}
