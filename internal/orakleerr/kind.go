// Package orakleerr classifies engine errors into the kinds enumerated by
// the error handling design: callers branch on Kind, not on concrete types.
package orakleerr

import "errors"

type Kind int

const (
	Unknown Kind = iota
	TransientNetwork
	SkillInvocationFailed
	LLMFormatError
	GuardrailTriggered
	IndexInconsistency
	CapacityExceeded
	Fatal
)

func (k Kind) String() string {
	switch k {
	case TransientNetwork:
		return "transient_network"
	case SkillInvocationFailed:
		return "skill_invocation_failed"
	case LLMFormatError:
		return "llm_format_error"
	case GuardrailTriggered:
		return "guardrail_triggered"
	case IndexInconsistency:
		return "index_inconsistency"
	case CapacityExceeded:
		return "capacity_exceeded"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// kindError wraps an underlying error with a Kind so call sites can branch
// with errors.Is/As without needing a distinct Go type per kind.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.kind.String() + ": " + e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Wrap annotates err with kind. A nil err returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Is reports whether err (or something it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Unknown if err carries none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}
