package services

import (
	"errors"
	"strings"
)

var (
	// ErrTransient marks network or 5xx provider failures; state is left for a later tick.
	ErrTransient = errors.New("transient provider error")
	// ErrPermanent marks 4xx or malformed provider responses.
	ErrPermanent = errors.New("permanent provider error")
	// ErrLocalTranscode marks a non-zero exit or timeout from the transcoder.
	ErrLocalTranscode = errors.New("local transcode error")
	// ErrStorage marks file or stream I/O failures; the unit aborts without a state change.
	ErrStorage = errors.New("storage error")
	// ErrConsistency marks a transition attempted from an invalid state.
	ErrConsistency = errors.New("consistency violation")
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
)

// Error carries the classification marker together with lane and operation context.
type Error struct {
	Marker    error
	Lane      string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Marker.Error())
	b.WriteString(": ")
	b.WriteString(buildDetail(e.Lane, e.Operation, e.Message))
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error that includes lane context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, lane, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{
		Marker:    marker,
		Lane:      strings.TrimSpace(lane),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the flattened view of a classified error used by logs and the API.
type ErrorDetails struct {
	Kind      string
	Operation string
	Message   string
	Hint      string
	Cause     string
}

// Details extracts classification details from err. Unclassified errors report kind "unknown".
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		details := ErrorDetails{
			Kind:      kindName(svcErr.Marker),
			Operation: svcErr.Operation,
			Message:   svcErr.Message,
			Hint:      hintFor(svcErr.Marker),
		}
		if svcErr.Cause != nil {
			details.Cause = svcErr.Cause.Error()
		}
		return details
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return ErrorDetails{Kind: kindName(marker), Message: err.Error(), Hint: hintFor(marker)}
		}
	}
	return ErrorDetails{Kind: "unknown", Message: err.Error(), Hint: "check logs for details"}
}

// IsTransient reports whether err should leave persisted state untouched for a retry
// on a later tick. Both provider transients and storage failures qualify.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrStorage)
}

var markers = []error{ErrTransient, ErrPermanent, ErrLocalTranscode, ErrStorage, ErrConsistency, ErrValidation, ErrNotFound}

func kindName(marker error) string {
	switch marker {
	case ErrTransient:
		return "transient"
	case ErrPermanent:
		return "permanent"
	case ErrLocalTranscode:
		return "transcode"
	case ErrStorage:
		return "storage"
	case ErrConsistency:
		return "consistency"
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func hintFor(marker error) string {
	switch marker {
	case ErrTransient:
		return "provider unreachable; will retry on next tick"
	case ErrPermanent:
		return "provider rejected the request; fix input then re-execute"
	case ErrLocalTranscode:
		return "inspect transcoder output log then re-execute"
	case ErrStorage:
		return "check disk space and permissions under data_dir"
	case ErrConsistency:
		return "topic state changed; refresh and retry"
	case ErrValidation:
		return "check request parameters"
	case ErrNotFound:
		return "verify the topic id"
	default:
		return "check logs for details"
	}
}

func buildDetail(lane, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{lane, operation, message} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
