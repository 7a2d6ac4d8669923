package post

import "errors"

// Kind classifies pipeline failures by the scope they affect.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnrecognizedPayload: page is not a post listing. Per page.
	KindUnrecognizedPayload
	// KindInvalidRecord: candidate failed validation. Per record.
	KindInvalidRecord
	// KindTransport: a single fetch attempt failed. Per attempt.
	KindTransport
	// KindRetriesExhausted: attempt budget spent. Per target.
	KindRetriesExhausted
	// KindFatalFetch: permanent fetch failure. Per target.
	KindFatalFetch
	// KindCancelled: run-level cancellation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindUnrecognizedPayload:
		return "unrecognized_payload"
	case KindInvalidRecord:
		return "invalid_record"
	case KindTransport:
		return "transport"
	case KindRetriesExhausted:
		return "retries_exhausted"
	case KindFatalFetch:
		return "fatal_fetch"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	ErrUnrecognizedPayload = errors.New("payload is not a post listing")
	ErrInvalidRecord       = errors.New("invalid record")
	ErrRetriesExhausted    = errors.New("retries exhausted")
	ErrFatalFetch          = errors.New("fatal fetch error")
	ErrCancelled           = errors.New("run cancelled")
)

// KindOf maps an error to its taxonomy entry. Transport errors are detected
// through the Kind method implemented by fetch.TransportError.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrRetriesExhausted):
		return KindRetriesExhausted
	case errors.Is(err, ErrFatalFetch):
		return KindFatalFetch
	case errors.Is(err, ErrUnrecognizedPayload):
		return KindUnrecognizedPayload
	case errors.Is(err, ErrInvalidRecord):
		return KindInvalidRecord
	}

	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}
