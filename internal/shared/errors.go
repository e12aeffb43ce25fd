package shared

import "errors"

var (
	// ErrInvalidRequest indicates missing or malformed input the caller must correct.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrExtractionFailed indicates the understanding service was unavailable or returned non-conforming output.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrValidationRejected indicates a business-rule violation in an otherwise well-formed draft.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrSequenceConflict indicates the authority saw a different next voucher number than the one reserved.
	ErrSequenceConflict = errors.New("sequence conflict")
	// ErrAuthorityFault indicates the authority rejected the payload.
	ErrAuthorityFault = errors.New("authority fault")
	// ErrTransport indicates a network failure or timeout talking to the authority.
	ErrTransport = errors.New("transport error")
)

// Kind classifies errors crossing the orchestrator boundary.
type Kind string

// Error kinds reported to clients.
const (
	KindInvalidRequest     Kind = "invalid_request"
	KindExtractionFailed   Kind = "extraction_failed"
	KindValidationRejected Kind = "validation_rejected"
	KindSequenceConflict   Kind = "sequence_conflict"
	KindAuthorityFault     Kind = "authority_fault"
	KindTransport          Kind = "transport_error"
	KindInternal           Kind = "internal_error"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrExtractionFailed, KindExtractionFailed},
	{ErrValidationRejected, KindValidationRejected},
	{ErrSequenceConflict, KindSequenceConflict},
	{ErrAuthorityFault, KindAuthorityFault},
	{ErrTransport, KindTransport},
}

// KindOf returns the taxonomy kind of err, or KindInternal when it wraps none.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
