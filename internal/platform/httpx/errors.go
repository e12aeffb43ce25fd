package httpx

import (
	"net/http"

	"github.com/facturia/facturia/internal/shared"
)

// Failure is the body returned for every failed API call.
type Failure struct {
	Success bool        `json:"success"`
	Code    shared.Kind `json:"code"`
	Message string      `json:"message"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindInvalidRequest:
		return http.StatusBadRequest
	case shared.KindValidationRejected:
		return http.StatusUnprocessableEntity
	case shared.KindSequenceConflict:
		return http.StatusConflict
	case shared.KindAuthorityFault, shared.KindExtractionFailed:
		return http.StatusBadGateway
	case shared.KindTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RespondFailure classifies err and writes the failure body. Internal errors
// are reported without detail.
func RespondFailure(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	message := err.Error()
	if kind == shared.KindInternal {
		message = "internal error"
	}
	JSON(w, StatusFor(kind), Failure{Success: false, Code: kind, Message: message})
}
