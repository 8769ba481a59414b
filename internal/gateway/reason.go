package gateway

import "net/http"

// Reason is a fixed failure code returned to callers. No other detail
// about a failure leaves the gateway.
type Reason string

const (
	ReasonMissingCredential Reason = "missing_credential"
	ReasonInvalidCredential Reason = "invalid_credential"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonPayloadTooLarge   Reason = "payload_too_large"
	ReasonInvalidPayload    Reason = "invalid_payload"
	ReasonUnknownRoute      Reason = "unknown_route"
	ReasonInternalError     Reason = "internal_error"
)

// Status returns the HTTP status for r.
func (r Reason) Status() int {
	switch r {
	case ReasonMissingCredential:
		return http.StatusUnauthorized
	case ReasonInvalidCredential:
		return http.StatusForbidden
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonPayloadTooLarge, ReasonInvalidPayload:
		return http.StatusBadRequest
	case ReasonUnknownRoute:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error Reason `json:"error"`
}
