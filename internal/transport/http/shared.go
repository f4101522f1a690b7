package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/sentinel"
)

// errorBody is the JSON error envelope shared by every endpoint.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvariantViolation:
		return http.StatusConflict
	case dErrors.CodeChallengeFailed, dErrors.CodeBusinessRule, dErrors.CodeConfigInvalid:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTransport:
		return http.StatusBadGateway
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError translates a domain error into the JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(errorBody{
		Code:    string(code),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// sentinelToDomain maps infrastructure sentinels from the session registry
// onto domain errors the envelope can carry.
func sentinelToDomain(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "flow session not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "session lookup failed")
}
