package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error codes returned in API error bodies.
const (
	codeBadRequest      = "bad_request"
	codeNotFound        = "not_found"
	codeTooLarge        = "request_too_large"
	codeRateLimited     = "rate_limited"
	codeInvalidPolicy   = "invalid_policy"
	codeInvalidDocument = "invalid_document"
	codeEnforcement     = "enforcement_failed"
	codeChainBroken     = "chain_broken"
	codeInternal        = "internal_error"
)

// ErrorBody is the JSON body of every non-2xx API response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one API error.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(RequestIDHeader),
	}})
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
// It reports whether decoding succeeded and writes the error response
// otherwise.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBodyError(w, err)
		return false
	}
	return true
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
}
