package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the structured error carried by every failed gateway response.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope written by RespondWithError.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	RequestID string    `json:"request_id,omitempty"`
	Error     ErrorBody `json:"error"`
}

// RespondWithError sends a structured error response. requestID may be empty when
// the failure happened before a request id was assigned.
func RespondWithError(w http.ResponseWriter, code int, errType, message, requestID string) {
	_ = RespondWithJSON(w, code, ErrorResponse{
		Success:   false,
		RequestID: requestID,
		Error:     ErrorBody{Type: errType, Message: message},
	})
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"success":false,"error":{"type":"internal_error","message":"failed to encode response"}}`, http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(append(body, '\n'))
	return err
}
