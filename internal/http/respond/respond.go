package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Envelope is the standard API response wrapper. Route-specific responses
// embed it so their extra fields sit next to success and message.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// OK builds a success envelope.
func OK(message string) Envelope {
	return Envelope{Success: true, Message: message}
}

// JSON writes payload with the given status. Encode failures go to the
// global zap logger.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("encode response payload", zap.Int("status", status), zap.Error(err))
	}
}

// Error writes a failure envelope. detail is omitted when empty.
func Error(w http.ResponseWriter, status int, message, detail string) {
	JSON(w, status, Envelope{Success: false, Message: message, Error: detail})
}
