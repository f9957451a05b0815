package api

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in the error envelope.
const (
	codeInvalidRequest   = "invalid_request"
	codeModelNotLoaded   = "model_not_loaded"
	codePredictionFailed = "prediction_failed"
	codeQueueFull        = "queue_full"
	codeNotFound         = "not_found"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
