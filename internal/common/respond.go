package common

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v as a JSON response body.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders the canonical error envelope.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, map[string]any{"error": errorBody{Code: code, Message: message}})
}

// WriteError renders err using its AppError code and status when present,
// and as a 500 otherwise.
func WriteError(w http.ResponseWriter, err error) {
	app := AsAppError(err)
	JSONError(w, app.Status, app.Code, app.Message)
}
