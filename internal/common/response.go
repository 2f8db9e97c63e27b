package common

import (
	"encoding/json"
	"net/http"
)

// Failure is the body of every unsuccessful API response:
// {"success": false, "message": ..., "code": ...}. Endpoints add their own
// keys (missingFields, quote totals) before writing it.
func Failure(message, code string) map[string]any {
	return map[string]any{"success": false, "message": message, "code": code}
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes a Failure body. Details, when present, go under "details".
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	body := Failure(message, code)
	if details != nil {
		body["details"] = details
	}
	JSON(w, status, body)
}
