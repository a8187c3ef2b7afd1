// Package handler holds the HTTP handlers of the status API.
package handler

import (
	"encoding/json"
	"net/http"
)

// writeJSON marshals v and writes it with status. A marshal failure becomes
// a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
