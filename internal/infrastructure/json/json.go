// Package json writes JSON HTTP responses.
package json

import (
	"net/http"

	"github.com/goccy/go-json"
)

func Write(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}
