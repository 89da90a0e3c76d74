package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cwbudde/dsdasolver/internal/config"
)

// maxSpecBytes bounds the size of a job submission body.
const maxSpecBytes = 1 << 20

// decodeRunSpec reads a JSON run spec, starting from the defaults so that
// omitted fields keep their default values.
func decodeRunSpec(r io.Reader) (config.RunSpec, error) {
	spec := config.DefaultRunSpec()
	dec := json.NewDecoder(io.LimitReader(r, maxSpecBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return spec, fmt.Errorf("invalid JSON: %w", err)
	}
	return spec, nil
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError reports an API error as {"error": msg}
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
