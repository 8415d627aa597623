package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// readForm reads a flat set of string fields from either a urlencoded form
// or a JSON object body.
func readForm(r *http.Request) (map[string]string, error) {
	out := make(map[string]string)
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			return nil, validationError(ErrCodeMissingField, "Invalid request body", "")
		}
		for k, v := range data {
			switch tv := v.(type) {
			case string:
				out[k] = tv
			case bool:
				out[k] = fmt.Sprint(tv)
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, validationError(ErrCodeMissingField, "Invalid form data", "")
	}
	for k, v := range r.Form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}

func formBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// writeError renders err as its public AuthError. Store failures are logged
// here since the client only sees a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	authErr, status := PublicError(err)
	if status >= http.StatusInternalServerError || errors.Is(err, ErrStoreUnavailable) {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, authErr)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
