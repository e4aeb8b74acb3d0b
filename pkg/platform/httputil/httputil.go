// Package httputil centralizes JSON response and error envelope writing so
// every handler reports failures the same way.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	derrors "threadhub/pkg/domain-errors"
)

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Internal
// causes never reach the wire; only the code does.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)
	body := map[string]string{"error": string(code)}

	if code != derrors.CodeInternal {
		var de *derrors.Error
		if errors.As(err, &de) && de.Message != "" {
			body["error_description"] = de.Message
		}
	}

	WriteJSON(w, derrors.ToHTTPStatus(code), body)
}

// Decode parses the request body into T, reporting malformed JSON as an
// invalid-argument error.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, derrors.New(derrors.CodeInvalidArgument, "invalid JSON body"))
		return req, false
	}
	return req, true
}
