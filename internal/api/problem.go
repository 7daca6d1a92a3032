package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"nifty-go/internal/registry"
)

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// Problem is an RFC 7807 "problem details" document. Kind carries the
// registry error kind so clients can branch without parsing Detail.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Kind     string `json:"kind"`
}

var kindStatus = map[registry.Kind]int{
	registry.KindNotFound:              http.StatusNotFound,
	registry.KindAlreadyExists:         http.StatusConflict,
	registry.KindConflict:              http.StatusConflict,
	registry.KindUnauthorized:          http.StatusUnauthorized,
	registry.KindInvalidInput:          http.StatusBadRequest,
	registry.KindDependencyUnavailable: http.StatusServiceUnavailable,
	registry.KindInternal:              http.StatusInternalServerError,
}

// StatusOf maps a registry error kind to an HTTP status code.
func StatusOf(kind registry.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err as a problem document. Only the registry's
// user-facing message is exposed, never the wrapped cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := registry.KindOf(err)
	detail := "internal error"
	var e *registry.Error
	if errors.As(err, &e) {
		detail = e.Message
	}
	writeProblem(w, r, kind, detail)
}

// badRequest reports malformed transport input with the InvalidInput kind.
func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, registry.KindInvalidInput, detail)
}

// unauthorized reports a missing or malformed credential.
func unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, registry.KindUnauthorized, detail)
}

func writeProblem(w http.ResponseWriter, r *http.Request, kind registry.Kind, detail string) {
	status := StatusOf(kind)
	if kind == registry.KindUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="nifty"`)
	}
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Kind:     kind.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
