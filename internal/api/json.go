package api

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 problem-details body; every error response on
// this surface uses it.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

const problemTypeBlank = "about:blank"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem emits a problem-details error with the request path as
// the instance.
func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     problemTypeBlank,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}
