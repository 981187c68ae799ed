package server

import (
	"encoding/json"
	"net/http"
)

// Problem types returned by the ops API.
const (
	ProblemTypeNotFound    = "https://modemwatch.dev/problems/not-found"
	ProblemTypeRateLimited = "https://modemwatch.dev/problems/rate-limited"
	ProblemTypeInternal    = "https://modemwatch.dev/problems/internal-error"
)

var problemTypes = map[int]string{
	http.StatusNotFound:            ProblemTypeNotFound,
	http.StatusTooManyRequests:     ProblemTypeRateLimited,
	http.StatusInternalServerError: ProblemTypeInternal,
}

// Problem is an RFC 7807 problem document. RequestID is an extension member
// matching the X-Request-ID header and the request's log line.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	typ, ok := problemTypes[status]
	if !ok {
		typ = "about:blank"
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:      typ,
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		RequestID: RequestID(r.Context()),
	})
}
