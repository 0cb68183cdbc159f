// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the subsidy matching endpoint and keeps a clear separation
// between HTTP concerns and the matching/recommendation services. Failure
// responses always carry the full expected body shape so clients can render
// uniformly.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
)

// MatchResponse is the success body of POST /match-subsidy.
type MatchResponse struct {
	Matches        []domain.Subsidy `json:"matches"`
	MatchCount     int              `json:"matchCount"`
	Recommendation string           `json:"recommendation"`
}

// errorResponse is the client-error body: a bare error string.
type errorResponse struct {
	Error string `json:"error"`
}

// serverErrorResponse is the server-error body. It keeps the success shape
// populated so the client never sees a malformed payload.
type serverErrorResponse struct {
	Error          string           `json:"error"`
	Matches        []domain.Subsidy `json:"matches"`
	MatchCount     int              `json:"matchCount"`
	Recommendation string           `json:"recommendation"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeClientError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeServerError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, serverErrorResponse{
		Error:          "Failed to match subsidies. Please try again.",
		Matches:        []domain.Subsidy{},
		MatchCount:     0,
		Recommendation: "We encountered an error while processing your request. Please try again.",
	})
}
