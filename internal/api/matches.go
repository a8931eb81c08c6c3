package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arenalink/arena-core/internal/match"
)

// handleListMatches returns every live match.
func (s *Server) handleListMatches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"matches": s.matches.List()})
}

type createMatchRequest struct {
	Name             string `json:"name"`
	TargetScore      int    `json:"target_score"`
	CountdownSeconds *int   `json:"countdown_seconds"`
}

// handleCreateMatch creates a match in the waiting state. The caller
// becomes the creator and is the only one who may start, cancel or end it.
func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims == nil {
		writeUnauthorized(w, "missing identity")
		return
	}

	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}
	if req.TargetScore < 0 {
		writeBadRequest(w, "target_score must not be negative")
		return
	}

	countdown := s.defaultCountdown
	if req.CountdownSeconds != nil {
		countdown = *req.CountdownSeconds
	}

	info := s.matches.Create(claims.Subject, req.Name, req.TargetScore, countdown)
	writeJSON(w, http.StatusCreated, info)
}

// handleGetMatch returns a match snapshot.
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	info, err := s.matches.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "match not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleMatchRanking returns the current standings.
func (s *Server) handleMatchRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := s.matches.Ranking(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "match not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ranking": ranking})
}

// handleStartMatch begins the countdown. Creator only.
func (s *Server) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	s.matchAction(w, r, s.matches.Start)
}

// handleCancelMatch aborts a countdown. Creator only.
func (s *Server) handleCancelMatch(w http.ResponseWriter, r *http.Request) {
	s.matchAction(w, r, s.matches.Cancel)
}

// handleEndMatch finishes a running match. Creator only.
func (s *Server) handleEndMatch(w http.ResponseWriter, r *http.Request) {
	s.matchAction(w, r, s.matches.End)
}

// matchAction runs a creator-gated lifecycle operation and maps its
// domain errors onto HTTP statuses.
func (s *Server) matchAction(w http.ResponseWriter, r *http.Request, action func(matchID, byUserID string) error) {
	claims := claimsFrom(r)
	if claims == nil {
		writeUnauthorized(w, "missing identity")
		return
	}

	err := action(chi.URLParam(r, "id"), claims.Subject)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case errors.Is(err, match.ErrMatchNotFound):
		writeNotFound(w, "match not found")
	case errors.Is(err, match.ErrNotCreator):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, match.ErrInvalidTransition):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		s.logger.Error("match action", "match_id", chi.URLParam(r, "id"), "error", err)
		writeInternalError(w, "match action failed")
	}
}
