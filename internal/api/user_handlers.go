package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// userSummary is one directory entry as reported by the query endpoints.
type userSummary struct {
	ObjectID            string `json:"objectId"`
	Alias               string `json:"alias"`
	Extension           string `json:"extension"`
	CallHandlerObjectID string `json:"callHandlerObjectId"`
	AlternateGreeting   bool   `json:"alternateGreetingEnabled"`
}

// handleListUsers returns the monitored mailbox users. Only users whose
// alias is an email address are relay targets; system accounts and plain
// extensions are filtered out.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.directory.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, http.StatusBadGateway, "user directory unavailable")
		return
	}

	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		if !strings.Contains(u.Alias, "@") {
			continue
		}
		summary := userSummary{
			ObjectID:            u.ObjectID,
			Alias:               u.Alias,
			Extension:           u.Extension,
			CallHandlerObjectID: u.CallHandlerObjectID,
		}
		if u.CallHandlerObjectID != "" {
			greeting, err := s.directory.AlternateGreeting(r.Context(), u.CallHandlerObjectID)
			if err != nil {
				slog.Warn("failed to read alternate greeting",
					"alias", u.Alias, "call_handler", u.CallHandlerObjectID, "error", err)
			} else {
				summary.AlternateGreeting = bool(greeting.Enabled)
			}
		}
		out = append(out, summary)
	}

	writeJSON(w, http.StatusOK, out)
}

// handleGetUser returns one user looked up by alias.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "id")

	objectID, err := s.directory.UserObjectID(r.Context(), alias)
	if err != nil {
		slog.Warn("user lookup failed", "alias", alias, "error", err)
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	user, err := s.directory.GetUser(r.Context(), objectID)
	if err != nil {
		slog.Error("failed to fetch user", "alias", alias, "error", err)
		writeError(w, http.StatusBadGateway, "user directory unavailable")
		return
	}

	summary := userSummary{
		ObjectID:            user.ObjectID,
		Alias:               user.Alias,
		Extension:           user.Extension,
		CallHandlerObjectID: user.CallHandlerObjectID,
	}
	if user.CallHandlerObjectID != "" {
		greeting, err := s.directory.AlternateGreeting(r.Context(), user.CallHandlerObjectID)
		if err != nil {
			slog.Warn("failed to read alternate greeting",
				"alias", user.Alias, "call_handler", user.CallHandlerObjectID, "error", err)
		} else {
			summary.AlternateGreeting = bool(greeting.Enabled)
		}
	}

	writeJSON(w, http.StatusOK, summary)
}
