package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// greetingRequest is the toggle payload. Accepted as JSON or as form
// fields with the same names.
type greetingRequest struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// handleGreeting enables or disables the alternate greeting on a call
// handler. The upstream PBX response body is relayed verbatim on success.
func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	callHandlerID := chi.URLParam(r, "id")

	req, err := parseGreetingRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var enable bool
	switch req.Action {
	case "enable":
		enable = true
	case "disable":
		enable = false
	default:
		writeError(w, http.StatusBadRequest, "action must be enable or disable")
		return
	}

	body, err := s.toggler.Toggle(r.Context(), callHandlerID, enable, req.Message)
	if err != nil {
		slog.Error("greeting toggle failed",
			"call_handler", callHandlerID, "action", req.Action, "error", err)
		writeError(w, http.StatusInternalServerError, "greeting toggle failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

func parseGreetingRequest(r *http.Request) (greetingRequest, error) {
	var req greetingRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errInvalidBody
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, errInvalidBody
	}
	req.Action = r.PostFormValue("action")
	req.Message = r.PostFormValue("message")
	return req, nil
}

var errInvalidBody = errors.New("invalid request body")
