package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/errs"
)

type testResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var p connection.Profile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}

	ok, msg := s.conns.Test(r.Context(), p)
	writeJSON(w, http.StatusOK, testResult{Success: ok, Message: msg})
}

// handleCreateConnection only stores profiles that pass a connection test.
func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var p connection.Profile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}

	if ok, msg := s.conns.Test(r.Context(), p); !ok {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}

	saved, err := s.conns.Add(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved.Masked())
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.conns.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []connection.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, r, errs.New(errs.ErrKindInvalidInput, "connection id is required"))
		return
	}

	if err := s.conns.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Connection deleted successfully"})
}
