package httpapi

import (
	"net/http"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	inbox, err := s.notices.Inbox(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, repo.ErrNotificationNotFound)
		return
	}

	inbox, err := s.notices.MarkRead(r.Context(), actorFrom(r.Context()).ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	inbox, err := s.notices.MarkAllRead(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}
