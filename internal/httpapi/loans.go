package httpapi

import (
	"net/http"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/circulation"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/overdue"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type overdueResponse struct {
	Success bool `json:"success"`
	overdue.Result
}

// handleOverdueLoans runs the reconciliation job for an external scheduler
func (s *Server) handleOverdueLoans(w http.ResponseWriter, r *http.Request) {
	if !overdue.Authorized(bearerToken(r), s.cronSecret) {
		s.log.Warn("Rejected overdue run", zap.String("remote_addr", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	result, err := s.overdue.Run(r.Context())
	if err != nil {
		s.log.Error("Overdue run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to process overdue loans"})
		return
	}
	writeJSON(w, http.StatusOK, overdueResponse{Success: true, Result: result})
}

func (s *Server) handleRequestLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID string `json:"book_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	loan, err := s.circulation.RequestLoan(r.Context(), actorFrom(r.Context()), req.BookID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) handleMyLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.circulation.MyLoans(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.circulation.ListLoans(r.Context(), actorFrom(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) handleLoanAction(w http.ResponseWriter, r *http.Request) {
	action := circulation.Action(chi.URLParam(r, "action"))
	loan, err := s.circulation.Apply(r.Context(), actorFrom(r.Context()), action, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}
