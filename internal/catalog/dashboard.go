package catalog

import (
	"context"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
)

// Dashboard summarizes one library for its admins
type Dashboard struct {
	Books repo.BookStats          `json:"books"`
	Users int64                   `json:"users"`
	Loans map[db.LoanStatus]int64 `json:"loans"`
}

// Dashboard collects catalog, user and loan totals of the actor's library
func (s *Service) Dashboard(ctx context.Context, actor *db.User) (*Dashboard, error) {
	libraryID, err := libraryOf(actor)
	if err != nil {
		return nil, err
	}

	stats, err := s.books.GetStats(ctx, libraryID)
	if err != nil {
		return nil, apperr.Upstream("book stats", err)
	}

	users, err := s.users.CountUsers(ctx, libraryID)
	if err != nil {
		return nil, apperr.Upstream("count users", err)
	}

	loans, err := s.loans.CountByStatus(ctx, libraryID)
	if err != nil {
		return nil, apperr.Upstream("count loans", err)
	}

	return &Dashboard{Books: stats, Users: users, Loans: loans}, nil
}
