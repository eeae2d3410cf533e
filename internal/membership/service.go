// Package membership handles users, login sessions and library bootstrap.
package membership

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// Session is an issued login
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *db.User  `json:"user"`
}

// NewUser is the input for creating an account
type NewUser struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Password string  `json:"password"`
	Role     db.Role `json:"role"`
}

// Service implements login and user administration
type Service struct {
	db        *db.DB
	libraries *repo.LibraryRepository
	users     *repo.UserRepository
	sessions  *repo.SessionRepository
	ttl       time.Duration
	perMinute int
	now       func() time.Time
	log       *zap.Logger

	mu       sync.Mutex
	limiters map[string]*loginLimiter
}

type loginLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// limiterIdle is how long an email's limiter is kept after its last attempt.
// A limiter idle this long has refilled its whole burst.
const limiterIdle = 10 * time.Minute

// NewService creates a membership service. Each email may attempt
// loginsPerMinute logins per minute.
func NewService(database *db.DB, ttl time.Duration, loginsPerMinute int, log *zap.Logger) *Service {
	return &Service{
		db:        database,
		libraries: repo.NewLibraryRepository(database, log),
		users:     repo.NewUserRepository(database, log),
		sessions:  repo.NewSessionRepository(database, log),
		ttl:       ttl,
		perMinute: loginsPerMinute,
		now:       time.Now,
		log:       log,
		limiters:  make(map[string]*loginLimiter),
	}
}

func (s *Service) limiter(email string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[email]
	if !ok {
		l = &loginLimiter{Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.perMinute)}
		s.limiters[email] = l
	}
	l.lastSeen = s.now()
	return l.Limiter
}

// pruneLimiters drops limiters that have not been used since limiterIdle
// before now and returns how many were removed.
func (s *Service) pruneLimiters(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for email, l := range s.limiters {
		if now.Sub(l.lastSeen) >= limiterIdle {
			delete(s.limiters, email)
			removed++
		}
	}
	return removed
}

// Login checks credentials and issues a session. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	if !s.limiter(email).Allow() {
		s.log.Warn("Login rate limited", zap.String("email", email))
		return nil, apperr.ErrRateLimited
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, apperr.Upstream("load user", err)
	}

	ok, err := verifyPassword(password, user.PasswordSalt, user.PasswordHash)
	if err != nil {
		return nil, apperr.Upstream("verify password", err)
	}
	if !ok {
		s.log.Info("Login failed", zap.String("user_id", user.ID.String()))
		return nil, apperr.ErrUnauthorized
	}

	token, err := newToken()
	if err != nil {
		return nil, apperr.Upstream("generate token", err)
	}

	expires := s.now().UTC().Add(s.ttl)
	if err := s.sessions.CreateSession(ctx, &db.Session{
		TokenHash: hashToken(token),
		UserID:    user.ID,
		ExpiresAt: expires,
	}); err != nil {
		return nil, apperr.Upstream("create session", err)
	}

	s.log.Info("User logged in", zap.String("user_id", user.ID.String()))
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Authenticate resolves a bearer token to its user
func (s *Service) Authenticate(ctx context.Context, token string) (*db.User, error) {
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, hashToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrSessionNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, apperr.Upstream("load session", err)
	}

	user, err := s.users.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, apperr.Upstream("load user", err)
	}
	return user, nil
}

// Logout revokes a session token
func (s *Service) Logout(ctx context.Context, token string) error {
	return apperr.Upstream("delete session", s.sessions.DeleteSession(ctx, hashToken(token)))
}

// PurgeSessions deletes expired sessions and forgets idle login limiters
func (s *Service) PurgeSessions(ctx context.Context) (int64, error) {
	now := s.now()
	if pruned := s.pruneLimiters(now); pruned > 0 {
		s.log.Debug("Pruned idle login limiters", zap.Int("count", pruned))
	}
	n, err := s.sessions.DeleteExpired(ctx, now.UTC())
	return n, apperr.Upstream("purge sessions", err)
}

// CreateUser adds an account to a library
func (s *Service) CreateUser(ctx context.Context, libraryID uuid.UUID, in NewUser) (*db.User, error) {
	return s.createUser(ctx, s.users, libraryID, in)
}

func (s *Service) createUser(ctx context.Context, users *repo.UserRepository, libraryID uuid.UUID, in NewUser) (*db.User, error) {
	if err := validateNewUser(&in); err != nil {
		return nil, err
	}

	hash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, apperr.Upstream("hash password", err)
	}

	user := &db.User{
		LibraryID:    libraryID,
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: hash,
		PasswordSalt: salt,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, apperr.Upstream("create user", err)
	}
	return user, nil
}

func validateNewUser(in *NewUser) error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = db.RoleMember
	}

	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperr.Validation("invalid email address %q", in.Email)
	}
	if in.Name == "" {
		return apperr.Validation("name is required")
	}
	if len(in.Password) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	if !in.Role.Valid() {
		return apperr.Validation("unknown role %q", in.Role)
	}
	return nil
}

// ListUsers returns the users of the actor's library
func (s *Service) ListUsers(ctx context.Context, actor *db.User) ([]*db.User, error) {
	users, err := s.users.ListUsers(ctx, actor.LibraryID)
	return users, apperr.Upstream("list users", err)
}

// UpdateRole changes the role of a user in the actor's library. Admins
// cannot change their own role.
func (s *Service) UpdateRole(ctx context.Context, actor *db.User, id uuid.UUID, role db.Role) error {
	if !role.Valid() {
		return apperr.Validation("unknown role %q", role)
	}
	if actor.ID == id {
		return apperr.Conflictf("cannot change your own role")
	}
	return apperr.Upstream("update role", s.users.UpdateRole(ctx, actor.LibraryID, id, role))
}

// Bootstrap creates a library together with its first admin in one
// transaction.
func (s *Service) Bootstrap(ctx context.Context, libraryName string, admin NewUser) (*db.Library, *db.User, error) {
	libraryName = strings.TrimSpace(libraryName)
	if libraryName == "" {
		return nil, nil, apperr.Validation("library name is required")
	}
	admin.Role = db.RoleAdmin

	var library *db.Library
	var user *db.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		library = &db.Library{Name: libraryName}
		if err := s.libraries.WithTx(tx).CreateLibrary(ctx, library); err != nil {
			return apperr.Upstream("create library", err)
		}

		var err error
		user, err = s.createUser(ctx, s.users.WithTx(tx), library.ID, admin)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return library, user, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
