// Package service holds the authentication and ownership-gated task logic.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"taskhub/internal/model"
	"taskhub/internal/pkg/apperr"
	"taskhub/internal/pkg/metrics"
	"taskhub/internal/pkg/notify"
	"taskhub/internal/pkg/queue"
	"taskhub/internal/security"
	"taskhub/internal/store"
)

// MsgInvalidCredentials is shared by the unknown-email and wrong-password paths.
const MsgInvalidCredentials = "Invalid email or password"

// TokenIssuer signs identity tokens.
type TokenIssuer interface {
	Issue(claims security.Claims) (string, error)
}

// JobEnqueuer runs work outside the request. Enqueue reports false when the job was not accepted.
type JobEnqueuer interface {
	Enqueue(name string, job queue.Job) bool
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  model.PublicUser `json:"user"`
	Token string           `json:"token"`
}

// AuthService runs the register and login flows.
type AuthService struct {
	users    store.UserStore
	hasher   security.PasswordHasher
	tokens   TokenIssuer
	notifier notify.Notifier
	jobs     JobEnqueuer
	logger   *slog.Logger
}

// NewAuthService wires the flow. A nil notifier disables welcome mail.
func NewAuthService(users store.UserStore, hasher security.PasswordHasher, tokens TokenIssuer, notifier notify.Notifier, logger *slog.Logger) *AuthService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// WithJobs sends welcome mail through jobs.
func (s *AuthService) WithJobs(jobs JobEnqueuer) *AuthService {
	s.jobs = jobs
	return s
}

// Register creates a user and returns its public view with a token.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || strings.TrimSpace(password) == "" {
		metrics.AuthAttemptsTotal.WithLabelValues("register", "invalid").Inc()
		return AuthResult{}, apperr.Validation("Name, email, and password are required")
	}
	if err := checkLength("Name", name, model.MaxNameLength); err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("register", "invalid").Inc()
		return AuthResult{}, err
	}
	if err := checkLength("Email", email, model.MaxEmailLength); err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("register", "invalid").Inc()
		return AuthResult{}, err
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		metrics.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
		return AuthResult{}, apperr.Conflict("Email already registered")
	case !errors.Is(err, store.ErrNotFound):
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		return AuthResult{}, apperr.Internal("query user", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			metrics.AuthAttemptsTotal.WithLabelValues("register", "invalid").Inc()
			return AuthResult{}, apperr.Validation("Password must be at most 72 bytes")
		}
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		return AuthResult{}, apperr.Internal("hash password", err)
	}

	user := &model.User{Name: name, Email: email, Password: digest}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
			return AuthResult{}, apperr.Conflict("Email already registered")
		}
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		return AuthResult{}, apperr.Internal("create user", err)
	}

	result, err := s.issue(user)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		return AuthResult{}, err
	}

	metrics.AuthAttemptsTotal.WithLabelValues("register", "success").Inc()
	s.logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	s.sendWelcome(result.User)
	return result, nil
}

// Login checks credentials. Unknown email and wrong password fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		metrics.AuthAttemptsTotal.WithLabelValues("login", "invalid").Inc()
		return AuthResult{}, apperr.Validation("Email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.VerifyDummy(password)
			metrics.AuthAttemptsTotal.WithLabelValues("login", "invalid").Inc()
			return AuthResult{}, apperr.Unauthenticated(MsgInvalidCredentials)
		}
		metrics.AuthAttemptsTotal.WithLabelValues("login", "error").Inc()
		return AuthResult{}, apperr.Internal("query user", err)
	}

	if !s.hasher.Verify(password, user.Password) {
		metrics.AuthAttemptsTotal.WithLabelValues("login", "invalid").Inc()
		return AuthResult{}, apperr.Unauthenticated(MsgInvalidCredentials)
	}

	result, err := s.issue(user)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("login", "error").Inc()
		return AuthResult{}, err
	}
	metrics.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
	s.logger.Info("user logged in", slog.Uint64("user_id", uint64(user.ID)))
	return result, nil
}

// Profile returns the authenticated user's public view.
func (s *AuthService) Profile(user model.PublicUser) model.PublicUser {
	return user
}

func (s *AuthService) issue(user *model.User) (AuthResult, error) {
	token, err := s.tokens.Issue(security.Claims{UserID: user.ID, Email: user.Email})
	if err != nil {
		return AuthResult{}, apperr.Internal("sign token", err)
	}
	return AuthResult{User: user.Public(), Token: token}, nil
}

// sendWelcome runs detached from the request; a mail failure never fails registration.
func (s *AuthService) sendWelcome(user model.PublicUser) {
	job := func(ctx context.Context) error {
		if err := s.notifier.Welcome(ctx, user); err != nil {
			s.logger.Warn("send welcome email failed",
				slog.Uint64("user_id", uint64(user.ID)),
				slog.String("error", err.Error()),
			)
			return err
		}
		return nil
	}
	if s.jobs != nil {
		if !s.jobs.Enqueue("welcome_email", job) {
			s.logger.Warn("welcome email not queued", slog.Uint64("user_id", uint64(user.ID)))
		}
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = job(ctx)
	}()
}
