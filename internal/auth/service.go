package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"elearning-quiz-service/internal/domain"
	"go.uber.org/zap"
)

type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
}

type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Service struct {
	users  UserLookup
	issuer *Issuer
	log    *zap.Logger
}

func NewService(users UserLookup, issuer *Issuer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{users: users, issuer: issuer, log: log}
}

// Login exchanges credentials for an access token. Unknown users, wrong passwords and
// deactivated accounts all yield domain.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		return Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		s.log.Info("login rejected", zap.Int64("user_id", user.ID))
		return Session{}, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt}, nil
}

func (s *Service) Authenticate(token string) (domain.Actor, error) {
	return s.issuer.Parse(token)
}
