package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

type authService struct {
	operators map[string]models.Operator
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthService creates a new AuthService implementation over a fixed set
// of configured operators
func NewAuthService(operators []models.Operator, jwtSecret string, ttl time.Duration) AuthService {
	byName := make(map[string]models.Operator, len(operators))
	for _, op := range operators {
		byName[op.Username] = op
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &authService{
		operators: byName,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Login checks operator credentials and issues a signed token
func (s *authService) Login(ctx context.Context, req *models.LoginRequest) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", &ConfigError{Component: "jwt", Err: errors.New("JWT secret is not configured")}
	}

	op, ok := s.operators[req.Username]
	if !ok || op.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		slog.Warn("Operator login rejected", "username", req.Username)
		return "", ErrInvalidCredentials
	}

	role := op.Role
	if role == "" {
		role = "operator"
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  op.Username,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	slog.Info("Operator logged in", "username", op.Username, "role", role)
	return signed, nil
}
