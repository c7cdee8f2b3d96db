package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func testOperators(t *testing.T) []models.Operator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return []models.Operator{{Username: "ops", PasswordHash: string(hash), Role: "admin"}}
}

func TestLoginIssuesToken(t *testing.T) {
	svc := NewAuthService(testOperators(t), "test-secret", time.Hour)

	token, err := svc.Login(context.Background(), &models.LoginRequest{Username: "ops", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("Expected a valid token, got err=%v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "ops" || claims["role"] != "admin" {
		t.Errorf("Unexpected claims: %v", claims)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewAuthService(testOperators(t), "test-secret", time.Hour)

	for _, req := range []models.LoginRequest{
		{Username: "ops", Password: "wrong"},
		{Username: "nobody", Password: "s3cret"},
	} {
		req := req
		if _, err := svc.Login(context.Background(), &req); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%s) expected ErrInvalidCredentials, got %v", req.Username, err)
		}
	}
}

func TestLoginWithoutSecretIsConfigError(t *testing.T) {
	svc := NewAuthService(testOperators(t), "", time.Hour)

	_, err := svc.Login(context.Background(), &models.LoginRequest{Username: "ops", Password: "s3cret"})
	if !IsConfigurationError(err) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}
