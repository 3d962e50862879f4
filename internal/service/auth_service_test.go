package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestAuthServiceVerifyAPIKey(t *testing.T) {
	svc := NewAuthService(AuthConfig{APIKey: "s3cret"}, zap.NewNop())
	assert.True(t, svc.Enabled())

	principal, err := svc.VerifyAPIKey("s3cret")
	require.NoError(t, err)
	assert.Equal(t, models.AuthMethodAPIKey, principal.Method)

	_, err = svc.VerifyAPIKey("wrong")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
	assert.Equal(t, "Unauthorized: Invalid API key", appErr.Message)

	_, err = svc.VerifyAPIKey("")
	assert.Error(t, err)
}

func TestAuthServiceVerifyHashedAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewAuthService(AuthConfig{APIKey: "ignored", APIKeyHash: string(hash)}, nil)

	_, err = svc.VerifyAPIKey("hashed-key")
	require.NoError(t, err)
	_, err = svc.VerifyAPIKey("ignored")
	assert.Error(t, err)
}

func TestAuthServiceTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{JWTSecret: "jwt-secret", Issuer: "timetable-api"}, zap.NewNop())
	assert.True(t, svc.Enabled())
	assert.False(t, svc.APIKeyEnabled())

	token, expiresAt, err := svc.IssueToken("sis-frontend", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	principal, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.AuthMethodBearer, principal.Method)
	assert.Equal(t, "sis-frontend", principal.Subject)

	other := NewAuthService(AuthConfig{JWTSecret: "jwt-secret", Issuer: "someone-else"}, nil)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)

	wrongKey := NewAuthService(AuthConfig{JWTSecret: "another-secret"}, nil)
	_, err = wrongKey.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthServiceRejectsExpiredAndUnsignedTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{JWTSecret: "jwt-secret"}, nil)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.ClientClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	signed, err := expired.SignedString([]byte("jwt-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.ClientClaims{ClientName: "x"})
	signed, err = noExpiry.SignedString([]byte("jwt-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestAuthServiceDisabled(t *testing.T) {
	svc := NewAuthService(AuthConfig{}, nil)
	assert.False(t, svc.Enabled())

	_, err := svc.VerifyAPIKey("anything")
	assert.Error(t, err)
	_, err = svc.ValidateToken("anything")
	assert.Error(t, err)
	_, _, err = svc.IssueToken("client", time.Hour)
	assert.Error(t, err)
}
