package service

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// AuthConfig defines the accepted credentials. APIKeyHash is a bcrypt hash and takes precedence
// over the plain APIKey.
type AuthConfig struct {
	APIKey     string
	APIKeyHash string
	JWTSecret  string
	Issuer     string
}

// AuthService checks the credentials presented to scheduling routes.
type AuthService struct {
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(config AuthConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{logger: logger, config: config}
}

// Enabled reports whether any credential is configured. Without one every request is let through.
func (s *AuthService) Enabled() bool {
	return s.APIKeyEnabled() || s.config.JWTSecret != ""
}

// APIKeyEnabled reports whether X-API-KEY authentication is configured.
func (s *AuthService) APIKeyEnabled() bool {
	return s.config.APIKey != "" || s.config.APIKeyHash != ""
}

// VerifyAPIKey compares the presented key against the configured one.
func (s *AuthService) VerifyAPIKey(key string) (*models.Principal, error) {
	if key == "" || !s.APIKeyEnabled() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Unauthorized: Invalid API key")
	}
	if s.config.APIKeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(s.config.APIKeyHash), []byte(key)); err != nil {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Unauthorized: Invalid API key")
		}
	} else if subtle.ConstantTimeCompare([]byte(s.config.APIKey), []byte(key)) != 1 {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Unauthorized: Invalid API key")
	}
	return &models.Principal{Method: models.AuthMethodAPIKey, Subject: "api-key"}, nil
}

// ValidateToken parses an HS256 bearer token issued for a client.
func (s *AuthService) ValidateToken(tokenString string) (*models.Principal, error) {
	if s.config.JWTSecret == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "bearer tokens are not accepted")
	}
	options := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.ClientClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, options...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.ClientClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	subject := claims.Subject
	if claims.ClientName != "" {
		subject = claims.ClientName
	}
	return &models.Principal{Method: models.AuthMethodBearer, Subject: subject}, nil
}

// IssueToken signs a bearer token for a client integration.
func (s *AuthService) IssueToken(clientName string, ttl time.Duration) (string, time.Time, error) {
	if s.config.JWTSecret == "" {
		return "", time.Time{}, fmt.Errorf("JWT_SECRET is not configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.ClientClaims{
		ClientName: clientName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   clientName,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	s.logger.Info("client token issued", zap.String("client", clientName), zap.Time("expires_at", expiresAt))
	return signed, expiresAt, nil
}
