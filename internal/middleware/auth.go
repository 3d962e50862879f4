package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
)

// ContextPrincipalKey is the gin context key storing the authenticated caller.
const ContextPrincipalKey = "principal"

const apiKeyHeader = "X-API-KEY"

type credentialVerifier interface {
	Enabled() bool
	VerifyAPIKey(key string) (*models.Principal, error)
	ValidateToken(token string) (*models.Principal, error)
}

// Responder writes an error in the format of the protected route group.
type Responder func(c *gin.Context, err error)

// Auth requires an X-API-KEY header or a bearer token, then rejects browser requests whose
// Origin is not allow-listed. Credentials are checked first, so a bad key answers 401 even from
// a foreign origin. With no credentials configured the routes are open.
func Auth(verifier credentialVerifier, allowedOrigins []string, respond Responder, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	enabled := verifier != nil && verifier.Enabled()
	if !enabled {
		logger.Warn("no API key or JWT secret configured, scheduling routes are unauthenticated")
	}

	return func(c *gin.Context) {
		principal := &models.Principal{Method: models.AuthMethodNone}
		if enabled {
			var err error
			principal, err = authenticate(c, verifier)
			if err != nil {
				respond(c, err)
				c.Abort()
				return
			}
		}

		if origin := c.GetHeader("Origin"); origin != "" && !cors.Allowed(allowedOrigins, origin) {
			logger.Warn("origin rejected", zap.String("origin", origin), zap.String("path", c.Request.URL.Path))
			respond(c, appErrors.Clone(appErrors.ErrForbidden, "Forbidden: Origin not allowed"))
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

func authenticate(c *gin.Context, verifier credentialVerifier) (*models.Principal, error) {
	if key := c.GetHeader(apiKeyHeader); key != "" {
		return verifier.VerifyAPIKey(key)
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
		return verifier.ValidateToken(parts[1])
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Unauthorized: Invalid API key")
}

// CurrentPrincipal returns the caller attached by Auth.
func CurrentPrincipal(c *gin.Context) *models.Principal {
	if v, ok := c.Get(ContextPrincipalKey); ok {
		if p, ok := v.(*models.Principal); ok {
			return p
		}
	}
	return nil
}
