package testutil

import (
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/patriotgo-chat-api/middleware"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"github.com/stretchr/testify/require"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(userID string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  TestJWTIssuer,
			Subject: userID,
		},
		CustomClaims: &middleware.CustomClaims{
			UserID: userID,
		},
	}
}

// SetMockAuthContext sets up a mock authenticated context for testing
func SetMockAuthContext(c *gin.Context, userID string) {
	c.Set(middleware.ContextUserID, userID)
	c.Set(middleware.ContextValidatedClaims, MockValidatedClaims(userID))
}

// MockAuthMiddleware authenticates every request as userID. The
// X-Test-User header overrides it per request.
func MockAuthMiddleware(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := userID
		if override := c.GetHeader("X-Test-User"); override != "" {
			id = override
		}
		SetMockAuthContext(c, id)
		c.Next()
	}
}

// IssueToken mints a real bearer token for userID signed with TestJWTSecret
func IssueToken(t *testing.T, userID string) string {
	t.Helper()

	issuer, err := services.NewTokenIssuer(TestJWTSecret, TestJWTIssuer, TestJWTAudience, time.Hour)
	require.NoError(t, err)
	token, err := issuer.Issue(userID)
	require.NoError(t, err)
	return token
}
