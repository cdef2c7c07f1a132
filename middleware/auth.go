package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/patriotgo-chat-api/config"
	"go.uber.org/zap"
)

// Context keys set by EnsureValidToken
const (
	ContextUserID          = "user_id"
	ContextValidatedClaims = "validated_claims"
)

// ErrMissingUserID is returned when a valid token names no user
var ErrMissingUserID = errors.New("token carries no user id")

// CustomClaims contains custom data we want from the token.
type CustomClaims struct {
	UserID string `json:"userId"`
}

// Validate accepts any payload; a missing userId falls back to the subject.
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// IdentityVerifier turns a bearer token into a user id. Tokens are checked
// against Auth0's JWKS when an Auth0 domain is configured, otherwise against
// the shared HS256 secret.
type IdentityVerifier struct {
	validator *validator.Validator
}

// NewIdentityVerifier builds the verifier for cfg
func NewIdentityVerifier(cfg *config.Config) (*IdentityVerifier, error) {
	customClaims := validator.WithCustomClaims(
		func() validator.CustomClaims {
			return &CustomClaims{}
		},
	)
	skew := validator.WithAllowedClockSkew(time.Minute)

	var (
		v   *validator.Validator
		err error
	)
	if cfg.UsesAuth0() {
		issuerURL, parseErr := url.Parse("https://" + cfg.Auth0Domain + "/")
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse the issuer url: %w", parseErr)
		}
		provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)
		v, err = validator.New(
			provider.KeyFunc,
			validator.RS256,
			issuerURL.String(),
			[]string{cfg.Auth0Audience},
			customClaims,
			skew,
		)
	} else {
		secret := []byte(cfg.JWTSecret)
		v, err = validator.New(
			func(context.Context) (interface{}, error) { return secret, nil },
			validator.HS256,
			cfg.JWTIssuer,
			[]string{cfg.JWTAudience},
			customClaims,
			skew,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set up the jwt validator: %w", err)
	}

	return &IdentityVerifier{validator: v}, nil
}

// Verify validates a raw token and returns the caller's user id
func (v *IdentityVerifier) Verify(ctx context.Context, token string) (string, error) {
	claims, err := v.validateToken(ctx, token)
	if err != nil {
		return "", err
	}
	return UserIDFromClaims(claims.(*validator.ValidatedClaims))
}

// validateToken has the signature jwtmiddleware expects and rejects tokens
// without a usable user id
func (v *IdentityVerifier) validateToken(ctx context.Context, token string) (interface{}, error) {
	raw, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	claims, ok := raw.(*validator.ValidatedClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	if _, err := UserIDFromClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// UserIDFromClaims prefers the userId claim and falls back to sub
func UserIDFromClaims(claims *validator.ValidatedClaims) (string, error) {
	if custom, ok := claims.CustomClaims.(*CustomClaims); ok && custom.UserID != "" {
		return custom.UserID, nil
	}
	if claims.RegisteredClaims.Subject != "" {
		return claims.RegisteredClaims.Subject, nil
	}
	return "", ErrMissingUserID
}

// EnsureValidToken is a middleware that will check the validity of our JWT.
// Every failure (missing header, wrong scheme, bad or expired token) gets the
// same 401 response.
func EnsureValidToken(verifier *IdentityVerifier, logger *zap.Logger) gin.HandlerFunc {
	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"Failed to validate JWT."}}`)); writeErr != nil {
			logger.Warn("failed to write error response", zap.Error(writeErr))
		}
	}

	middleware := jwtmiddleware.New(
		verifier.validateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		authenticated := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			// Store the validated claims in Gin context
			claims := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			userID, _ := UserIDFromClaims(claims)
			c.Set(ContextUserID, userID)
			c.Set(ContextValidatedClaims, claims)
			c.Request = r
			authenticated = true

			c.Next()
		}

		// Use the JWT middleware to check the token
		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !authenticated {
			c.Abort()
		}
	}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
