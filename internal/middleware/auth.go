package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tunewave/api/internal/auth"
	"github.com/tunewave/api/pkg/response"
)

// AuthMiddleware handles JWT authentication on the dispatch path. The user
// identity attached to the request context comes exclusively from a
// verified token; nothing in the request body participates.
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string // fallback for legacy tokens
}

// NewAuthMiddleware creates auth middleware with JWKS verification.
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// NewAuthMiddlewareWithFallback creates auth middleware with both JWKS and
// legacy HMAC support.
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing
// (for testing/dev).
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate validates the JWT token from the Authorization header.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		tokenString := parts[1]

		userID, email, err := m.ValidateToken(tokenString)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("userId", userID)
		c.Locals("email", email)
		return c.Next()
	}
}

// ValidateToken resolves a raw bearer token to a user identity, trying the
// JWKS verifier first and the legacy HMAC secret second.
func (m *AuthMiddleware) ValidateToken(tokenString string) (userID, email string, err error) {
	if m.verifier != nil {
		claims, verr := m.verifier.Validate(tokenString)
		if verr == nil {
			return claims.UserID, claims.Email, nil
		}
		if m.jwtSecret == "" {
			return "", "", verr
		}
	}

	if m.jwtSecret != "" {
		claims, lerr := auth.ValidateLegacyToken(tokenString, m.jwtSecret)
		if lerr != nil {
			return "", "", lerr
		}
		return claims.UserID, claims.Email, nil
	}

	return "", "", jwt.ErrTokenUnverifiable
}

// GetUserID extracts the authenticated user ID from the request context.
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}
