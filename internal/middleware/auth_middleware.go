package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/pkg/jwt"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// RoleAdmin grants access to every booking and the admin routes
const RoleAdmin = "admin"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Roles  []string  `json:"roles"`
}

// IsAdmin reports whether the user carries the admin role
func (u UserContext) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// AuthMiddleware validates the session token from the cookie or the
// Authorization header. Both carry the same signed JWT.
func AuthMiddleware(jwtService *jwt.Service, cookieName string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c, cookieName)
		if !ok {
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).Warn("AUTH FAILED: missing session token")
			abortAuth(c, http.StatusUnauthorized, "Authentication required", "MISSING_AUTH")
			return
		}

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			fields := logrus.Fields{
				"path":  c.Request.URL.Path,
				"ip":    c.ClientIP(),
				"error": err.Error(),
			}
			if errors.Is(err, jwt.ErrTokenExpired) {
				logger.WithFields(fields).Warn("AUTH FAILED: token expired")
				abortAuth(c, http.StatusUnauthorized, "Session has expired. Please sign in again.", "TOKEN_EXPIRED")
				return
			}
			logger.WithFields(fields).Warn("AUTH FAILED: invalid token")
			abortAuth(c, http.StatusUnauthorized, "Invalid session token", "INVALID_TOKEN")
			return
		}

		c.Set(UserContextKey, UserContext{
			UserID: claims.UserID,
			Email:  claims.Email,
			Roles:  claims.Roles,
		})

		c.Next()
	}
}

func extractToken(c *gin.Context, cookieName string) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token, true
			}
		}
	}

	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			return token, true
		}
	}

	return "", false
}

// RequireRole creates a middleware that checks if user has any of the roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abortAuth(c, http.StatusUnauthorized, "Authentication required", "MISSING_AUTH")
			return
		}

		for _, required := range roles {
			for _, have := range userCtx.Roles {
				if have == required {
					c.Next()
					return
				}
			}
		}

		abortAuth(c, http.StatusForbidden, "You don't have permission to access this resource", "INSUFFICIENT_PERMISSIONS")
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}
	userCtx, ok := value.(UserContext)
	return userCtx, ok
}

func abortAuth(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":    false,
		"message":    message,
		"error_code": code,
	})
}
