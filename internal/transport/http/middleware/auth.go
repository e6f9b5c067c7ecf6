package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
)

const errUnauthorized = "Unauthorized"

// Context keys set by the auth middlewares and read by handlers.
const (
	CtxUserID   = "userID"
	CtxUserRole = "userRole"
)

// Auth validates a Bearer JWT and sets userID and userRole in the gin
// context. Tokens without a role claim are treated as viewer.
func Auth(jwtKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, role, err := parseBearer(c, jwtKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxUserRole, string(role))
		c.Next()
	}
}

// OptionalAuth sets the same context keys as Auth when a valid token is
// present, and lets the request through anonymously otherwise. Registration
// uses it: anyone may register, but role grants need an admin token.
func OptionalAuth(jwtKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, role, err := parseBearer(c, jwtKey)
		if err == nil {
			c.Set(CtxUserID, userID)
			c.Set(CtxUserRole, string(role))
		}
		c.Next()
	}
}

func parseBearer(c *gin.Context, jwtKey []byte) (string, domain.Role, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "", errors.New("missing bearer token")
	}
	rawToken := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtKey, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", "", errors.New("missing subject")
	}

	role := domain.RoleViewer
	if r, ok := claims["role"].(string); ok && domain.Role(r).Valid() {
		role = domain.Role(r)
	}
	return userID, role, nil
}
