package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTAuth extracts the bearer token, validates it locally and injects
// user_id into the context. Issuing tokens is the auth collaborator's job,
// not ours.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing Authorization header")
			return
		}
		token := header
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = after
		}
		if token == "" {
			unauthorized(c, "empty bearer token")
			return
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid {
			unauthorized(c, "invalid token")
			return
		}

		subject, err := parsed.Claims.GetSubject()
		if err != nil || subject == "" {
			unauthorized(c, "token missing subject")
			return
		}
		userID, err := uuid.Parse(subject)
		if err != nil {
			unauthorized(c, "invalid user id in token")
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// UserID reads the authenticated user injected by JWTAuth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
	c.Abort()
}
