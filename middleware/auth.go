package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/latronicstore/latronic1/pkg/ctxmanage"
	"github.com/latronicstore/latronic1/pkg/logkey"
)

const RoleAdmin = "ADMIN"

type Mid struct {
	secret []byte
}

func NewMid(adminSecret string) (*Mid, error) {
	if adminSecret == "" {
		return nil, fmt.Errorf("admin jwt secret is empty")
	}
	return &Mid{secret: []byte(adminSecret)}, nil
}

// Authentication guards catalog mutation endpoints. The token must be an HS256
// bearer token whose "roles" claim includes ADMIN.
func (m *Mid) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)

		authHeader := c.GetHeader("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			slog.Error("malformed authorization header", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expected Bearer <token>"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			slog.Error("invalid admin token", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}

		if !hasRole(claims, RoleAdmin) {
			slog.Error("missing admin role", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": http.StatusText(http.StatusForbidden)})
			return
		}

		c.Next()
	}
}

func hasRole(claims jwt.MapClaims, role string) bool {
	raw, ok := claims["roles"]
	if !ok {
		return false
	}
	roles, ok := raw.([]interface{})
	if !ok {
		return false
	}
	for _, r := range roles {
		if s, ok := r.(string); ok && s == role {
			return true
		}
	}
	return false
}
