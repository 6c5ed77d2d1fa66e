package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ServiceContextKey holds the authenticated caller service name
	ServiceContextKey = "service"
)

// Claims represents service-token claims
type Claims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// ServiceAuth checks the HS256 tokens that collaborator services present.
// User authorization happens upstream; this only proves the caller is a
// trusted service.
type ServiceAuth struct {
	secret []byte
}

// NewServiceAuth creates a checker. An empty secret disables the check.
func NewServiceAuth(secret string) *ServiceAuth {
	return &ServiceAuth{secret: []byte(secret)}
}

// Enabled reports whether tokens are required
func (a *ServiceAuth) Enabled() bool {
	return len(a.secret) > 0
}

// Middleware validates the bearer token
func (a *ServiceAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			return
		}

		claims, err := a.Parse(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ServiceContextKey, claims.Service)
		c.Next()
	}
}

// Parse validates a token and returns its claims
func (a *ServiceAuth) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// GenerateToken signs a token for a service
func (a *ServiceAuth) GenerateToken(service string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   service,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// GetService retrieves the caller service name from the context
func GetService(c *gin.Context) (string, bool) {
	service, exists := c.Get(ServiceContextKey)
	if !exists {
		return "", false
	}

	serviceStr, ok := service.(string)
	return serviceStr, ok
}
