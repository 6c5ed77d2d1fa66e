package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	auth := NewServiceAuth("test-secret")

	token, err := auth.GenerateToken("uploader", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := auth.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "uploader", claims.Service)
}

func TestServiceAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := NewServiceAuth("test-secret")
	valid, err := auth.GenerateToken("uploader", time.Hour)
	require.NoError(t, err)
	expired, err := auth.GenerateToken("uploader", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewServiceAuth("other-secret").GenerateToken("uploader", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Service: "uploader"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{"Missing authorization header", "", http.StatusUnauthorized},
		{"Invalid token format", "InvalidToken", http.StatusUnauthorized},
		{"Expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"Wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"Unsigned token", "Bearer " + none, http.StatusUnauthorized},
		{"Valid token", "Bearer " + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(auth.Middleware())
			router.GET("/test", func(c *gin.Context) {
				service, ok := GetService(c)
				assert.True(t, ok)
				assert.Equal(t, "uploader", service)
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestServiceAuth_DisabledWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := NewServiceAuth("")
	assert.False(t, auth.Enabled())

	router := gin.New()
	router.Use(auth.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
