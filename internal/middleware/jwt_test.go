package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bulkops/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret"

func signed(t *testing.T, userID int, tokenType auth.TokenType, ttl time.Duration) string {
	t.Helper()
	claims := auth.Claims{
		UserID: userID,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(testSecret))
	r.GET("/me", func(c *gin.Context) {
		id, _ := auth.IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id.OwnerID})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer " + signed(t, 7, auth.AccessToken, time.Minute), wantStatus: http.StatusOK, wantBody: `"user_id":7`},
		{name: "lowercase scheme", header: "bearer " + signed(t, 8, auth.AccessToken, time.Minute), wantStatus: http.StatusOK, wantBody: `"user_id":8`},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantBody: "Authorization header required"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantBody: "Authorization header required"},
		{name: "expired", header: "Bearer " + signed(t, 7, auth.AccessToken, -time.Minute), wantStatus: http.StatusUnauthorized, wantBody: "Token expired"},
		{name: "refresh token", header: "Bearer " + signed(t, 7, auth.RefreshToken, time.Minute), wantStatus: http.StatusUnauthorized, wantBody: "Invalid token type"},
		{name: "garbage", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantBody: "Invalid token"},
	}

	router := authRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestAuthMiddleware_WithoutSecretRejectsUnsignedTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(""))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	claims := auth.Claims{
		UserID: 7,
		Type:   auth.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(""))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
