package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testIssuer = "reward-engine"
)

func signToken(t *testing.T, userID uuid.UUID, issuer string, expiry time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func authTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuth(testSecret, testIssuer, zerolog.Nop()))
	r.GET("/me", func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, userID.String())
	})
	return r
}

func TestJWTAuth_ValidToken(t *testing.T) {
	r := authTestRouter()
	userID := uuid.New()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, testIssuer, time.Hour))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestJWTAuth_Rejections(t *testing.T) {
	r := authTestRouter()

	cases := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"malformed", "Bearer not-a-token"},
		{"expired", "Bearer " + signToken(t, uuid.New(), testIssuer, -time.Hour)},
		{"wrong issuer", "Bearer " + signToken(t, uuid.New(), "someone-else", time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", tc.token)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestJWTAuth_NonUUIDSubject(t *testing.T) {
	r := authTestRouter()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	// Client-supplied IDs pass through.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "trace-42")
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-42", w.Header().Get(HeaderRequestID))
}

func TestMaxBodySize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(MaxBodySize(16))
	r.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	small := httptest.NewRecorder()
	r.ServeHTTP(small, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, small.Code)

	big := httptest.NewRecorder()
	bigReq := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"padding":"`+strings.Repeat("x", 64)+`"}`))
	r.ServeHTTP(big, bigReq)
	assert.Equal(t, http.StatusRequestEntityTooLarge, big.Code)
}
