package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/afikyefet/sudoku-live/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.token, token, tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
	}
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr := jwt.NewHMACManager([]byte("secret"), "")

	r := gin.New()
	r.GET("/any", RequireAuth(mgr), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})
	r.GET("/service", RequireAuth(mgr, "service"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	userToken, err := mgr.GenerateToken("u1", "ursula", []string{"user"}, time.Minute)
	require.NoError(t, err)
	expired, err := mgr.GenerateToken("u1", "ursula", nil, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/any", "", http.StatusUnauthorized},
		{"wrong scheme", "/any", "Token " + userToken, http.StatusUnauthorized},
		{"expired", "/any", "Bearer " + expired, http.StatusUnauthorized},
		{"valid", "/any", "Bearer " + userToken, http.StatusOK},
		{"missing role", "/service", "Bearer " + userToken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "u1", w.Body.String())
			}
		})
	}
}
