package middleware

import (
	"strings"

	"github.com/afikyefet/sudoku-live/pkg/jwt"
	"github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/afikyefet/sudoku-live/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	UserIDKey     = log.FieldUserID
	UsernameKey   = log.FieldUsername
	RolesKey      = "roles"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

// RequireAuth returns a gin middleware that validates the bearer token and,
// when roles are given, requires at least one of them.
func RequireAuth(v TokenValidator, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := v.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		if len(roles) > 0 && !hasAnyRole(claims, roles) {
			response.Forbidden(c, "insufficient role")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.SubjectID())
		c.Set(UsernameKey, claims.Username)
		c.Set(RolesKey, claims.Roles)

		c.Next()
	}
}

func hasAnyRole(claims *jwt.Claims, roles []string) bool {
	for _, r := range roles {
		if claims.HasRole(r) {
			return true
		}
	}
	return false
}

// GetUserID extracts the user ID set by RequireAuth.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
