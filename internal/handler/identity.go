package handler

import (
	"errors"
	"net/http"

	"github.com/afikyefet/sudoku-live/internal/config"
	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/pkg/middleware"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is what a connection says about itself at upgrade time.
type Identity struct {
	ClaimedName string
	UserID      string
	Username    string
	Verified    bool
}

// Session builds the hub session for a new connection.
func (i Identity) Session(clientID string) *domain.Session {
	s := domain.NewSession(clientID, i.ClaimedName)
	if i.Verified {
		s.Verify(i.UserID, i.Username)
	}
	return s
}

// Authenticator resolves connect-time identity according to auth.mode.
type Authenticator struct {
	mode      string
	validator middleware.TokenValidator
}

// NewAuthenticator creates an authenticator. A nil validator behaves like
// mode "none".
func NewAuthenticator(mode string, v middleware.TokenValidator) *Authenticator {
	if v == nil {
		mode = config.AuthModeNone
	}
	return &Authenticator{mode: mode, validator: v}
}

// Identify reads the claimed name from the "user" query parameter and the
// bearer token from the Authorization header or the "token" query parameter.
// The returned identity is usable even when err is non-nil in optional mode;
// callers only refuse the connection when Required reports true.
func (a *Authenticator) Identify(r *http.Request) (Identity, error) {
	id := Identity{ClaimedName: r.URL.Query().Get("user")}
	if a.mode == config.AuthModeNone {
		return id, nil
	}

	token, ok := middleware.BearerToken(r.Header.Get(middleware.AuthHeaderKey))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return id, ErrMissingToken
	}

	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		return id, errors.Join(ErrInvalidToken, err)
	}
	id.UserID = claims.SubjectID()
	id.Username = claims.Username
	id.Verified = true
	return id, nil
}

// Required reports whether connections without a valid token are refused.
func (a *Authenticator) Required() bool {
	return a.mode == config.AuthModeRequired
}
