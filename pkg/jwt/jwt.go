package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingKey   = errors.New("no signing key configured")
	ErrCannotSign   = errors.New("manager has no private key")
)

// Claims represents JWT claims. Tokens minted by the account API carry the
// user id under "id"; tokens from the auth service use "user_id".
type Claims struct {
	jwt.RegisteredClaims
	LegacyID string   `json:"id,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// SubjectID returns the user id carried by the token.
func (c *Claims) SubjectID() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.LegacyID != "":
		return c.LegacyID
	default:
		return c.RegisteredClaims.Subject
	}
}

// HasRole reports whether the token grants role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Manager validates (and for HMAC keys, issues) access tokens.
type Manager struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
}

// Config selects the verification key. Secret wins over PublicKeyPath.
type Config struct {
	Secret        string `mapstructure:"jwt_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"`
}

// NewManager builds a manager from config.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret != "" {
		return NewHMACManager([]byte(cfg.Secret), cfg.Issuer), nil
	}
	if cfg.PublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		return NewRSAManager(pem, cfg.Issuer)
	}
	return nil, ErrMissingKey
}

// NewHMACManager validates HS256 tokens signed with secret.
func NewHMACManager(secret []byte, issuer string) *Manager {
	return &Manager{secret: secret, issuer: issuer}
}

// NewRSAManager validates RS256 tokens against a PEM encoded public key.
func NewRSAManager(publicKeyPEM []byte, issuer string) (*Manager, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &Manager{publicKey: key, issuer: issuer}, nil
}

// ValidateToken validates a token and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SubjectID() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if m.secret == nil {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	case *jwt.SigningMethodRSA:
		if m.publicKey == nil {
			return nil, ErrInvalidToken
		}
		return m.publicKey, nil
	default:
		return nil, ErrInvalidToken
	}
}

// GenerateToken issues an HS256 access token. Only HMAC managers can sign.
func (m *Manager) GenerateToken(userID, username string, roles []string, ttl time.Duration) (string, error) {
	if m.secret == nil {
		return "", ErrCannotSign
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   userID,
		Username: username,
		Roles:    roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}
