package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleFarmer  = "farmer"
	RoleLaborer = "laborer"
	RoleAdmin   = "admin"
)

// CustomClaims mirrors the token shape the identity provider issues. The
// subject is the user id; role is one of farmer, laborer, admin.
type CustomClaims struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what the rest of the system sees of the caller.
type Identity struct {
	ID    string
	Role  string
	Name  string
	Email string
	Phone string
}

func (id *Identity) IsFarmer() bool {
	return id.Role == RoleFarmer
}

func (id *Identity) IsLaborer() bool {
	return id.Role == RoleLaborer
}

func (id *Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// TokenVerifier validates bearer tokens against the identity provider's JWKS
// endpoint, falling back to a shared HMAC secret when no JWKS URL is
// configured (local development).
type TokenVerifier struct {
	jwks   *keyfunc.JWKS
	secret []byte
}

func NewTokenVerifier(jwksURL string, secret string) (*TokenVerifier, error) {
	tv := &TokenVerifier{}
	if secret != "" {
		tv.secret = []byte(secret)
	}
	if jwksURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			Ctx:             ctx,
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				// Refresh failures keep serving cached keys.
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
		}
		tv.jwks = jwks
	}
	if tv.jwks == nil && tv.secret == nil {
		return nil, errors.New("token verifier needs a JWKS URL or an HMAC secret")
	}
	return tv, nil
}

func (tv *TokenVerifier) keyfunc(token *jwt.Token) (interface{}, error) {
	if tv.jwks != nil {
		return tv.jwks.Keyfunc(token)
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return tv.secret, nil
}

// Verify parses and validates a token and returns the caller identity.
func (tv *TokenVerifier) Verify(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, tv.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &Identity{
		ID:    claims.Subject,
		Role:  claims.Role,
		Name:  claims.Name,
		Email: claims.Email,
		Phone: claims.Phone,
	}, nil
}

// Close stops the background JWKS refresh.
func (tv *TokenVerifier) Close() {
	if tv.jwks != nil {
		tv.jwks.EndBackground()
	}
}
