package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenMalformed   = errors.New("invalid token format")
	ErrTokenNotYetValid = errors.New("token not yet valid")
)

// IdentityType discriminates which identity class a token was issued to.
const (
	TypeAdmin  = "admin"
	TypeGarage = "garage"
)

type Claims struct {
	Sub       string `json:"sub"`   // external reference id (ADMIN_... / GAR_...)
	Type      string `json:"type"`  // admin or garage
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"` // admin role, empty for garages
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies the signed bearer credentials used
// for admin and garage sessions. Tokens are stateless: there is no
// server-side session table and no revocation short of secret rotation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token with the default TTL. The session ID is a
// timestamp plus random suffix; uniqueness is best-effort.
func (s *TokenService) Issue(sub, typ, email, role string) (string, error) {
	return s.IssueWithTTL(sub, typ, email, role, s.ttl)
}

func (s *TokenService) IssueWithTTL(sub, typ, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:       sub,
		Type:      typ,
		Email:     email,
		Role:      role,
		SessionID: fmt.Sprintf("%d.%s", now.UnixMilli(), strings.Split(uuid.NewString(), "-")[0]),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token, mapping library failures onto
// the fixed error set. The expiry claim is re-checked against the wall
// clock after signature validation.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

// IsExpiry reports whether a verify failure means the session timed out
// (as opposed to a malformed or forged token), so callers can set the
// sessionExpired flag.
func IsExpiry(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}
