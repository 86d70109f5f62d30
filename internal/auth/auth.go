package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Manager issues and verifies anonymous identity tokens. There are no
// accounts: an identity is minted on demand and stays valid for the
// token lifetime, so strokes and images can be attributed to a stable
// participant.
type Manager struct {
	secretKey []byte
	expiry    time.Duration
}

type Identity struct {
	UID   string
	Token string
}

func NewManager(secretKey string, expiry time.Duration) *Manager {
	return &Manager{
		secretKey: []byte(secretKey),
		expiry:    expiry,
	}
}

// IssueAnonymous mints a fresh participant identity.
func (m *Manager) IssueAnonymous() (*Identity, error) {
	uid := uuid.NewString()

	claims := &jwt.RegisteredClaims{
		Subject:   uid,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.expiry)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now()),
		Issuer:    "duoboard",
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return nil, err
	}
	return &Identity{UID: uid, Token: token}, nil
}

// Verify validates a token and returns the participant uid.
func (m *Manager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
