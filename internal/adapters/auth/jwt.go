// Package auth verifies the bearer token presented on the caption channel.
package auth

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dkeye/voicehub/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret        = errors.New("auth: no signing secret configured")
	ErrSubjectMismatch = errors.New("auth: token subject does not match user")
	ErrRoomForbidden   = errors.New("auth: token does not grant room")
)

// Claims are the registered claims plus an optional room allow-list.
// An empty Rooms grants every room.
type Claims struct {
	Rooms []string `json:"rooms,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: []byte(secret), opts: opts}, nil
}

// Verify checks the signature and expiry of token and that it was issued to
// user for room.
func (v *Verifier) Verify(token string, room domain.RoomID, user domain.SpeakerID) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if claims.Subject != string(user) {
		return nil, ErrSubjectMismatch
	}
	if len(claims.Rooms) > 0 && !slices.Contains(claims.Rooms, string(room)) {
		return nil, ErrRoomForbidden
	}
	return claims, nil
}

// Sign issues a token for user. Used by tooling and tests.
func (v *Verifier) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
