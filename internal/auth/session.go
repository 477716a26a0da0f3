// Package auth issues and verifies the HS256 session tokens sweepers
// present on /ingest and (optionally) /ws (C7).
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"plotsweep/internal/apperr"
)

const (
	Issuer   = "plotsweep"
	Audience = "plotsweep-clients"
)

// Claims is the signed payload: {cid, aud, iss, iat}.
type Claims struct {
	CID int64 `json:"cid"`
	jwtlib.RegisteredClaims
}

type Sessions struct {
	secret []byte
}

func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret)}
}

// Issue mints a signed session token for the given sweeper client id.
func (s *Sessions) Issue(cid int64) (string, error) {
	now := time.Now()
	claims := Claims{
		CID: cid,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwtlib.ClaimStrings{Audience},
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature, issuer, and audience, returning the sweeper
// client id carried in the token.
func (s *Sessions) Verify(tokenStr string) (int64, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwtlib.WithIssuer(Issuer), jwtlib.WithAudience(Audience))
	if err != nil {
		return 0, apperr.Wrap(apperr.KindAuthFailure, "invalid session token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, apperr.New(apperr.KindAuthFailure, "invalid session token claims")
	}
	return claims.CID, nil
}

// FromRequest extracts the bearer token from the Authorization header.
func FromRequest(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), true
}

// FromQuery extracts the optional ?jwt= token /ws accepts per §6.
func FromQuery(r *http.Request) (string, bool) {
	v := r.URL.Query().Get("jwt")
	if v == "" {
		return "", false
	}
	return v, true
}
