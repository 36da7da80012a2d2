package tokenverify

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid_token")
	ErrTokenExpired   = errors.New("token_expired")
	ErrSubjectMissing = errors.New("subject_missing")
	ErrWrongType      = errors.New("wrong_token_type")
)

type Parser interface {
	Parse(token string) (*jwt.Token, jwt.MapClaims, error)
}

type Result struct {
	AccountID string
	Handle    string
	Claims    map[string]any
}

// Verify parses a token of the expected typ and returns its subject.
// An expired token with a valid signature reports ErrTokenExpired; every other
// failure reports ErrInvalidToken. An empty typ skips the type check.
func Verify(parser Parser, token, typ string, nowFn func() time.Time) (*Result, error) {
	if parser == nil || token == "" {
		return nil, ErrInvalidToken
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	tok, claims, err := parser.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if tok == nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil || nowFn().After(exp.Time) {
		return nil, ErrTokenExpired
	}
	if typ != "" {
		if got, _ := claims["typ"].(string); got != typ {
			return nil, ErrWrongType
		}
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		sub, _ = claims["user_id"].(string)
	}
	handle, _ := claims["handle"].(string)
	if sub == "" {
		return nil, ErrSubjectMissing
	}
	filtered := map[string]any{}
	for k, v := range claims {
		if k == "sub" || k == "user_id" || k == "handle" {
			continue
		}
		filtered[k] = v
	}
	return &Result{AccountID: sub, Handle: handle, Claims: filtered}, nil
}
