package usecase

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/forum-auth/config"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeVerify  = "verify"
)

type JWTSigner interface {
	SignAccessToken(subject string, claims map[string]interface{}, ttl time.Duration) (string, error)
	SignRefreshToken(subject, jti string, ttl time.Duration) (string, error)
	SignVerificationToken(accountID, jti string, ttl time.Duration) (string, error)
	Parse(token string) (*jwt.Token, jwt.MapClaims, error)
	// Now is the clock used for iat/exp and for validation.
	Now() time.Time
}

type SignerOption func(*jwtSigner)

// WithClock overrides the time source used for both signing and validation.
func WithClock(now func() time.Time) SignerOption {
	return func(s *jwtSigner) { s.now = now }
}

type jwtSigner struct {
	cfg     *config.Config
	hmacKey []byte
	now     func() time.Time
}

func NewJWTSigner(cfg *config.Config, opts ...SignerOption) (JWTSigner, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret required")
	}
	s := &jwtSigner{cfg: cfg, hmacKey: []byte(cfg.JWTSecret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *jwtSigner) SignAccessToken(subject string, claims map[string]interface{}, ttl time.Duration) (string, error) {
	std := s.baseClaims(subject, TokenTypeAccess, ttl)
	std["jti"] = GenerateJTI()
	for k, v := range claims {
		if _, reserved := std[k]; reserved {
			continue
		}
		std[k] = v
	}
	return s.sign(std)
}

func (s *jwtSigner) SignRefreshToken(subject, jti string, ttl time.Duration) (string, error) {
	std := s.baseClaims(subject, TokenTypeRefresh, ttl)
	std["jti"] = jti
	return s.sign(std)
}

func (s *jwtSigner) SignVerificationToken(accountID, jti string, ttl time.Duration) (string, error) {
	std := s.baseClaims("", TokenTypeVerify, ttl)
	delete(std, "sub")
	std["user_id"] = accountID
	std["jti"] = jti
	return s.sign(std)
}

func (s *jwtSigner) Parse(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(s.cfg.JWTAudience),
		jwt.WithIssuer(s.cfg.JWTIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(30*time.Second),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.hmacKey, nil
	})
	return token, claims, err
}

func (s *jwtSigner) Now() time.Time { return s.now() }

func (s *jwtSigner) baseClaims(subject, typ string, ttl time.Duration) jwt.MapClaims {
	now := s.now().UTC()
	return jwt.MapClaims{
		"sub": subject,
		"typ": typ,
		"iss": s.cfg.JWTIssuer,
		"aud": s.cfg.JWTAudience,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
}

func (s *jwtSigner) sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hmacKey)
}

func GenerateJTI() string {
	return uuid.NewString()
}
