package usecase

import (
	"errors"
	"time"

	"github.com/example/forum-auth/internal/domain"
	"github.com/example/forum-auth/internal/tokenverify"
)

// VerificationCodec issues and decodes email confirmation tokens. It shares the
// signer with TokenService but uses its own claim shape (user_id, typ=verify).
type VerificationCodec struct {
	signer JWTSigner
}

func NewVerificationCodec(signer JWTSigner) *VerificationCodec {
	return &VerificationCodec{signer: signer}
}

func (v *VerificationCodec) Issue(accountID string, ttl time.Duration) (string, error) {
	return v.signer.SignVerificationToken(accountID, GenerateJTI(), ttl)
}

// Decode returns domain.ErrTokenExpired only for well-signed tokens past exp.
func (v *VerificationCodec) Decode(token string) (string, error) {
	result, err := tokenverify.Verify(v.signer, token, TokenTypeVerify, v.signer.Now)
	switch {
	case err == nil:
		return result.AccountID, nil
	case errors.Is(err, tokenverify.ErrTokenExpired):
		return "", domain.ErrTokenExpired
	default:
		return "", domain.ErrTokenMalformed
	}
}
