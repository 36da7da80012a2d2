package usecase

import (
	"time"

	"github.com/example/forum-auth/internal/domain"
	"github.com/example/forum-auth/internal/tokenverify"
)

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService issues stateless access/refresh pairs. There is no revocation list.
type TokenService struct {
	signer     JWTSigner
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(signer JWTSigner, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{signer: signer, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (t *TokenService) IssueTokenPair(account *domain.Account) (*Tokens, error) {
	access, err := t.signAccess(account.ID, account.Handle)
	if err != nil {
		return nil, err
	}
	refresh, err := t.signer.SignRefreshToken(account.ID, GenerateJTI(), t.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(t.accessTTL.Seconds())}, nil
}

// RefreshAccessToken mints a new access token from a valid refresh token.
func (t *TokenService) RefreshAccessToken(refreshToken string) (*Tokens, error) {
	result, err := tokenverify.Verify(t.signer, refreshToken, TokenTypeRefresh, t.signer.Now)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	access, err := t.signAccess(result.AccountID, "")
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, ExpiresIn: int64(t.accessTTL.Seconds())}, nil
}

// AccountIDFromAccessToken returns the account id bound to an access token.
func (t *TokenService) AccountIDFromAccessToken(accessToken string) (string, error) {
	result, err := tokenverify.Verify(t.signer, accessToken, TokenTypeAccess, t.signer.Now)
	if err != nil {
		return "", domain.ErrInvalidToken
	}
	return result.AccountID, nil
}

func (t *TokenService) signAccess(accountID, handle string) (string, error) {
	claims := map[string]interface{}{}
	if handle != "" {
		claims["handle"] = handle
	}
	return t.signer.SignAccessToken(accountID, claims, t.accessTTL)
}
