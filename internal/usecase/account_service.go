package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/forum-auth/config"
	"github.com/example/forum-auth/internal/adapters/kakao"
	"github.com/example/forum-auth/internal/adapters/mailer"
	natsadapter "github.com/example/forum-auth/internal/adapters/nats"
	repo "github.com/example/forum-auth/internal/adapters/postgres"
	"github.com/example/forum-auth/internal/domain"
	pkglog "github.com/example/forum-auth/pkg/log"
)

const VerificationSubject = "Verify your email"

type Service interface {
	RegisterWithPassword(ctx context.Context, traceID string, in PasswordRegistration) (*domain.Account, *Tokens, error)
	VerifyEmail(ctx context.Context, traceID, token string) error
	AuthenticateWithPassword(ctx context.Context, traceID, handle, password string) (*domain.Account, *Tokens, error)
	RegisterWithKakao(ctx context.Context, traceID string, in KakaoRegistration) (*domain.Account, *Tokens, error)
	AuthenticateWithKakao(ctx context.Context, traceID, accessToken string) (*domain.Account, *Tokens, error)
	Refresh(ctx context.Context, traceID, refreshToken string) (*Tokens, error)
	GetAccount(ctx context.Context, traceID, accountID string) (*domain.Account, error)
	KakaoAuthorizeURL() string
	ExchangeKakaoCode(ctx context.Context, traceID, code string) (string, error)
	CreateSuperuser(ctx context.Context, traceID string, in PasswordRegistration) (*domain.Account, error)
}

type accountService struct {
	cfg        *config.Config
	logger     pkglog.Logger
	accounts   repo.AccountRepository
	kakao      kakao.Client
	mailer     mailer.Sender
	userClient natsadapter.UserClient
	tokens     *TokenService
	verifier   *VerificationCodec
	validate   *validator.Validate
	now        func() time.Time
	// dummyHash is compared against when there is no real hash to check, so
	// unknown handles cost the same as wrong passwords.
	dummyHash []byte
	compare   func(hash, password []byte) error
}

func NewAccountService(cfg *config.Config, logger pkglog.Logger, accounts repo.AccountRepository, kakaoClient kakao.Client, sender mailer.Sender, userClient natsadapter.UserClient, signer JWTSigner) Service {
	return newAccountService(cfg, logger, accounts, kakaoClient, sender, userClient, signer)
}

func newAccountService(cfg *config.Config, logger pkglog.Logger, accounts repo.AccountRepository, kakaoClient kakao.Client, sender mailer.Sender, userClient natsadapter.UserClient, signer JWTSigner) *accountService {
	s := &accountService{
		cfg:        cfg,
		logger:     logger,
		accounts:   accounts,
		kakao:      kakaoClient,
		mailer:     sender,
		userClient: userClient,
		tokens:     NewTokenService(signer, cfg.AccessTTL, cfg.RefreshTTL),
		verifier:   NewVerificationCodec(signer),
		validate:   newValidator(),
		now:        time.Now,
		compare:    bcrypt.CompareHashAndPassword,
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("forum-auth/no-account"), s.bcryptCost())
	if err != nil {
		logger.Warn().Err(err).Msg("dummy password hash not generated")
	}
	s.dummyHash = hash
	return s
}

func (s *accountService) RegisterWithPassword(ctx context.Context, traceID string, in PasswordRegistration) (*domain.Account, *Tokens, error) {
	account, err := s.newPasswordAccount(in)
	if err != nil {
		return nil, nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, nil, err
	}

	tokens, err := s.tokens.IssueTokenPair(account)
	if err != nil {
		return nil, nil, err
	}
	s.sendVerification(ctx, traceID, account)
	s.notifyCreated(ctx, traceID, account)
	s.logger.Info().Str("trace_id", traceID).Str("account_id", account.ID).Str("registration_type", string(account.RegistrationType)).Msg("account registered")
	return account, tokens, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, traceID, token string) error {
	accountID, err := s.verifier.Decode(token)
	if err != nil {
		return err
	}
	if err := s.accounts.MarkVerified(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info().Str("trace_id", traceID).Str("account_id", accountID).Msg("email verified")
	return nil
}

// AuthenticateWithPassword does not look at IsVerified: verification gates email flows, not login.
func (s *accountService) AuthenticateWithPassword(ctx context.Context, traceID, handle, password string) (*domain.Account, *Tokens, error) {
	account, err := s.accounts.FindByHandle(ctx, strings.TrimSpace(handle))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = s.compare(s.dummyHash, []byte(password))
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !account.IsActive || !account.HasUsablePassword() {
		_ = s.compare(s.dummyHash, []byte(password))
		return nil, nil, domain.ErrInvalidCredentials
	}
	if err := s.compare([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil, domain.ErrInvalidCredentials
	}
	return s.signIn(ctx, traceID, account)
}

func (s *accountService) RegisterWithKakao(ctx context.Context, traceID string, in KakaoRegistration) (*domain.Account, *Tokens, error) {
	in.Nickname = strings.TrimSpace(in.Nickname)
	if err := validateInput(s.validate, in); err != nil {
		return nil, nil, err
	}
	profile, err := s.kakao.FetchProfile(ctx, in.AccessToken)
	if err != nil {
		return nil, nil, s.externalAuthError(traceID, err)
	}

	providerID := profile.ID
	account := &domain.Account{
		Handle:           fmt.Sprintf("%s_%d", domain.RegistrationKakao, providerID),
		Nickname:         in.Nickname,
		RegistrationType: domain.RegistrationKakao,
		ProviderID:       &providerID,
		FavoriteRace:     domain.Race(in.FavoriteRace),
		IsVerified:       true,
		IsActive:         true,
	}
	if profile.Email != "" {
		email := profile.Email
		account.Email = &email
	}
	// The provider id is unique in the store, so a second registration for the
	// same Kakao user surfaces as a conflict here.
	if err := s.createKakaoAccount(ctx, traceID, account); err != nil {
		return nil, nil, err
	}

	tokens, err := s.tokens.IssueTokenPair(account)
	if err != nil {
		return nil, nil, err
	}
	s.notifyCreated(ctx, traceID, account)
	s.logger.Info().Str("trace_id", traceID).Str("account_id", account.ID).Str("registration_type", string(account.RegistrationType)).Msg("account registered")
	return account, tokens, nil
}

// AuthenticateWithKakao never creates an account; an unlinked provider id is a credential failure.
func (s *accountService) AuthenticateWithKakao(ctx context.Context, traceID, accessToken string) (*domain.Account, *Tokens, error) {
	profile, err := s.kakao.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, nil, s.externalAuthError(traceID, err)
	}
	account, err := s.accounts.FindByProvider(ctx, profile.ID, domain.RegistrationKakao)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !account.IsActive {
		return nil, nil, domain.ErrInvalidCredentials
	}
	return s.signIn(ctx, traceID, account)
}

func (s *accountService) Refresh(ctx context.Context, traceID, refreshToken string) (*Tokens, error) {
	tokens, err := s.tokens.RefreshAccessToken(strings.TrimSpace(refreshToken))
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("trace_id", traceID).Msg("access token refreshed")
	return tokens, nil
}

func (s *accountService) GetAccount(ctx context.Context, traceID, accountID string) (*domain.Account, error) {
	return s.accounts.FindByID(ctx, accountID)
}

func (s *accountService) KakaoAuthorizeURL() string {
	return s.kakao.AuthorizeURL()
}

func (s *accountService) ExchangeKakaoCode(ctx context.Context, traceID, code string) (string, error) {
	token, err := s.kakao.ExchangeCode(ctx, code)
	if err != nil {
		return "", s.externalAuthError(traceID, err)
	}
	return token, nil
}

// CreateSuperuser bootstraps an administrative password account. It is already
// verified, so no verification message is sent.
func (s *accountService) CreateSuperuser(ctx context.Context, traceID string, in PasswordRegistration) (*domain.Account, error) {
	account, err := s.newPasswordAccount(in)
	if err != nil {
		return nil, err
	}
	account.IsVerified = true
	account.IsStaff = true
	account.IsSuperuser = true
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Str("account_id", account.ID).Msg("superuser created")
	return account, nil
}

func (s *accountService) newPasswordAccount(in PasswordRegistration) (*domain.Account, error) {
	in.Handle = strings.TrimSpace(in.Handle)
	in.Nickname = strings.TrimSpace(in.Nickname)
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost())
	if err != nil {
		return nil, err
	}
	email := in.Email
	return &domain.Account{
		Handle:           in.Handle,
		Nickname:         in.Nickname,
		Email:            &email,
		RegistrationType: domain.RegistrationEmail,
		PasswordHash:     string(hash),
		FavoriteRace:     domain.Race(in.FavoriteRace),
		IsVerified:       false,
		IsActive:         true,
	}, nil
}

// createKakaoAccount stores the provider email only while no other account holds
// it. The email is optional for Kakao accounts, so a collision drops it instead
// of failing the registration.
func (s *accountService) createKakaoAccount(ctx context.Context, traceID string, account *domain.Account) error {
	err := s.accounts.Create(ctx, account)
	var conflict *domain.ConflictError
	if err == nil || account.Email == nil || !errors.As(err, &conflict) || conflict.Field != "email" {
		return err
	}
	s.logger.Info().Str("trace_id", traceID).Int64("provider_id", *account.ProviderID).Msg("kakao email already in use, stored without email")
	account.Email = nil
	return s.accounts.Create(ctx, account)
}

func (s *accountService) signIn(ctx context.Context, traceID string, account *domain.Account) (*domain.Account, *Tokens, error) {
	now := s.now().UTC()
	if err := s.accounts.TouchLastLogin(ctx, account.ID, now); err != nil {
		return nil, nil, err
	}
	account.LastLoginAt = &now
	tokens, err := s.tokens.IssueTokenPair(account)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Str("account_id", account.ID).Str("registration_type", string(account.RegistrationType)).Msg("signin")
	return account, tokens, nil
}

// sendVerification runs after commit. Delivery is fire-and-forget: a failure is
// logged and the registration still succeeds.
func (s *accountService) sendVerification(ctx context.Context, traceID string, account *domain.Account) {
	token, err := s.verifier.Issue(account.ID, s.cfg.VerifyTTL)
	if err != nil {
		s.logger.Error().Err(err).Str("trace_id", traceID).Str("account_id", account.ID).Msg("verification token not issued")
		return
	}
	link := s.cfg.VerifyEmailURL() + "?token=" + url.QueryEscape(token)
	msg := mailer.Message{
		To:      account.EmailAddress(),
		Subject: VerificationSubject,
		Body:    fmt.Sprintf("Hi %s, use the link below to verify your email.\n%s", account.Nickname, link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("trace_id", traceID).Str("account_id", account.ID).Msg("verification email not sent")
	}
}

func (s *accountService) notifyCreated(ctx context.Context, traceID string, account *domain.Account) {
	if s.userClient == nil {
		return
	}
	err := s.userClient.NotifyAccountCreated(ctx, natsadapter.AccountCreated{
		ID:               account.ID,
		Handle:           account.Handle,
		Nickname:         account.Nickname,
		RegistrationType: string(account.RegistrationType),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("trace_id", traceID).Str("account_id", account.ID).Msg("content service not notified")
	}
}

func (s *accountService) externalAuthError(traceID string, err error) error {
	s.logger.Warn().Err(err).Str("trace_id", traceID).Msg("kakao call failed")
	if errors.Is(err, domain.ErrExternalAuth) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrExternalAuth, err)
}

func (s *accountService) bcryptCost() int {
	if s.cfg.BcryptCost < bcrypt.MinCost || s.cfg.BcryptCost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return s.cfg.BcryptCost
}
