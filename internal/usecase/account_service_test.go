package usecase

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/forum-auth/internal/adapters/kakao"
	"github.com/example/forum-auth/internal/domain"
	pkglog "github.com/example/forum-auth/pkg/log"
)

func user01() PasswordRegistration {
	return PasswordRegistration{
		Handle:       "user01",
		Nickname:     "nick01",
		Email:        "u1@x.com",
		Password:     "pw",
		FavoriteRace: "zerg",
	}
}

func tokenFromBody(t *testing.T, body string) string {
	t.Helper()
	lines := strings.Split(body, "\n")
	require.Len(t, lines, 2)
	link, err := url.Parse(lines[1])
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestRegisterWithPasswordSendsOneVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, tokens, err := f.svc.RegisterWithPassword(ctx, "trace", user01())
	require.NoError(t, err)
	assert.False(t, account.IsVerified)
	assert.True(t, account.IsActive)
	assert.Equal(t, domain.RegistrationEmail, account.RegistrationType)
	assert.Equal(t, domain.RaceZerg, account.FavoriteRace)
	assert.NotEqual(t, "pw", account.PasswordHash)

	ts := NewTokenService(f.signer, f.cfg.AccessTTL, f.cfg.RefreshTTL)
	id, err := ts.AccountIDFromAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, id)
	assert.NotEmpty(t, tokens.RefreshToken)

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "u1@x.com", msgs[0].To)
	assert.Equal(t, VerificationSubject, msgs[0].Subject)
	assert.True(t, strings.HasPrefix(strings.Split(msgs[0].Body, "\n")[1], "http://forum.test/api/v1/auth/email/verify?token="))
}

func TestVerifyEmailIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, _, err := f.svc.RegisterWithPassword(ctx, "trace", user01())
	require.NoError(t, err)
	token := tokenFromBody(t, f.outbox.Messages()[0].Body)

	require.NoError(t, f.svc.VerifyEmail(ctx, "trace", token))
	stored, err := f.repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)

	require.NoError(t, f.svc.VerifyEmail(ctx, "trace", token))
	stored, err = f.repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
}

func TestVerifyEmailRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account, _, err := f.svc.RegisterWithPassword(ctx, "trace", user01())
	require.NoError(t, err)

	past, err := NewJWTSigner(f.cfg, WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	require.NoError(t, err)
	expired, err := NewVerificationCodec(past).Issue(account.ID, time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, "trace", expired), domain.ErrTokenExpired)

	other := testConfig()
	other.JWTSecret = "another-secret"
	foreign, err := NewJWTSigner(other)
	require.NoError(t, err)
	forged, err := NewVerificationCodec(foreign).Issue(account.ID, time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, "trace", forged), domain.ErrTokenMalformed)

	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, "trace", "not-a-token"), domain.ErrTokenMalformed)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, "trace", ""), domain.ErrTokenMalformed)

	ghost, err := NewVerificationCodec(f.signer).Issue("missing-id", time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, "trace", ghost), domain.ErrNotFound)

	stored, err := f.repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsVerified)
}

func TestRegisterWithPasswordConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.RegisterWithPassword(ctx, "trace", user01())
	require.NoError(t, err)

	cases := map[string]func(*PasswordRegistration){
		"handle":   func(in *PasswordRegistration) { in.Nickname, in.Email = "other", "other@x.com" },
		"nickname": func(in *PasswordRegistration) { in.Handle, in.Email = "other", "other@x.com" },
		"email":    func(in *PasswordRegistration) { in.Handle, in.Nickname, in.Email = "other", "other", "U1@X.com" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			in := user01()
			mutate(&in)
			_, _, err := f.svc.RegisterWithPassword(ctx, "trace", in)
			var conflict *domain.ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, field, conflict.Field)
		})
	}
	assert.Len(t, f.outbox.Messages(), 1)
}

func TestRegisterWithPasswordValidation(t *testing.T) {
	f := newFixture(t)

	in := user01()
	in.Email = "not-an-email"
	in.FavoriteRace = "human"
	in.Handle = "  "
	_, _, err := f.svc.RegisterWithPassword(context.Background(), "trace", in)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "favorite_race")
	assert.Contains(t, verr.Fields, "handle")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, f.outbox.Messages())
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	f := newFixture(t)
	f.outbox.FailWith(errors.New("smtp down"))

	account, tokens, err := f.svc.RegisterWithPassword(context.Background(), "trace", user01())
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.NotEmpty(t, tokens.AccessToken)
}

func TestAuthenticateWithPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered, _, err := f.svc.RegisterWithPassword(ctx, "trace", user01())
	require.NoError(t, err)

	account, tokens, err := f.svc.AuthenticateWithPassword(ctx, "trace", "user01", "pw")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, account.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	stored, err := f.repo.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)

	_, _, err = f.svc.AuthenticateWithPassword(ctx, "trace", "user01", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = f.svc.AuthenticateWithPassword(ctx, "trace", "nobody", "pw")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthenticateWithPasswordRejectsKakaoAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.kakao.profiles["kt"] = &kakao.Profile{ID: 42}
	account, _, err := f.svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "kt", Nickname: "kk"})
	require.NoError(t, err)

	_, _, err = f.svc.AuthenticateWithPassword(ctx, "trace", account.Handle, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestKakaoRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.kakao.profiles["kt"] = &kakao.Profile{ID: 1234, Email: "k@x.com"}

	registered, tokens, err := f.svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "kt", Nickname: "kk", FavoriteRace: "protoss"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, domain.RegistrationKakao, registered.RegistrationType)
	assert.Equal(t, "kakao_1234", registered.Handle)
	assert.True(t, registered.IsVerified)
	assert.False(t, registered.HasUsablePassword())
	require.NotNil(t, registered.ProviderID)
	assert.Equal(t, int64(1234), *registered.ProviderID)
	assert.Equal(t, "k@x.com", registered.EmailAddress())
	assert.Empty(t, f.outbox.Messages())

	account, _, err := f.svc.AuthenticateWithKakao(ctx, "trace", "kt")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, account.ID)

	_, _, err = f.svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "kt", Nickname: "kk2"})
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestKakaoNicknameCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.kakao.profiles["a"] = &kakao.Profile{ID: 1}
	f.kakao.profiles["b"] = &kakao.Profile{ID: 2}

	_, _, err := f.svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "a", Nickname: "same"})
	require.NoError(t, err)
	_, _, err = f.svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "b", Nickname: "same"})

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "nickname", conflict.Field)
}

func TestKakaoLoginWithoutAccount(t *testing.T) {
	f := newFixture(t)
	f.kakao.profiles["kt"] = &kakao.Profile{ID: 99}

	_, _, err := f.svc.AuthenticateWithKakao(context.Background(), "trace", "kt")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.NotErrorIs(t, err, domain.ErrExternalAuth)
}

func TestKakaoBridgeFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.kakao.err = errors.New("connection refused")

	_, _, err := f.svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "kt", Nickname: "kk"})
	assert.ErrorIs(t, err, domain.ErrExternalAuth)

	_, _, err = f.svc.AuthenticateWithKakao(ctx, "trace", "kt")
	assert.ErrorIs(t, err, domain.ErrExternalAuth)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.svc.ExchangeKakaoCode(ctx, "trace", "code")
	assert.ErrorIs(t, err, domain.ErrExternalAuth)
}

func TestRegisterWithKakaoValidation(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.RegisterWithKakao(context.Background(), "trace", KakaoRegistration{Nickname: "kk", FavoriteRace: "human"})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "access_token")
	assert.Contains(t, verr.Fields, "favorite_race")
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account, tokens, err := f.svc.RegisterWithPassword(ctx, "trace", user01())
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, "trace", tokens.RefreshToken)
	require.NoError(t, err)
	assert.Empty(t, refreshed.RefreshToken)

	id, err := NewTokenService(f.signer, f.cfg.AccessTTL, f.cfg.RefreshTTL).AccountIDFromAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, id)

	_, err = f.svc.Refresh(ctx, "trace", tokens.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestCreateSuperuser(t *testing.T) {
	f := newFixture(t)

	account, err := f.svc.CreateSuperuser(context.Background(), "trace", user01())
	require.NoError(t, err)
	assert.True(t, account.IsSuperuser)
	assert.True(t, account.IsStaff)
	assert.True(t, account.IsVerified)
	assert.Empty(t, f.outbox.Messages())
}

func TestGetAccountAndKakaoURLs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered, _, err := f.svc.RegisterWithPassword(ctx, "trace", user01())
	require.NoError(t, err)

	account, err := f.svc.GetAccount(ctx, "trace", registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "nick01", account.Nickname)

	_, err = f.svc.GetAccount(ctx, "trace", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Contains(t, f.svc.KakaoAuthorizeURL(), "client_id=test")
	token, err := f.svc.ExchangeKakaoCode(ctx, "trace", "abc")
	require.NoError(t, err)
	assert.Equal(t, "provider-abc", token)
}

func TestConcurrentRegistrationSameHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inputs := []PasswordRegistration{user01(), user01()}
	inputs[1].Nickname, inputs[1].Email = "nick02", "u2@x.com"

	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.svc.RegisterWithPassword(ctx, "trace", inputs[i])
		}(i)
	}
	wg.Wait()

	var succeeded, conflicts int
	for _, err := range errs {
		var conflict *domain.ConflictError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &conflict):
			conflicts++
			assert.Equal(t, "handle", conflict.Field)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, f.outbox.Messages(), 1)
}

func TestPasswordHandleCannotUseKakaoPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := user01()
	in.Handle = "kakao_4242"
	_, _, err := f.svc.RegisterWithPassword(ctx, "trace", in)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "handle")

	f.kakao.profiles["kt"] = &kakao.Profile{ID: 4242}
	account, _, err := f.svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "kt", Nickname: "kk"})
	require.NoError(t, err)
	assert.Equal(t, "kakao_4242", account.Handle)
}

func TestKakaoEmailHeldByAnotherAccountIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	squatter := user01()
	squatter.Email = "victim@kakao.com"
	_, _, err := f.svc.RegisterWithPassword(ctx, "trace", squatter)
	require.NoError(t, err)

	f.kakao.profiles["kt"] = &kakao.Profile{ID: 77, Email: "victim@kakao.com"}
	account, _, err := f.svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "kt", Nickname: "victim"})
	require.NoError(t, err)
	assert.Nil(t, account.Email)

	stored, err := f.repo.FindByProvider(ctx, 77, domain.RegistrationKakao)
	require.NoError(t, err)
	assert.Equal(t, "", stored.EmailAddress())

	_, _, err = f.svc.AuthenticateWithKakao(ctx, "trace", "kt")
	assert.NoError(t, err)
}

func TestFailedPasswordLoginAlwaysComparesHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newAccountService(f.cfg, pkglog.Nop(), f.repo, f.kakao, f.outbox, nil, f.signer)
	assert.Equal(t, bcrypt.MinCost, mustCost(t, svc.dummyHash))

	var compared [][]byte
	svc.compare = func(hash, password []byte) error {
		compared = append(compared, hash)
		return bcrypt.CompareHashAndPassword(hash, password)
	}

	_, _, err := svc.RegisterWithPassword(ctx, "trace", user01())
	require.NoError(t, err)
	f.kakao.profiles["kt"] = &kakao.Profile{ID: 5}
	kakaoAccount, _, err := svc.RegisterWithKakao(ctx, "trace", KakaoRegistration{AccessToken: "kt", Nickname: "kk"})
	require.NoError(t, err)

	cases := []struct{ handle, password string }{
		{"nobody", "pw"},
		{kakaoAccount.Handle, "pw"},
		{"user01", "wrong"},
	}
	for _, tc := range cases {
		compared = nil
		_, _, err := svc.AuthenticateWithPassword(ctx, "trace", tc.handle, tc.password)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		require.Len(t, compared, 1, "handle %s", tc.handle)
		assert.NotEmpty(t, compared[0])
	}
}

func mustCost(t *testing.T, hash []byte) int {
	t.Helper()
	cost, err := bcrypt.Cost(hash)
	require.NoError(t, err)
	return cost
}
