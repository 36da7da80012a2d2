package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/forum-auth/config"
	"github.com/example/forum-auth/internal/adapters/kakao"
	"github.com/example/forum-auth/internal/adapters/mailer"
	repo "github.com/example/forum-auth/internal/adapters/postgres"
	"github.com/example/forum-auth/internal/domain"
	pkglog "github.com/example/forum-auth/pkg/log"
)

func testConfig() *config.Config {
	return &config.Config{
		PublicBaseURL: "http://forum.test",
		HTTPBasePath:  "/api/v1",
		JWTSecret:     "test-secret",
		JWTAudience:   "forum",
		JWTIssuer:     "forum-auth",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		VerifyTTL:     time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive for the whole test
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.Migrate(db))
	return db
}

type fakeKakao struct {
	profiles map[string]*kakao.Profile
	err      error
}

func (f *fakeKakao) FetchProfile(_ context.Context, token string) (*kakao.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[token]
	if !ok {
		return nil, domain.ErrExternalAuth
	}
	return p, nil
}

func (f *fakeKakao) AuthorizeURL() string { return "https://kauth.test/oauth/authorize?client_id=test" }

func (f *fakeKakao) ExchangeCode(_ context.Context, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "provider-" + code, nil
}

type fixture struct {
	svc    Service
	repo   repo.AccountRepository
	outbox *mailer.Outbox
	kakao  *fakeKakao
	signer JWTSigner
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	signer, err := NewJWTSigner(cfg)
	require.NoError(t, err)
	accounts := repo.NewAccountRepository(newTestDB(t))
	outbox := mailer.NewOutbox()
	kc := &fakeKakao{profiles: map[string]*kakao.Profile{}}
	svc := NewAccountService(cfg, pkglog.Nop(), accounts, kc, outbox, nil, signer)
	return &fixture{svc: svc, repo: accounts, outbox: outbox, kakao: kc, signer: signer, cfg: cfg}
}
