package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/forum-auth/config"
	httpadapter "github.com/example/forum-auth/internal/adapters/http"
	apiv1 "github.com/example/forum-auth/internal/adapters/http/api/v1"
	handlers "github.com/example/forum-auth/internal/adapters/http/api/v1/handlers"
	authmw "github.com/example/forum-auth/internal/adapters/http/middleware"
	"github.com/example/forum-auth/internal/adapters/kakao"
	"github.com/example/forum-auth/internal/adapters/mailer"
	natsadapter "github.com/example/forum-auth/internal/adapters/nats"
	repo "github.com/example/forum-auth/internal/adapters/postgres"
	"github.com/example/forum-auth/internal/usecase"
	pkglog "github.com/example/forum-auth/pkg/log"
)

type App struct {
	cfg      *config.Config
	logger   pkglog.Logger
	db       *gorm.DB
	natsConn *nats.Conn
	echo     *echo.Echo
	service  usecase.Service
}

func New(ctx context.Context) (*App, error) {
	cfg := config.MustLoad()
	logger := pkglog.With(pkglog.New(cfg.AppEnv), pkglog.Fields{"service": cfg.AppName})

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(db); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
	if err != nil {
		logger.Warn().Err(err).Msg("nats connect failed, running without messaging")
		nc = nil
	}

	signer, err := usecase.NewJWTSigner(cfg)
	if err != nil {
		return nil, err
	}

	var userClient natsadapter.UserClient
	if nc != nil {
		userClient = natsadapter.NewUserClient(nc, cfg.NATSUserCreateSubject)
		if _, err := natsadapter.NewVerifyHandler(signer, usecase.TokenTypeAccess).Subscribe(nc, cfg.NATSVerifySubject, cfg.AppName); err != nil {
			logger.Warn().Err(err).Str("subject", cfg.NATSVerifySubject).Msg("verify subscription failed")
		}
	}

	kakaoClient := kakao.NewHTTPClient(kakao.Config{
		ClientID:    cfg.KakaoRESTAPIKey,
		RedirectURI: cfg.KakaoRedirectURI,
		AuthURL:     cfg.KakaoAuthURL,
		APIURL:      cfg.KakaoAPIURL,
		Timeout:     cfg.OAuthTimeout,
	})

	service := usecase.NewAccountService(cfg, logger, repo.NewAccountRepository(db), kakaoClient, newMailSender(cfg, logger), userClient, signer)
	handler := handlers.NewAuthHandler(service)
	authMW := authmw.NewAuthMiddleware(signer, usecase.TokenTypeAccess)
	router := httpadapter.NewRouter(cfg, logger, apiv1.NewRouter(handler, authMW.Handler))

	e := echo.New()
	router.Setup(e)

	return &App{cfg: cfg, logger: logger, db: db, natsConn: nc, echo: e, service: service}, nil
}

// Service exposes the account service for administrative commands.
func (a *App) Service() usecase.Service { return a.service }

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		errCh <- a.echo.Start(fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort))
	}()
	a.logger.Info().Str("addr", fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort)).Msg("http server started")
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// openDatabase retries the initial connection so the service can start before
// the database is accepting connections.
func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	var db *gorm.DB
	op := func() error {
		conn, err := gorm.Open(dialector(cfg), &gorm.Config{Logger: loggerForGorm(cfg)})
		if err != nil {
			return err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		db = conn
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = cfg.DBConnectTimeout
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	return db, nil
}

func dialector(cfg *config.Config) gorm.Dialector {
	if cfg.DBDriver == "sqlite" {
		return sqlite.Open(cfg.DBPath)
	}
	return postgres.Open(buildDSN(cfg))
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func newMailSender(cfg *config.Config, logger pkglog.Logger) mailer.Sender {
	if cfg.SMTPHost == "" {
		return mailer.NewLogSender(logger)
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		TLS:      cfg.SMTPTLS,
	})
}

func loggerForGorm(cfg *config.Config) logger.Interface {
	level := logger.Warn
	if cfg.AppEnv == "local" {
		level = logger.Info
	}
	return logger.Default.LogMode(level)
}
