package config

import (
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName       string `env:"AUTH_APP_NAME" envDefault:"forum-auth"`
	AppEnv        string `env:"AUTH_APP_ENV" envDefault:"local"`
	HTTPHost      string `env:"AUTH_HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort      string `env:"AUTH_HTTP_PORT" envDefault:"8081"`
	HTTPBasePath  string `env:"AUTH_HTTP_BASE_PATH" envDefault:"/api/v1"`
	PublicBaseURL string `env:"AUTH_PUBLIC_BASE_URL" envDefault:"http://127.0.0.1:8081"`

	DBDriver   string `env:"AUTH_DB_DRIVER" envDefault:"postgres"`
	DBHost     string `env:"AUTH_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"AUTH_DB_PORT" envDefault:"5432"`
	DBUser     string `env:"AUTH_DB_USER" envDefault:"app"`
	DBPassword string `env:"AUTH_DB_PASSWORD" envDefault:"app_password"`
	DBName     string `env:"AUTH_DB_NAME" envDefault:"forumdb"`
	DBSSLMode  string `env:"AUTH_DB_SSLMODE" envDefault:"disable"`
	// DBPath is only read by the sqlite driver.
	DBPath           string        `env:"AUTH_DB_PATH" envDefault:"forum-auth.db"`
	DBConnectTimeout time.Duration `env:"AUTH_DB_CONNECT_TIMEOUT" envDefault:"30s"`

	JWTSecret   string        `env:"AUTH_JWT_SECRET"`
	JWTAudience string        `env:"AUTH_JWT_AUDIENCE" envDefault:"forum"`
	JWTIssuer   string        `env:"AUTH_JWT_ISSUER" envDefault:"forum-auth"`
	AccessTTL   time.Duration `env:"AUTH_JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL  time.Duration `env:"AUTH_JWT_REFRESH_TTL" envDefault:"720h"`
	VerifyTTL   time.Duration `env:"AUTH_VERIFY_TTL" envDefault:"1h"`
	BcryptCost  int           `env:"AUTH_BCRYPT_COST" envDefault:"10"`

	KakaoRESTAPIKey  string        `env:"KAKAO_REST_API_KEY"`
	KakaoRedirectURI string        `env:"KAKAO_REDIRECT_URI" envDefault:"http://127.0.0.1:8081/api/v1/auth/kakao/callback"`
	KakaoAuthURL     string        `env:"KAKAO_AUTH_URL" envDefault:"https://kauth.kakao.com"`
	KakaoAPIURL      string        `env:"KAKAO_API_URL" envDefault:"https://kapi.kakao.com"`
	OAuthTimeout     time.Duration `env:"AUTH_OAUTH_TIMEOUT" envDefault:"5s"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"no-reply@forum.local"`
	SMTPTLS      bool   `env:"SMTP_TLS" envDefault:"true"`

	NATSURL               string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSVerifySubject     string `env:"NATS_SUBJECT_VERIFY_JWT" envDefault:"auth.verifyJWT"`
	NATSUserCreateSubject string `env:"NATS_SUBJECT_USER_CREATE" envDefault:"user.create-user"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// VerifyEmailURL is the absolute link embedded in verification messages.
func (c *Config) VerifyEmailURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + c.HTTPBasePath + "/auth/email/verify"
}
