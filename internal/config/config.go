package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultAccessSecret  = "dev-access-secret-change-me"
	defaultRefreshSecret = "dev-refresh-secret-change-me"
)

type Config struct {
	Port                  string
	Env                   string
	DatabaseDriver        string
	DatabaseDSN           string
	AccessSecret          string
	RefreshSecret         string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	OTPTTLMinutes         int
	ClientURL             string
	CookieDomain          string
	CookieSecure          bool
	RedisURL              string
	LoginMaxAttempts      int
	LoginCooldownSeconds  int
	SMTP                  SMTPConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled 表示是否配置了真实的 SMTP 服务器。
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.Username != "" && s.Password != ""
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 先读取 .env（若存在），再从环境变量组装配置。
func Load() Config {
	_ = godotenv.Load()

	secure, _ := strconv.ParseBool(getenv("COOKIE_SECURE", "false"))
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		Env:                   getenv("APP_ENV", "dev"),
		DatabaseDriver:        getenv("DATABASE_DRIVER", "postgres"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=pairchat port=5432 sslmode=disable TimeZone=UTC"),
		AccessSecret:          getenv("JWT_ACCESS_SECRET", defaultAccessSecret),
		RefreshSecret:         getenv("JWT_REFRESH_SECRET", defaultRefreshSecret),
		AccessTokenTTLMinutes: getint("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getint("REFRESH_TOKEN_TTL_DAYS", 7),
		OTPTTLMinutes:         getint("OTP_TTL_MINUTES", 10),
		ClientURL:             getenv("CLIENT_URL", "http://localhost:3000"),
		CookieDomain:          getenv("COOKIE_DOMAIN", ""),
		CookieSecure:          secure,
		RedisURL:              getenv("REDIS_URL", ""),
		LoginMaxAttempts:      getint("LOGIN_MAX_ATTEMPTS", 5),
		LoginCooldownSeconds:  getint("LOGIN_COOLDOWN_SECONDS", 900),
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getint("SMTP_PORT", 587),
			Username: getenv("SMTP_USER", ""),
			Password: getenv("SMTP_PASS", ""),
			From:     getenv("EMAIL_FROM", "noreply@pairchat.local"),
		},
	}
}

// Validate 在启动前检查配置，非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return errors.New("JWT secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.Env != "dev" && (cfg.AccessSecret == defaultAccessSecret || cfg.RefreshSecret == defaultRefreshSecret) {
		return errors.New("default JWT secret is not allowed outside dev")
	}
	return nil
}
