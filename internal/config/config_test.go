package config

import (
	"testing"
)

var envKeys = []string{
	"APP_PORT", "APP_ENV", "DATABASE_DRIVER", "DATABASE_DSN",
	"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET",
	"ACCESS_TOKEN_TTL_MINUTES", "REFRESH_TOKEN_TTL_DAYS", "OTP_TTL_MINUTES",
	"COOKIE_SECURE", "REDIS_URL", "SMTP_HOST", "SMTP_USER", "SMTP_PASS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Load() Port = %v, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Load() Env = %v, want dev", cfg.Env)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Errorf("Load() DatabaseDriver = %v, want postgres", cfg.DatabaseDriver)
	}
	if cfg.AccessTokenTTLMinutes != 15 {
		t.Errorf("Load() AccessTokenTTLMinutes = %v, want 15", cfg.AccessTokenTTLMinutes)
	}
	if cfg.RefreshTokenTTLDays != 7 {
		t.Errorf("Load() RefreshTokenTTLDays = %v, want 7", cfg.RefreshTokenTTLDays)
	}
	if cfg.OTPTTLMinutes != 10 {
		t.Errorf("Load() OTPTTLMinutes = %v, want 10", cfg.OTPTTLMinutes)
	}
	if cfg.SMTP.Enabled() {
		t.Error("Load() SMTP should be disabled without credentials")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(defaults) error = %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("DATABASE_DSN", "user:pass@tcp(localhost:3306)/pairchat")
	t.Setenv("JWT_ACCESS_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "30")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "14")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USER", "mailer")
	t.Setenv("SMTP_PASS", "secret")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Load() Port = %v, want 9090", cfg.Port)
	}
	if cfg.DatabaseDriver != "mysql" {
		t.Errorf("Load() DatabaseDriver = %v, want mysql", cfg.DatabaseDriver)
	}
	if cfg.AccessSecret != "access" || cfg.RefreshSecret != "refresh" {
		t.Errorf("Load() secrets = %q/%q", cfg.AccessSecret, cfg.RefreshSecret)
	}
	if cfg.AccessTokenTTLMinutes != 30 {
		t.Errorf("Load() AccessTokenTTLMinutes = %v, want 30", cfg.AccessTokenTTLMinutes)
	}
	if cfg.RefreshTokenTTLDays != 14 {
		t.Errorf("Load() RefreshTokenTTLDays = %v, want 14", cfg.RefreshTokenTTLDays)
	}
	if !cfg.CookieSecure {
		t.Error("Load() CookieSecure = false, want true")
	}
	if !cfg.SMTP.Enabled() {
		t.Error("Load() SMTP should be enabled")
	}
}

func TestLoad_InvalidTTL(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "invalid")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "-5")

	cfg := Load()

	// Should fall back to defaults
	if cfg.AccessTokenTTLMinutes != 15 {
		t.Errorf("Load() AccessTokenTTLMinutes = %v, want 15 (default)", cfg.AccessTokenTTLMinutes)
	}
	if cfg.RefreshTokenTTLDays != 7 {
		t.Errorf("Load() RefreshTokenTTLDays = %v, want 7 (default)", cfg.RefreshTokenTTLDays)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:           "8080",
		Env:            "prod",
		DatabaseDriver: "postgres",
		DatabaseDSN:    "postgres://localhost/test",
		AccessSecret:   "production-access",
		RefreshSecret:  "production-refresh",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid prod config", func(*Config) {}, false},
		{"valid sqlite", func(c *Config) { c.DatabaseDriver = "sqlite" }, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty dsn", func(c *Config) { c.DatabaseDSN = "" }, true},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "oracle" }, true},
		{"same secrets", func(c *Config) { c.RefreshSecret = c.AccessSecret }, true},
		{"empty refresh secret", func(c *Config) { c.RefreshSecret = "" }, true},
		{"default access secret in prod", func(c *Config) { c.AccessSecret = defaultAccessSecret }, true},
		{"default refresh secret in test env", func(c *Config) {
			c.Env = "test"
			c.RefreshSecret = defaultRefreshSecret
		}, true},
		{"default secrets in dev", func(c *Config) {
			c.Env = "dev"
			c.AccessSecret = defaultAccessSecret
			c.RefreshSecret = defaultRefreshSecret
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
