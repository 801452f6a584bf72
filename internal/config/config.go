package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret           string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	SignupTokenTTL      time.Duration
	ActivateTokenTTL    time.Duration
	ResetTokenTTL       time.Duration
	SendWindow          time.Duration // cooldown window for verification emails
	SendMaxAttempts     int           // sends allowed per window per (purpose, email)
	InviteTTL           time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	accessMinutes, err := getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
	}

	refreshDays, err := getEnvInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_TOKEN_EXPIRE_DAYS: %w", err)
	}

	signupMinutes, err := getEnvInt("SIGNUP_EMAIL_TOKEN_EXPIRY_MINUTES", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNUP_EMAIL_TOKEN_EXPIRY_MINUTES: %w", err)
	}

	activateMinutes, err := getEnvInt("ACTIVATE_ACCOUNT_TOKEN_EXPIRY_MINUTES", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid ACTIVATE_ACCOUNT_TOKEN_EXPIRY_MINUTES: %w", err)
	}

	resetMinutes, err := getEnvInt("RESET_PASSWORD_TOKEN_EXPIRY_MINUTES", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RESET_PASSWORD_TOKEN_EXPIRY_MINUTES: %w", err)
	}

	sendWindowSeconds, err := getEnvInt("VERIFICATION_SEND_WINDOW_SECONDS", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid VERIFICATION_SEND_WINDOW_SECONDS: %w", err)
	}

	sendMaxAttempts, err := getEnvInt("VERIFICATION_SEND_MAX_ATTEMPTS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid VERIFICATION_SEND_MAX_ATTEMPTS: %w", err)
	}

	inviteHours, err := getEnvInt("INVITE_TTL_HOURS", 168)
	if err != nil {
		return nil, fmt.Errorf("invalid INVITE_TTL_HOURS: %w", err)
	}

	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret:        getEnv("JWT_SECRET", ""),
			AccessTokenTTL:   time.Duration(accessMinutes) * time.Minute,
			RefreshTokenTTL:  time.Duration(refreshDays) * 24 * time.Hour,
			SignupTokenTTL:   time.Duration(signupMinutes) * time.Minute,
			ActivateTokenTTL: time.Duration(activateMinutes) * time.Minute,
			ResetTokenTTL:    time.Duration(resetMinutes) * time.Minute,
			SendWindow:       time.Duration(sendWindowSeconds) * time.Second,
			SendMaxAttempts:  sendMaxAttempts,
			InviteTTL:        time.Duration(inviteHours) * time.Hour,
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     smtpPort,
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@tenantauth.local"),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
