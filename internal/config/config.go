// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// botTokenEnvVars はボットトークンを探す環境変数名。先頭から順に参照し、
// 最初に空でなかった値を採用する。
var botTokenEnvVars = []string{"TELEGRAM_BOT_TOKEN", "BOT_TOKEN"}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	// BotTokenは未設定でも起動は継続する。認証リクエスト時に
	// SECRET_NOT_CONFIGUREDとして拒否される。
	BotToken string

	// Chat
	HistoryLimit     int
	MessageMaxLength int

	// Retention
	MessageRetentionDays int

	// Rate Limit
	RateLimitGeneral int // req/min/IP
	RateLimitAuth    int // req/min/IP（POST /auth 専用）

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.BotToken = lookupBotToken()

	// Optional fields with defaults
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", 50)
	cfg.MessageMaxLength = getEnvInt("MESSAGE_MAX_LENGTH", 4000)
	cfg.MessageRetentionDays = getEnvInt("MESSAGE_RETENTION_DAYS", 180)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// lookupBotToken はbotTokenEnvVarsを順に参照し、最初の空でない値を返す。
// どれも未設定の場合は空文字列を返す。
func lookupBotToken() string {
	for _, name := range botTokenEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
