package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL        string
	HostingDatabaseURL string

	// Session
	SessionSecret  string
	SessionStore   string
	SessionMaxAge  int
	RememberMaxAge time.Duration

	// Redis（SessionStore=redis の場合）
	RedisAddr     string
	RedisPassword string

	// LDAP
	LDAPURL          string
	LDAPSearchBase   string
	LDAPBindDN       string
	LDAPBindPassword string
	LDAPTimeout      time.Duration

	// Mail
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	SMTPTimeout        time.Duration
	MailSupportAddress string
	MailUserDomain     string

	// Divisions
	SampleUsers      string
	FallbackDivision string

	// News
	NewsFeedURL string
	NewsLimit   int
	NewsTimeout time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitLogin   int

	// Logging
	LogFormat string
	LogLevel  string

	// Server
	ServerPort string
	BaseURL    string
	TrustProxy bool

	// Cookie
	CookieSecure bool
	CookieDomain string
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

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.LDAPURL = os.Getenv("LDAP_URL")
	if cfg.LDAPURL == "" {
		missing = append(missing, "LDAP_URL")
	}

	cfg.LDAPSearchBase = os.Getenv("LDAP_SEARCH_BASE")
	if cfg.LDAPSearchBase == "" {
		missing = append(missing, "LDAP_SEARCH_BASE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.HostingDatabaseURL = getEnvString("HOSTING_DATABASE_URL", cfg.DatabaseURL)
	cfg.SessionStore = strings.ToLower(getEnvString("SESSION_STORE", "postgres"))
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RememberMaxAge = getEnvDuration("REMEMBER_MAX_AGE", 30*24*time.Hour)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.LDAPBindDN = getEnvString("LDAP_BIND_DN", "")
	cfg.LDAPBindPassword = getEnvString("LDAP_BIND_PASSWORD", "")
	cfg.LDAPTimeout = getEnvDuration("LDAP_TIMEOUT", 5*time.Second)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "localhost")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 25)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPTimeout = getEnvDuration("SMTP_TIMEOUT", 10*time.Second)
	cfg.MailSupportAddress = getEnvString("MAIL_SUPPORT_ADDRESS", "support@wh2.tu-dresden.de")
	cfg.MailUserDomain = getEnvString("MAIL_USER_DOMAIN", "wh2.tu-dresden.de")
	cfg.SampleUsers = getEnvString("SAMPLE_USERS", "")
	cfg.FallbackDivision = getEnvString("FALLBACK_DIVISION", "sample")
	cfg.NewsFeedURL = getEnvString("NEWS_FEED_URL", "")
	cfg.NewsLimit = getEnvInt("NEWS_LIMIT", 5)
	cfg.NewsTimeout = getEnvDuration("NEWS_TIMEOUT", 5*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.LogFormat = strings.ToLower(getEnvString("LOG_FORMAT", "json"))
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	if cfg.SessionStore != "postgres" && cfg.SessionStore != "redis" {
		return nil, fmt.Errorf("unsupported SESSION_STORE: %q (postgres or redis)", cfg.SessionStore)
	}
	if cfg.SessionStore == "redis" && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required when SESSION_STORE=redis")
	}

	return cfg, nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
