package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"adsledger/internal/service"
)

const (
	backendREST     = "rest"
	backendRedis    = "redis"
	backendPostgres = "postgres"
	backendMemory   = "memory"
)

type config struct {
	Port string

	StoreBackend string
	KVRestURL    string
	KVRestToken  string
	RedisURL     string
	DatabaseURL  string
	LedgerKey    string
	StoreTimeout time.Duration

	AdminID    string
	AdminToken string

	BotToken    string
	FrontendURL string

	AdReward      decimal.Decimal
	ReferralBonus decimal.Decimal
	MaxAmount     decimal.Decimal

	CORSOrigins    []string
	TrustProxy     bool
	RateLimitRPS   float64
	RateLimitBurst int

	DailyResetCron string
	LogLevel       logrus.Level
}

// loadDotEnv reads .env into the process environment. Variables that are
// already set win.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// settings resolves a key from the environment first and the optional YAML
// file second. File keys are the variable names in lower case.
type settings struct {
	getenv func(string) string
	file   map[string]string
}

func newSettings(getenv func(string) string) (settings, error) {
	s := settings{getenv: getenv, file: map[string]string{}}

	path := strings.TrimSpace(getenv("CONFIG_FILE"))
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return s, fmt.Errorf("parse CONFIG_FILE: %w", err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		s.file[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(fmt.Sprint(v))
	}
	return s, nil
}

func (s settings) get(key, def string) string {
	if v := strings.TrimSpace(s.getenv(key)); v != "" {
		return v
	}
	if v, ok := s.file[strings.ToLower(key)]; ok && v != "" {
		return v
	}
	return def
}

func loadConfig(getenv func(string) string) (config, error) {
	s, err := newSettings(getenv)
	if err != nil {
		return config{}, err
	}

	cfg := config{
		Port:           s.get("PORT", "8080"),
		KVRestURL:      s.get("KV_REST_API_URL", ""),
		KVRestToken:    s.get("KV_REST_API_TOKEN", ""),
		RedisURL:       s.get("REDIS_URL", ""),
		DatabaseURL:    s.get("DATABASE_URL", ""),
		LedgerKey:      s.get("LEDGER_KEY", "ledger"),
		AdminID:        s.get("ADMIN_ID", ""),
		AdminToken:     s.get("ADMIN_TOKEN", ""),
		BotToken:       s.get("BOT_TOKEN", ""),
		FrontendURL:    s.get("FRONTEND_URL", ""),
		DailyResetCron: s.get("DAILY_RESET_CRON", "0 0 * * *"),
	}

	defaultBackend := backendMemory
	if cfg.KVRestURL != "" {
		defaultBackend = backendREST
	}
	cfg.StoreBackend = strings.ToLower(s.get("STORE_BACKEND", defaultBackend))

	if cfg.AdminID == "" {
		return config{}, errors.New("ADMIN_ID is required")
	}

	switch cfg.StoreBackend {
	case backendREST:
		if cfg.KVRestURL == "" || cfg.KVRestToken == "" {
			return config{}, errors.New("KV_REST_API_URL and KV_REST_API_TOKEN are required for the rest backend")
		}
	case backendRedis:
		if cfg.RedisURL == "" {
			return config{}, errors.New("REDIS_URL is required for the redis backend")
		}
	case backendPostgres:
		if cfg.DatabaseURL == "" {
			return config{}, errors.New("DATABASE_URL is required for the postgres backend")
		}
	case backendMemory:
	default:
		return config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.StoreTimeout, err = time.ParseDuration(s.get("STORE_TIMEOUT", "5s")); err != nil || cfg.StoreTimeout <= 0 {
		return config{}, fmt.Errorf("invalid STORE_TIMEOUT %q", s.get("STORE_TIMEOUT", ""))
	}

	if cfg.AdReward, err = decimal.NewFromString(s.get("AD_REWARD", service.DefaultAdReward.String())); err != nil || !cfg.AdReward.IsPositive() {
		return config{}, fmt.Errorf("invalid AD_REWARD %q", s.get("AD_REWARD", ""))
	}
	if cfg.ReferralBonus, err = decimal.NewFromString(s.get("REFERRAL_BONUS", "0")); err != nil || cfg.ReferralBonus.IsNegative() {
		return config{}, fmt.Errorf("invalid REFERRAL_BONUS %q", s.get("REFERRAL_BONUS", ""))
	}
	if cfg.MaxAmount, err = decimal.NewFromString(s.get("MAX_AMOUNT", service.DefaultMaxAmount.String())); err != nil || !cfg.MaxAmount.IsPositive() {
		return config{}, fmt.Errorf("invalid MAX_AMOUNT %q", s.get("MAX_AMOUNT", ""))
	}

	for _, origin := range strings.Split(s.get("CORS_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if cfg.TrustProxy, err = strconv.ParseBool(s.get("TRUST_PROXY", "false")); err != nil {
		return config{}, fmt.Errorf("invalid TRUST_PROXY %q", s.get("TRUST_PROXY", ""))
	}

	if cfg.RateLimitRPS, err = strconv.ParseFloat(s.get("RATE_LIMIT_RPS", "5"), 64); err != nil || cfg.RateLimitRPS <= 0 {
		return config{}, fmt.Errorf("invalid RATE_LIMIT_RPS %q", s.get("RATE_LIMIT_RPS", ""))
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(s.get("RATE_LIMIT_BURST", "10")); err != nil || cfg.RateLimitBurst <= 0 {
		return config{}, fmt.Errorf("invalid RATE_LIMIT_BURST %q", s.get("RATE_LIMIT_BURST", ""))
	}

	if _, err := cron.ParseStandard(cfg.DailyResetCron); err != nil {
		return config{}, fmt.Errorf("invalid DAILY_RESET_CRON %q: %w", cfg.DailyResetCron, err)
	}

	if cfg.LogLevel, err = logrus.ParseLevel(s.get("LOG_LEVEL", "info")); err != nil {
		return config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}
