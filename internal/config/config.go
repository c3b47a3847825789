package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the web and worker processes.
type Config struct {
	// Telegram / infra
	BotToken      string
	WebhookBase   string // https://<app>.fly.dev
	WebhookSecret string
	Port          string

	// Bitrix
	BitrixWebhookBase string // https://portal.bitrix24.<tld>/rest/<user>/<token>
	B24Domain         string

	// Storage
	DatabaseURL string
	RedisURL    string
	TeamsFile   string

	// Reports
	MasterReportChatID int64
	ReportHour         int
	ReportLocation     *time.Location
	RunWorkerInApp     bool

	// Admin
	JWTSecret         string
	AdminPasswordHash string
	AdminTelegramIDs  []int64

	Env string
}

// Load reads .env (if present) and the process environment. Every missing
// required variable is reported in a single error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var missing []string
	must := func(name string) string {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	cfg := Config{
		BotToken:          must("TG_BOT_TOKEN"),
		WebhookBase:       strings.TrimRight(must("WEBHOOK_BASE"), "/"),
		WebhookSecret:     must("WEBHOOK_SECRET"),
		BitrixWebhookBase: strings.TrimRight(must("BITRIX_WEBHOOK_BASE"), "/"),
		DatabaseURL:       must("DATABASE_URL"),
		B24Domain:         strings.TrimSpace(os.Getenv("B24_DOMAIN")),
		RedisURL:          strings.TrimSpace(os.Getenv("REDIS_URL")),
		TeamsFile:         envOr("TEAMS_FILE", "teams.yaml"),
		Port:              envOr("PORT", "8080"),
		RunWorkerInApp:    parseBool(os.Getenv("RUN_WORKER_IN_APP")),
		JWTSecret:         strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AdminPasswordHash: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH")),
		Env:               envOr("APP_ENV", "development"),
	}

	masterChat := must("MASTER_REPORT_CHAT_ID")
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}

	id, err := strconv.ParseInt(masterChat, 10, 64)
	if err != nil {
		return cfg, fmt.Errorf("MASTER_REPORT_CHAT_ID: %w", err)
	}
	cfg.MasterReportChatID = id

	cfg.ReportHour, err = strconv.Atoi(envOr("REPORT_HOUR", "18"))
	if err != nil || cfg.ReportHour < 0 || cfg.ReportHour > 23 {
		return cfg, fmt.Errorf("REPORT_HOUR must be 0..23")
	}

	cfg.ReportLocation, err = time.LoadLocation(envOr("REPORT_TZ", "Europe/Kyiv"))
	if err != nil {
		return cfg, fmt.Errorf("REPORT_TZ: %w", err)
	}

	cfg.AdminTelegramIDs, err = parseIDList(os.Getenv("ADMIN_TG_IDS"))
	if err != nil {
		return cfg, fmt.Errorf("ADMIN_TG_IDS: %w", err)
	}

	return cfg, nil
}

// WebhookURL is the address Telegram posts updates to.
func (c Config) WebhookURL() string {
	return c.WebhookBase + "/webhook/" + c.WebhookSecret
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
