package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TG_BOT_TOKEN", "123:abc")
	t.Setenv("WEBHOOK_BASE", "https://bot.example.com/")
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("BITRIX_WEBHOOK_BASE", "https://portal.bitrix24.eu/rest/1/token/")
	t.Setenv("DATABASE_URL", "postgres://localhost/brigade")
	t.Setenv("MASTER_REPORT_CHAT_ID", "-100500")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("REPORT_HOUR", "")
	t.Setenv("REPORT_TZ", "")
	t.Setenv("RUN_WORKER_IN_APP", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 18, cfg.ReportHour)
	assert.Equal(t, "Europe/Kyiv", cfg.ReportLocation.String())
	assert.Equal(t, int64(-100500), cfg.MasterReportChatID)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.RunWorkerInApp)
	assert.Equal(t, "https://portal.bitrix24.eu/rest/1/token", cfg.BitrixWebhookBase)
	assert.Equal(t, "https://bot.example.com/webhook/s3cret", cfg.WebhookURL())
}

func TestLoadReportsAllMissing(t *testing.T) {
	setRequired(t)
	t.Setenv("TG_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TG_BOT_TOKEN")
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRejectsBadHour(t *testing.T) {
	setRequired(t)
	t.Setenv("REPORT_HOUR", "25")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadAdminIDs(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_TG_IDS", " 10, 20 ,")
	t.Setenv("RUN_WORKER_IN_APP", "Yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, cfg.AdminTelegramIDs)
	assert.True(t, cfg.RunWorkerInApp)

	t.Setenv("ADMIN_TG_IDS", "ten")
	_, err = Load()
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "y"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"", "0", "no", "off"} {
		assert.False(t, parseBool(v), v)
	}
}
