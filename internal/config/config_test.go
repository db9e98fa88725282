package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAppliesDefaults(t *testing.T) {
	cfg, err := decode(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins, "only the site itself by default")
	assert.Equal(t, 15, cfg.Verification.TTLMinutes)
	assert.Equal(t, 6, cfg.Verification.CodeLength)
	assert.Equal(t, 5, cfg.Verification.MaxAttempts)
	assert.Equal(t, 90*24*time.Hour, cfg.DeviceTrust.TTL)
	assert.Equal(t, 10, cfg.MFA.BackupCodeCount)
	assert.Equal(t, "site_session", cfg.Session.CookieName)
}

func TestDecodeReadsEnvironment(t *testing.T) {
	t.Setenv("OTP_TTL_MINUTES", "30")
	t.Setenv("DEVICE_TRUST_TTL", "48h")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("SMTP_FROM", "noreply@example.com")

	v := viper.New()
	for key, env := range envBindings {
		require.NoError(t, v.BindEnv(key, env))
	}

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Verification.TTLMinutes)
	assert.Equal(t, 48*time.Hour, cfg.DeviceTrust.TTL)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "noreply@example.com", cfg.Brand.FromEmail, "brand sender falls back to SMTP_FROM")
	assert.Equal(t, "noreply@example.com", cfg.Brand.SupportEmail)
}

func TestDecodeCORSDefaultsToSiteURL(t *testing.T) {
	t.Setenv("SITE_URL", "https://app.example.com")

	v := viper.New()
	for key, env := range envBindings {
		require.NoError(t, v.BindEnv(key, env))
	}

	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
}
