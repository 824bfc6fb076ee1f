package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithMemoryBackend(t *testing.T) {
	path := writeConfig(t, "engine:\n  backend: memory\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "farmd", cfg.App.Name)
	require.Equal(t, BackendMemory, cfg.Engine.Backend)
	require.Equal(t, 3, cfg.Engine.MaxFunders)
	require.Equal(t, 5*time.Minute, cfg.Monitor.Interval)
	require.Equal(t, 24*time.Hour, cfg.Monitor.AlertLeadTime)
	require.Equal(t, ":8080", cfg.Server.ListenAddr)
	require.Equal(t, []string{"telegram"}, cfg.Alerting.Channels)
	require.Equal(t, 100000, cfg.ResolveMaxPoints(0))
	require.Equal(t, 7, cfg.ResolveMaxPoints(7))
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "engine:\n  backend: memory\n")
	t.Setenv("FARMD_MONITOR_INTERVAL", "90s")
	t.Setenv("FARMD_SERVER_LISTEN_ADDR", "127.0.0.1:9000")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, cfg.Monitor.Interval)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	path := writeConfig(t, "app:\n  name: farmd\n")

	_, err := Load(path)
	require.ErrorContains(t, err, "database.dsn")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Engine:  EngineConfig{Backend: BackendMemory, MaxFunders: 3},
			Server:  ServerConfig{ListenAddr: ":0", EventPageSize: 10},
			Monitor: MonitorConfig{Interval: time.Minute},
			Export:  ExportConfig{MaxDataPoints: 10},
		}
	}

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"unknown backend": {func(c *Config) { c.Engine.Backend = "sqlite" }, "engine.backend"},
		"zero funders":    {func(c *Config) { c.Engine.MaxFunders = 0 }, "engine.max_funders"},
		"bad decimals":    {func(c *Config) { c.App.AmountDecimals = 40 }, "app.amount_decimals"},
		"zero interval":   {func(c *Config) { c.Monitor.Interval = 0 }, "monitor.interval"},
		"negative lead":   {func(c *Config) { c.Monitor.AlertLeadTime = -time.Second }, "monitor.alert_lead_time"},
		"no listen addr":  {func(c *Config) { c.Server.ListenAddr = "" }, "server.listen_addr"},
		"telegram token":  {func(c *Config) { c.Alerting.Telegram.Enabled = true }, "bot_token"},
		"telegram chat": {func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.BotToken = "t"
		}, "chat_id"},
	}

	ok := base()
	require.NoError(t, ok.Validate())

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
