package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, LoginQRCode, cfg.Login.Strategy)
	require.Equal(t, 1, cfg.Crawler.Concurrency)
	require.Equal(t, 15, cfg.Crawler.MaxItems)
	require.Equal(t, "data/douyin.db", cfg.Storage.DBPath)
	require.Equal(t, 60*time.Second, cfg.RequestTimeout())
	require.Equal(t, 2*time.Second, cfg.PageSleep())
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 9090
login:
  strategy: cookie
  cookies: "sessionid=abc; LOGIN_STATUS=1"
crawler:
  keywords: "golang,testing"
  concurrency: 3
  sleep_seconds: 1
storage:
  db_path: /tmp/test.db
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, LoginCookie, cfg.Login.Strategy)
	require.Equal(t, "golang,testing", cfg.Crawler.Keywords)
	require.Equal(t, 3, cfg.Crawler.Concurrency)
	require.Equal(t, "/tmp/test.db", cfg.Storage.DBPath)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown strategy", func(c *Config) { c.Login.Strategy = "password" }},
		{"cookie strategy without cookies", func(c *Config) {
			c.Login.Strategy = LoginCookie
			c.Login.Cookies = "  "
		}},
		{"zero concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }},
		{"zero start page", func(c *Config) { c.Crawler.StartPage = 0 }},
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
