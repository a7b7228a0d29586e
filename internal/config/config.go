// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Login strategies accepted by login.strategy.
const (
	LoginQRCode = "qrcode"
	LoginCookie = "cookie"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Login   LoginConfig   `mapstructure:"login"`
	Browser BrowserConfig `mapstructure:"browser"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Signer  SignerConfig  `mapstructure:"signer"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoginConfig selects the login strategy and its inputs.
type LoginConfig struct {
	Strategy string `mapstructure:"strategy"`
	Cookies  string `mapstructure:"cookies"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	UserDataDir   string `mapstructure:"user_data_dir"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	Keywords     string   `mapstructure:"keywords"`
	VideoRefs    []string `mapstructure:"video_refs"`
	CreatorRefs  []string `mapstructure:"creator_refs"`
	StartPage    int      `mapstructure:"start_page"`
	MaxItems     int      `mapstructure:"max_items"`
	Concurrency  int      `mapstructure:"concurrency"`
	SleepSeconds int      `mapstructure:"sleep_seconds"`
	Media        bool     `mapstructure:"download_media"`
	PublishTime  int      `mapstructure:"publish_time"`
}

// HTTPConfig configures the outbound API client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Proxy          string `mapstructure:"proxy"`
}

// SignerConfig names the in-page signing hook the client evaluates.
type SignerConfig struct {
	Function string `mapstructure:"function"`
}

// StorageConfig sets the database path and the media directory tree.
type StorageConfig struct {
	DBPath   string `mapstructure:"db_path"`
	VideoDir string `mapstructure:"video_dir"`
	ImageDir string `mapstructure:"image_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOUYIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("login.strategy", LoginQRCode)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "browser_data/douyin")
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("crawler.start_page", 1)
	v.SetDefault("crawler.max_items", 15)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.sleep_seconds", 2)
	v.SetDefault("crawler.download_media", false)
	v.SetDefault("crawler.publish_time", 0)
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("storage.db_path", "data/douyin.db")
	v.SetDefault("storage.video_dir", "data/videos")
	v.SetDefault("storage.image_dir", "data/images")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Login.Strategy != LoginQRCode && c.Login.Strategy != LoginCookie {
		return fmt.Errorf("login.strategy must be %q or %q", LoginQRCode, LoginCookie)
	}
	if c.Login.Strategy == LoginCookie && strings.TrimSpace(c.Login.Cookies) == "" {
		return fmt.Errorf("login.cookies must be set when login.strategy is %q", LoginCookie)
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.StartPage < 1 {
		return fmt.Errorf("crawler.start_page must be >= 1")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path must be set")
	}
	return nil
}

// RequestTimeout returns the outbound client timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// PageSleep returns the courtesy delay enforced between pages and between
// detail fetches.
func (c Config) PageSleep() time.Duration {
	return time.Duration(c.Crawler.SleepSeconds) * time.Second
}

// NavTimeout returns the browser navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}
