package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultMediaUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// MediaConfig controls the media downloader.
type MediaConfig struct {
	UserAgent string
	Referer   string
	Timeout   time.Duration
	Proxy     string
	// PerHostRPS caps download frequency per media host. Zero disables
	// pacing.
	PerHostRPS float64
}

// MediaFetcher downloads video and image assets. CDN hosts differ from the
// API host, so it runs its own collector with fixed identity headers and
// per-host pacing, independent of the signed client.
type MediaFetcher struct {
	cfg       MediaConfig
	collector *colly.Collector
	logger    *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewMediaFetcher builds a MediaFetcher.
func NewMediaFetcher(cfg MediaConfig, logger *zap.Logger) (*MediaFetcher, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultMediaUserAgent
	}
	if cfg.Referer == "" {
		cfg.Referer = "https://www.douyin.com/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	c.UserAgent = cfg.UserAgent
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.Proxy != "" {
		if err := c.SetProxy(cfg.Proxy); err != nil {
			return nil, err
		}
	}

	return &MediaFetcher{
		cfg:       cfg,
		collector: c,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
	}, nil
}

// Download fetches one asset, following redirects. Returns nil on any
// failure; media downloads are best-effort and never abort a crawl.
func (f *MediaFetcher) Download(ctx context.Context, assetURL string) []byte {
	if err := f.pace(ctx, assetURL); err != nil {
		return nil
	}

	var body []byte
	collector := f.collector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", f.cfg.Referer)
	})
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			body = r.Body
			return
		}
		f.logger.Warn("media download rejected",
			zap.String("url", assetURL),
			zap.Int("status", r.StatusCode),
		)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		f.logger.Warn("media download failed", zap.String("url", assetURL), zap.Error(err))
	})

	if err := collector.Visit(assetURL); err != nil {
		f.logger.Warn("media visit failed", zap.String("url", assetURL), zap.Error(err))
		return nil
	}
	return body
}

// pace waits on the per-host limiter for the asset's host.
func (f *MediaFetcher) pace(ctx context.Context, assetURL string) error {
	if f.cfg.PerHostRPS <= 0 {
		return ctx.Err()
	}
	host := "unknown"
	if u, err := url.Parse(assetURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.cfg.PerHostRPS), 1)
		f.limiters[host] = limiter
	}
	f.mu.Unlock()

	return limiter.Wait(ctx)
}
