// Package browser owns the headless Chrome session the crawler piggybacks
// on. The platform keeps per-session state (msToken, login flags, cookies)
// in the page, so the API client and session manager read it through here.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// IndexURL is the page the session is anchored to.
const IndexURL = "https://www.douyin.com"

// Cookie is a browser cookie in the subset of fields the crawler cares about.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Page is the surface the client, session manager and signer consume. Tests
// substitute fakes; the only production implementation is Browser.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Evaluate(ctx context.Context, expr string, out any) error
	LocalStorageItem(ctx context.Context, key string) (string, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	UserAgent(ctx context.Context) (string, error)
}

// Config controls the browser launch.
type Config struct {
	Headless    bool
	UserDataDir string
	NavTimeout  time.Duration
}

// Browser wraps a chromedp allocator and a single page context. One crawl
// session owns one Browser; it is not safe for concurrent crawls.
type Browser struct {
	cfg         Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	pageCtx     context.Context
	pageCancel  context.CancelFunc
}

// New launches Chrome and navigates the page to the platform index so the
// client-side storage the crawler reads is populated.
func New(ctx context.Context, cfg Config) (*Browser, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	pageCtx, pageCancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		pageCtx:     pageCtx,
		pageCancel:  pageCancel,
	}
	if err := b.Navigate(ctx, IndexURL); err != nil {
		b.Close()
		return nil, fmt.Errorf("open index page: %w", err)
	}
	return b, nil
}

// Close tears down the page and the browser process.
func (b *Browser) Close() {
	b.pageCancel()
	b.allocCancel()
}

// run executes actions against the page with the navigation timeout applied.
// The caller ctx is only consulted for early cancellation; chromedp actions
// must run on the page's own context to target the right tab.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("browser run: %w", err)
	}
	runCtx, cancel := context.WithTimeout(b.pageCtx, b.cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Navigate loads url in the page and waits for the body to be ready.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Reload refreshes the page, picking up freshly injected cookies.
func (b *Browser) Reload(ctx context.Context) error {
	return b.run(ctx, chromedp.Reload())
}

// Evaluate runs a JavaScript expression in the page and unmarshals the
// result into out. Pass nil to discard the result.
func (b *Browser) Evaluate(ctx context.Context, expr string, out any) error {
	return b.run(ctx, chromedp.Evaluate(expr, out))
}

// LocalStorageItem reads one localStorage key, "" when absent.
func (b *Browser) LocalStorageItem(ctx context.Context, key string) (string, error) {
	var value string
	expr := fmt.Sprintf(`window.localStorage.getItem(%q) || ""`, key)
	if err := b.Evaluate(ctx, expr, &value); err != nil {
		return "", err
	}
	return value, nil
}

// Cookies returns the browser's cookie jar.
func (b *Browser) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := b.run(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		raw, err := storage.GetCookies().Do(cctx)
		if err != nil {
			return fmt.Errorf("get cookies: %w", err)
		}
		cookies = make([]Cookie, 0, len(raw))
		for _, c := range raw {
			cookies = append(cookies, Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

// SetCookies injects cookies into the browser session.
func (b *Browser) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &network.CookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   path,
		})
	}
	return b.run(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		if err := storage.SetCookies(params).Do(cctx); err != nil {
			return fmt.Errorf("set cookies: %w", err)
		}
		return nil
	}))
}

// UserAgent reports the user agent the page presents, so outbound API calls
// match the browser fingerprint.
func (b *Browser) UserAgent(ctx context.Context) (string, error) {
	var ua string
	if err := b.Evaluate(ctx, "navigator.userAgent", &ua); err != nil {
		return "", err
	}
	return ua, nil
}
