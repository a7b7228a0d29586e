// Package session establishes and validates the logged-in platform session
// the signed client rides on.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/browser"
	"github.com/openharvest/douyin-crawler/internal/douyin"
)

const (
	loginFlagKey   = "HasUserLogin"
	cookieDomain   = ".douyin.com"
	qrPollInterval = time.Second
	// qrTimeout bounds how long an operator has to scan the QR code.
	qrTimeout = 120 * time.Second
)

// Strategy selects how a session is established.
type Strategy string

// Supported login strategies.
const (
	StrategyQRCode Strategy = "qrcode"
	StrategyCookie Strategy = "cookie"
)

// CookieRefresher is the part of the API client the manager touches after a
// login state change.
type CookieRefresher interface {
	CheckLiveSession(ctx context.Context) bool
	RefreshCookies(ctx context.Context) error
}

// Manager drives the configured login strategy against the browser page.
type Manager struct {
	page     browser.Page
	client   CookieRefresher
	strategy Strategy
	cookies  string
	logger   *zap.Logger
}

// New builds a Manager. cookies is only consulted by the cookie strategy.
func New(page browser.Page, client CookieRefresher, strategy Strategy, cookies string, logger *zap.Logger) *Manager {
	return &Manager{
		page:     page,
		client:   client,
		strategy: strategy,
		cookies:  cookies,
		logger:   logger,
	}
}

// Ensure makes sure the session is live, running the login strategy when the
// liveness probe says it is not, and refreshes the client's cookie jar after
// any login so signed requests carry the new session.
func (m *Manager) Ensure(ctx context.Context) error {
	if m.client.CheckLiveSession(ctx) {
		m.logger.Info("session already live")
		return nil
	}

	switch m.strategy {
	case StrategyQRCode:
		if err := m.loginByQRCode(ctx); err != nil {
			return err
		}
	case StrategyCookie:
		if err := m.loginByCookies(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown login strategy %q", douyin.ErrLoginFailed, m.strategy)
	}

	if err := m.client.RefreshCookies(ctx); err != nil {
		return fmt.Errorf("%w: refresh cookies after login: %v", douyin.ErrLoginFailed, err)
	}
	return nil
}

// loginByQRCode waits for the operator to scan the on-page QR code, polling
// the login flag until it flips or the timeout elapses.
func (m *Manager) loginByQRCode(ctx context.Context) error {
	m.logger.Info("waiting for QR code scan", zap.Duration("timeout", qrTimeout))

	deadline := time.NewTimer(qrTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(qrPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", douyin.ErrLoginFailed, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("%w: QR login timed out after %s", douyin.ErrLoginFailed, qrTimeout)
		case <-ticker.C:
			flag, err := m.page.LocalStorageItem(ctx, loginFlagKey)
			if err != nil {
				return fmt.Errorf("%w: login flag probe: %v", douyin.ErrLoginFailed, err)
			}
			if flag == "1" {
				m.logger.Info("QR login succeeded")
				return nil
			}
		}
	}
}

// loginByCookies injects a pre-supplied cookie string into the browser and
// reloads the page. The cookie is trusted; no further verification happens.
func (m *Manager) loginByCookies(ctx context.Context) error {
	if strings.TrimSpace(m.cookies) == "" {
		return fmt.Errorf("%w: cookie strategy requires a cookie string", douyin.ErrLoginFailed)
	}

	cookies := ParseCookieString(m.cookies)
	if len(cookies) == 0 {
		return fmt.Errorf("%w: no name=value pairs in cookie string", douyin.ErrLoginFailed)
	}

	if err := m.page.SetCookies(ctx, cookies); err != nil {
		return fmt.Errorf("%w: inject cookies: %v", douyin.ErrLoginFailed, err)
	}
	if err := m.page.Reload(ctx); err != nil {
		return fmt.Errorf("%w: reload after cookie injection: %v", douyin.ErrLoginFailed, err)
	}

	m.logger.Info("cookie login applied", zap.Int("cookies", len(cookies)))
	return nil
}

// ParseCookieString splits a "name=value; name=value" string into cookies
// scoped to the platform domain. Malformed fragments are dropped.
func ParseCookieString(raw string) []browser.Cookie {
	var cookies []browser.Cookie
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		name, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		cookies = append(cookies, browser.Cookie{
			Name:   strings.TrimSpace(name),
			Value:  strings.TrimSpace(value),
			Domain: cookieDomain,
			Path:   "/",
		})
	}
	return cookies
}
