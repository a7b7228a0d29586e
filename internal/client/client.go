// Package client implements the signed HTTP client for the platform's
// private web API: fingerprint parameter merging, signature acquisition,
// response classification and the endpoint wrappers the orchestrator calls.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/browser"
	"github.com/openharvest/douyin-crawler/internal/douyin"
	"github.com/openharvest/douyin-crawler/internal/metrics"
	"github.com/openharvest/douyin-crawler/internal/signer"
)

// API paths. The general search endpoint is the one the platform does not
// require a signature on.
const (
	searchPath  = "/aweme/v1/web/general/search/single/"
	detailPath  = "/aweme/v1/web/aweme/detail/"
	profilePath = "/aweme/v1/web/user/profile/other/"
	postsPath   = "/aweme/v1/web/aweme/post/"
)

const (
	msTokenKey      = "xmst"
	msTokenAttempts = 3
	msTokenRetryGap = time.Second

	searchPageSize = 10
	postsPageSize  = 18
)

// Config controls the outbound client.
type Config struct {
	Host    string
	Timeout time.Duration
	Proxy   string
}

// Client issues signed requests against the platform API. It reads transient
// session values (msToken, cookies) from the live browser page and holds a
// mutable header set that the session manager refreshes after login.
type Client struct {
	cfg    Config
	http   *http.Client
	page   browser.Page
	signer signer.Signer
	webID  string
	logger *zap.Logger

	mu      sync.RWMutex
	headers map[string]string
	cookies map[string]string
}

// New builds a Client bound to the given page and signer. Call Bootstrap
// before issuing requests so headers reflect the live session.
func New(cfg Config, page browser.Page, sig signer.Signer, logger *zap.Logger) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = browser.IndexURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		page:   page,
		signer: sig,
		webID:  NewWebID(),
		logger: logger,
		headers: map[string]string{
			"Content-Type": "application/json;charset=UTF-8",
		},
		cookies: map[string]string{},
	}, nil
}

// Bootstrap seeds the header set from the live page: its user agent and the
// current cookie jar.
func (c *Client) Bootstrap(ctx context.Context) error {
	ua, err := c.page.UserAgent(ctx)
	if err != nil {
		return fmt.Errorf("read page user agent: %w", err)
	}

	c.mu.Lock()
	c.headers["User-Agent"] = ua
	c.headers["Host"] = "www.douyin.com"
	c.headers["Origin"] = c.cfg.Host + "/"
	c.headers["Referer"] = c.cfg.Host + "/"
	c.mu.Unlock()

	return c.RefreshCookies(ctx)
}

// RefreshCookies re-reads the browser cookie jar into the Cookie header.
// Must be called after any login state change so signed requests carry the
// updated session.
func (c *Client) RefreshCookies(ctx context.Context) error {
	jar, err := c.page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("read cookie jar: %w", err)
	}

	pairs := make([]string, 0, len(jar))
	cookies := make(map[string]string, len(jar))
	for _, ck := range jar {
		pairs = append(pairs, ck.Name+"="+ck.Value)
		cookies[ck.Name] = ck.Value
	}

	c.mu.Lock()
	c.headers["Cookie"] = strings.Join(pairs, "; ")
	c.cookies = cookies
	c.mu.Unlock()
	return nil
}

// CheckLiveSession reports whether the page session is logged in. It probes
// localStorage first and falls back to the login-status cookie; probe errors
// degrade to false rather than failing.
func (c *Client) CheckLiveSession(ctx context.Context) bool {
	flag, err := c.page.LocalStorageItem(ctx, "HasUserLogin")
	if err != nil {
		c.logger.Warn("localStorage login probe failed", zap.Error(err))
	} else if flag == "1" {
		return true
	}

	jar, err := c.page.Cookies(ctx)
	if err != nil {
		c.logger.Warn("cookie login probe failed", zap.Error(err))
		return false
	}
	for _, ck := range jar {
		if ck.Name == "LOGIN_STATUS" {
			return ck.Value == "1"
		}
	}
	return false
}

// userAgent returns the User-Agent currently carried on requests.
func (c *Client) userAgent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers["User-Agent"]
}

// headerSet returns a copy of the base headers with extra merged in and drop
// removed. The detail endpoint rejects requests carrying an Origin header.
func (c *Client) headerSet(extra map[string]string, drop ...string) map[string]string {
	c.mu.RLock()
	merged := make(map[string]string, len(c.headers)+len(extra))
	for k, v := range c.headers {
		merged[k] = v
	}
	c.mu.RUnlock()
	for k, v := range extra {
		merged[k] = v
	}
	for _, k := range drop {
		delete(merged, k)
	}
	return merged
}

// msToken reads the short-lived token from client-side storage, retrying a
// bounded number of times before falling back to an empty value.
func (c *Client) msToken(ctx context.Context) string {
	for attempt := 1; attempt <= msTokenAttempts; attempt++ {
		token, err := c.page.LocalStorageItem(ctx, msTokenKey)
		if err == nil {
			return token
		}
		if attempt < msTokenAttempts {
			c.logger.Warn("msToken probe failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ""
			case <-time.After(msTokenRetryGap):
			}
			continue
		}
		c.logger.Error("msToken probe exhausted, using empty value", zap.Error(err))
	}
	return ""
}

// fingerprint merges the fixed device-identity block into params. The
// parameter names are part of the wire contract and must not change.
func (c *Client) fingerprint(ctx context.Context, params url.Values) {
	params.Set("device_platform", "webapp")
	params.Set("aid", "6383")
	params.Set("channel", "channel_pc_web")
	params.Set("version_code", "190600")
	params.Set("version_name", "19.6.0")
	params.Set("pc_client_type", "1")
	params.Set("cookie_enabled", "true")
	params.Set("browser_language", "zh-CN")
	params.Set("browser_platform", "MacIntel")
	params.Set("browser_name", "Chrome")
	params.Set("browser_version", "125.0.0.0")
	params.Set("platform", "PC")
	params.Set("webid", c.webID)
	params.Set("msToken", c.msToken(ctx))
}

// get issues a signed GET and decodes the classified response body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, headers map[string]string, out any) error {
	c.fingerprint(ctx, params)

	if path != searchPath {
		token, err := c.signer.Sign(ctx, path, params.Encode(), c.userAgent())
		if err != nil {
			return err
		}
		params.Set("a_bogus", token)
	}

	body, err := c.do(ctx, http.MethodGet, path, params, nil, headers)
	if err != nil {
		return err
	}
	return c.classify(path, body, out)
}

// post issues a signed POST with a form body and decodes the response.
func (c *Client) post(ctx context.Context, path string, form url.Values, headers map[string]string, out any) error {
	c.fingerprint(ctx, form)

	if path != searchPath {
		token, err := c.signer.Sign(ctx, path, form.Encode(), c.userAgent())
		if err != nil {
			return err
		}
		form.Set("a_bogus", token)
	}

	body, err := c.do(ctx, http.MethodPost, path, nil, form, headers)
	if err != nil {
		return err
	}
	return c.classify(path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, headers map[string]string) ([]byte, error) {
	endpoint := c.cfg.Host + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if len(form) > 0 {
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request %s: %v", douyin.ErrDataFetch, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", douyin.ErrDataFetch, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read side

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body %s: %v", douyin.ErrDataFetch, path, err)
	}
	return body, nil
}

// classify maps the raw body to the error taxonomy: an empty body or the
// literal "blocked" is a terminal account block; anything unparseable is a
// recoverable fetch error. Parseable bodies pass through uninterpreted.
func (c *Client) classify(path string, body []byte, out any) error {
	text := string(body)
	if text == "" || text == "blocked" {
		metrics.ObserveBlocked()
		c.logger.Error("blocked response", zap.String("path", path), zap.String("body", text))
		return douyin.ErrAccountBlocked
	}
	if err := json.Unmarshal(body, out); err != nil {
		snippet := text
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fmt.Errorf("%w: decode %s: %v: %s", douyin.ErrDataFetch, path, err, snippet)
	}
	return nil
}

// SearchOptions tune a keyword search request.
type SearchOptions struct {
	Channel     douyin.SearchChannel
	Sort        douyin.SearchSort
	PublishTime douyin.PublishTime
	SearchID    string
}

// SearchByKeyword fetches one page of keyword search results. The platform
// issues a search session id on the first page; callers echo it back via
// SearchOptions.SearchID on subsequent pages of the same keyword.
func (c *Client) SearchByKeyword(ctx context.Context, keyword string, offset int, opts SearchOptions) (douyin.SearchResponse, error) {
	channel := opts.Channel
	if channel == "" {
		channel = douyin.SearchChannelGeneral
	}

	params := url.Values{}
	params.Set("search_channel", string(channel))
	params.Set("enable_history", "1")
	params.Set("keyword", keyword)
	params.Set("search_source", "tab_search")
	params.Set("query_correct_type", "1")
	params.Set("is_filter_search", "0")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("count", strconv.Itoa(searchPageSize))
	params.Set("search_id", opts.SearchID)

	if opts.Sort != douyin.SortGeneral || opts.PublishTime != douyin.PublishUnlimited {
		filter, err := json.Marshal(map[string]string{
			"sort_type":    strconv.Itoa(int(opts.Sort)),
			"publish_time": strconv.Itoa(int(opts.PublishTime)),
		})
		if err != nil {
			return douyin.SearchResponse{}, fmt.Errorf("marshal search filter: %w", err)
		}
		params.Set("filter_selected", string(filter))
		params.Set("is_filter_search", "1")
	}

	referer := c.cfg.Host + "/search/" + url.PathEscape(keyword) + "?type=general"
	headers := c.headerSet(map[string]string{"Referer": referer})

	var res douyin.SearchResponse
	if err := c.get(ctx, searchPath, params, headers, &res); err != nil {
		return douyin.SearchResponse{}, err
	}
	return res, nil
}

// GetVideoByID fetches the detail payload for one video id.
func (c *Client) GetVideoByID(ctx context.Context, awemeID string) (douyin.Aweme, error) {
	params := url.Values{}
	params.Set("aweme_id", awemeID)

	var res douyin.DetailResponse
	if err := c.get(ctx, detailPath, params, c.headerSet(nil, "Origin"), &res); err != nil {
		return douyin.Aweme{}, err
	}
	if res.AwemeDetail == nil || res.AwemeDetail.AwemeID == "" {
		return douyin.Aweme{}, fmt.Errorf("%w: %s", douyin.ErrMissingItem, awemeID)
	}
	return *res.AwemeDetail, nil
}

// GetUserInfo fetches a creator profile.
func (c *Client) GetUserInfo(ctx context.Context, secUserID string) (douyin.UserProfile, error) {
	params := url.Values{}
	params.Set("sec_user_id", secUserID)
	params.Set("publish_video_strategy_type", "2")
	params.Set("personal_center_strategy", "1")

	var res douyin.ProfileResponse
	if err := c.get(ctx, profilePath, params, c.headerSet(nil), &res); err != nil {
		return douyin.UserProfile{}, err
	}
	return res.User, nil
}

// GetUserPosts fetches one page of a creator's post listing. maxCursor is
// the opaque server-issued token, empty on the first page.
func (c *Client) GetUserPosts(ctx context.Context, secUserID, maxCursor string) (douyin.PostsResponse, error) {
	params := url.Values{}
	params.Set("sec_user_id", secUserID)
	params.Set("count", strconv.Itoa(postsPageSize))
	params.Set("max_cursor", maxCursor)
	params.Set("locate_query", "false")
	params.Set("publish_video_strategy_type", "2")

	var res douyin.PostsResponse
	if err := c.get(ctx, postsPath, params, c.headerSet(nil), &res); err != nil {
		return douyin.PostsResponse{}, err
	}
	return res, nil
}

// ResolveShortURL follows a shortener link by one hop with redirects
// disabled and returns the Location target. Any non-redirect status or
// transport error yields "", which callers treat as "skip this item".
func (c *Client) ResolveShortURL(ctx context.Context, shortURL string) string {
	redirectless := &http.Client{
		Timeout:   10 * time.Second,
		Transport: c.http.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		c.logger.Warn("short url request build failed", zap.String("url", shortURL), zap.Error(err))
		return ""
	}

	resp, err := redirectless.Do(req)
	if err != nil {
		c.logger.Warn("short url resolution failed", zap.String("url", shortURL), zap.Error(err))
		return ""
	}
	defer resp.Body.Close() //nolint:errcheck // discarded

	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		c.logger.Warn("short url did not redirect",
			zap.String("url", shortURL),
			zap.Int("status", resp.StatusCode),
		)
		return ""
	}
	location := resp.Header.Get("Location")
	c.logger.Info("short url resolved", zap.String("url", shortURL), zap.String("target", location))
	return location
}
