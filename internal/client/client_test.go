package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/browser"
	"github.com/openharvest/douyin-crawler/internal/douyin"
)

type fakePage struct {
	localStorage map[string]string
	cookies      []browser.Cookie
	userAgent    string
	storageErr   error
}

func (p *fakePage) Navigate(context.Context, string) error { return nil }
func (p *fakePage) Reload(context.Context) error           { return nil }
func (p *fakePage) Evaluate(context.Context, string, any) error {
	return errors.New("not supported")
}

func (p *fakePage) LocalStorageItem(_ context.Context, key string) (string, error) {
	if p.storageErr != nil {
		return "", p.storageErr
	}
	return p.localStorage[key], nil
}

func (p *fakePage) Cookies(context.Context) ([]browser.Cookie, error) {
	return p.cookies, nil
}

func (p *fakePage) SetCookies(_ context.Context, cookies []browser.Cookie) error {
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *fakePage) UserAgent(context.Context) (string, error) {
	if p.userAgent == "" {
		return "Mozilla/5.0 test", nil
	}
	return p.userAgent, nil
}

type fakeSigner struct {
	token string
	err   error
	calls []string
}

func (s *fakeSigner) Sign(_ context.Context, endpoint, _, _ string) (string, error) {
	s.calls = append(s.calls, endpoint)
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func newTestClient(t *testing.T, host string, page *fakePage, sig *fakeSigner) *Client {
	t.Helper()
	if page.localStorage == nil {
		page.localStorage = map[string]string{msTokenKey: "token-1"}
	}
	c, err := New(Config{Host: host}, page, sig, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap(context.Background()))
	return c
}

func TestSearchByKeywordSendsWireParams(t *testing.T) {
	t.Parallel()
	var got url.Values
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, searchPath, r.URL.Path)
		got = r.URL.Query()
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write([]byte(`{"data":[{"aweme_info":{"aweme_id":"123"}}],"extra":{"logid":"log-1"}}`))
	}))
	defer srv.Close()

	sig := &fakeSigner{token: "sig"}
	c := newTestClient(t, srv.URL, &fakePage{}, sig)

	res, err := c.SearchByKeyword(context.Background(), "golang tips", 10, SearchOptions{SearchID: "prev"})
	require.NoError(t, err)
	require.NotNil(t, res.Data)
	require.Len(t, *res.Data, 1)
	require.Equal(t, "log-1", res.Extra.Logid)

	require.Equal(t, "aweme_general", got.Get("search_channel"))
	require.Equal(t, "golang tips", got.Get("keyword"))
	require.Equal(t, "tab_search", got.Get("search_source"))
	require.Equal(t, "1", got.Get("query_correct_type"))
	require.Equal(t, "0", got.Get("is_filter_search"))
	require.Equal(t, "10", got.Get("offset"))
	require.Equal(t, "10", got.Get("count"))
	require.Equal(t, "prev", got.Get("search_id"))
	require.Equal(t, "webapp", got.Get("device_platform"))
	require.Equal(t, "6383", got.Get("aid"))
	require.Equal(t, "channel_pc_web", got.Get("channel"))
	require.Equal(t, "190600", got.Get("version_code"))
	require.Equal(t, "125.0.0.0", got.Get("browser_version"))
	require.Equal(t, "token-1", got.Get("msToken"))
	require.NotEmpty(t, got.Get("webid"))

	// the general search endpoint is exempt from signing
	require.Empty(t, got.Get("a_bogus"))
	require.Empty(t, sig.calls)
	require.Contains(t, gotReferer, "/search/")
	require.Contains(t, gotReferer, "type=general")
}

func TestSearchByKeywordFilterSelected(t *testing.T) {
	t.Parallel()
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &fakePage{}, &fakeSigner{})
	_, err := c.SearchByKeyword(context.Background(), "go", 0, SearchOptions{
		Sort:        douyin.SortLatest,
		PublishTime: douyin.PublishOneWeek,
	})
	require.NoError(t, err)
	require.Equal(t, "1", got.Get("is_filter_search"))
	require.JSONEq(t, `{"sort_type":"2","publish_time":"7"}`, got.Get("filter_selected"))
}

func TestGetVideoByIDSignsAndDropsOrigin(t *testing.T) {
	t.Parallel()
	var got url.Values
	var originSeen bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, detailPath, r.URL.Path)
		got = r.URL.Query()
		_, originSeen = r.Header[http.CanonicalHeaderKey("Origin")]
		_, _ = w.Write([]byte(`{"aweme_detail":{"aweme_id":"7280854932641664319","desc":"hi"}}`))
	}))
	defer srv.Close()

	sig := &fakeSigner{token: "sig-abc"}
	c := newTestClient(t, srv.URL, &fakePage{}, sig)

	aweme, err := c.GetVideoByID(context.Background(), "7280854932641664319")
	require.NoError(t, err)
	require.Equal(t, "7280854932641664319", aweme.AwemeID)
	require.Equal(t, "7280854932641664319", got.Get("aweme_id"))
	require.Equal(t, "sig-abc", got.Get("a_bogus"))
	require.Equal(t, []string{detailPath}, sig.calls)
	require.False(t, originSeen)
}

func TestGetVideoByIDMissingDetail(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":0}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &fakePage{}, &fakeSigner{token: "sig"})
	_, err := c.GetVideoByID(context.Background(), "404404")
	require.ErrorIs(t, err, douyin.ErrMissingItem)
}

func TestSignerFailureAbortsSignedRequest(t *testing.T) {
	t.Parallel()
	var served bool
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		served = true
	}))
	defer srv.Close()

	sig := &fakeSigner{err: douyin.ErrSigningUnavailable}
	c := newTestClient(t, srv.URL, &fakePage{}, sig)

	_, err := c.GetVideoByID(context.Background(), "123")
	require.ErrorIs(t, err, douyin.ErrSigningUnavailable)
	require.False(t, served)
}

func TestClassifyBlockedResponses(t *testing.T) {
	t.Parallel()
	for _, body := range []string{"", "blocked"} {
		payload := body
		t.Run("body "+payload, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(payload))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, &fakePage{}, &fakeSigner{token: "sig"})
			_, err := c.GetVideoByID(context.Background(), "123")
			require.ErrorIs(t, err, douyin.ErrAccountBlocked)
		})
	}
}

func TestClassifyGarbageIsDataFetchError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>verify yourself</html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &fakePage{}, &fakeSigner{token: "sig"})
	_, err := c.GetVideoByID(context.Background(), "123")
	require.ErrorIs(t, err, douyin.ErrDataFetch)
	require.NotErrorIs(t, err, douyin.ErrAccountBlocked)
}

func TestGetUserInfoAndPostsParams(t *testing.T) {
	t.Parallel()
	queries := map[string]url.Values{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries[r.URL.Path] = r.URL.Query()
		switch r.URL.Path {
		case profilePath:
			_, _ = w.Write([]byte(`{"user":{"nickname":"maker","follower_count":9}}`))
		case postsPath:
			_, _ = w.Write([]byte(`{"aweme_list":[{"aweme_id":"1"}],"has_more":1,"max_cursor":1700}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &fakePage{}, &fakeSigner{token: "sig"})

	profile, err := c.GetUserInfo(context.Background(), "MS4wLjABAAAAabc")
	require.NoError(t, err)
	require.Equal(t, "maker", profile.Nickname)
	pq := queries[profilePath]
	require.Equal(t, "MS4wLjABAAAAabc", pq.Get("sec_user_id"))
	require.Equal(t, "2", pq.Get("publish_video_strategy_type"))
	require.Equal(t, "1", pq.Get("personal_center_strategy"))

	posts, err := c.GetUserPosts(context.Background(), "MS4wLjABAAAAabc", "0")
	require.NoError(t, err)
	require.Equal(t, 1, posts.HasMore)
	require.Equal(t, "1700", posts.MaxCursor.String())
	gq := queries[postsPath]
	require.Equal(t, "18", gq.Get("count"))
	require.Equal(t, "0", gq.Get("max_cursor"))
	require.Equal(t, "false", gq.Get("locate_query"))
}

func TestCheckLiveSession(t *testing.T) {
	t.Parallel()

	loggedIn := &fakePage{localStorage: map[string]string{"HasUserLogin": "1"}}
	c, err := New(Config{}, loggedIn, &fakeSigner{}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, c.CheckLiveSession(context.Background()))

	cookieOnly := &fakePage{
		localStorage: map[string]string{},
		cookies:      []browser.Cookie{{Name: "LOGIN_STATUS", Value: "1"}},
	}
	c, err = New(Config{}, cookieOnly, &fakeSigner{}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, c.CheckLiveSession(context.Background()))

	loggedOut := &fakePage{localStorage: map[string]string{}}
	c, err = New(Config{}, loggedOut, &fakeSigner{}, zap.NewNop())
	require.NoError(t, err)
	require.False(t, c.CheckLiveSession(context.Background()))
}

func TestResolveShortURL(t *testing.T) {
	t.Parallel()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "https://www.douyin.com/video/7280854932641664319")
		w.WriteHeader(http.StatusFound)
	}))
	defer redirecting.Close()

	c := newTestClient(t, redirecting.URL, &fakePage{}, &fakeSigner{})
	target := c.ResolveShortURL(context.Background(), redirecting.URL+"/abc")
	require.Equal(t, "https://www.douyin.com/video/7280854932641664319", target)

	flat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer flat.Close()
	require.Empty(t, c.ResolveShortURL(context.Background(), flat.URL+"/abc"))
}

func TestRefreshCookiesBuildsHeader(t *testing.T) {
	t.Parallel()
	page := &fakePage{
		localStorage: map[string]string{msTokenKey: "t"},
		cookies: []browser.Cookie{
			{Name: "sessionid", Value: "abc"},
			{Name: "ttwid", Value: "def"},
		},
	}
	c, err := New(Config{}, page, &fakeSigner{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.RefreshCookies(context.Background()))

	header := c.headerSet(nil)["Cookie"]
	require.Contains(t, header, "sessionid=abc")
	require.Contains(t, header, "ttwid=def")
}

func TestNewWebID(t *testing.T) {
	t.Parallel()
	id := NewWebID()
	require.Len(t, id, 19)
	for _, r := range id {
		require.True(t, r >= '0' && r <= '9', "webid must be numeric, got %q", id)
	}
	require.NotEqual(t, id, NewWebID())
}
