package signer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openharvest/douyin-crawler/internal/browser"
	"github.com/openharvest/douyin-crawler/internal/douyin"
)

type evalPage struct {
	expr   string
	result string
	err    error
}

func (p *evalPage) Navigate(context.Context, string) error { return nil }
func (p *evalPage) Reload(context.Context) error           { return nil }

func (p *evalPage) Evaluate(_ context.Context, expr string, out any) error {
	p.expr = expr
	if p.err != nil {
		return p.err
	}
	if s, ok := out.(*string); ok {
		*s = p.result
	}
	return nil
}

func (p *evalPage) LocalStorageItem(context.Context, string) (string, error) { return "", nil }

func (p *evalPage) Cookies(context.Context) ([]browser.Cookie, error) { return nil, nil }

func (p *evalPage) SetCookies(context.Context, []browser.Cookie) error { return nil }

func (p *evalPage) UserAgent(context.Context) (string, error) { return "ua", nil }

func TestPageSignerSign(t *testing.T) {
	t.Parallel()
	page := &evalPage{result: "a-bogus-token"}
	s := NewPageSigner(page, "")

	token, err := s.Sign(context.Background(), "/aweme/v1/web/aweme/detail/", "aweme_id=1", "Mozilla/5.0")
	require.NoError(t, err)
	require.Equal(t, "a-bogus-token", token)
	require.Contains(t, page.expr, DefaultFunction)
	require.Contains(t, page.expr, `"aweme_id=1"`)
	require.Contains(t, page.expr, `"Mozilla/5.0"`)
}

func TestPageSignerCustomFunction(t *testing.T) {
	t.Parallel()
	page := &evalPage{result: "tok"}
	s := NewPageSigner(page, "window.customSign")

	_, err := s.Sign(context.Background(), "/x", "q", "ua")
	require.NoError(t, err)
	require.Contains(t, page.expr, "window.customSign(")
}

func TestPageSignerFailures(t *testing.T) {
	t.Parallel()

	broken := NewPageSigner(&evalPage{err: errors.New("page crashed")}, "")
	_, err := broken.Sign(context.Background(), "/x", "q", "ua")
	require.ErrorIs(t, err, douyin.ErrSigningUnavailable)

	empty := NewPageSigner(&evalPage{result: ""}, "")
	_, err = empty.Sign(context.Background(), "/x", "q", "ua")
	require.ErrorIs(t, err, douyin.ErrSigningUnavailable)
}
