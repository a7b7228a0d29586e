// Package signer models the platform's request-signing capability. The
// signing algorithm is opaque; the crawler only consumes its input/output
// contract and treats failures as a capability outage.
package signer

import (
	"context"
	"fmt"

	"github.com/openharvest/douyin-crawler/internal/browser"
	"github.com/openharvest/douyin-crawler/internal/douyin"
)

// Signer produces the per-request signature token the platform expects on
// signed endpoints.
type Signer interface {
	Sign(ctx context.Context, endpoint, query, userAgent string) (string, error)
}

// DefaultFunction is the in-page hook evaluated when none is configured.
const DefaultFunction = "window.byted_acrawler.sign"

// PageSigner signs requests by calling a JavaScript hook inside the live
// browser page, where the platform's own signing code is loaded.
type PageSigner struct {
	page     browser.Page
	function string
}

// NewPageSigner builds a PageSigner. function is the fully qualified name of
// the in-page hook; empty selects DefaultFunction.
func NewPageSigner(page browser.Page, function string) *PageSigner {
	if function == "" {
		function = DefaultFunction
	}
	return &PageSigner{page: page, function: function}
}

// Sign evaluates the hook with the encoded query and the user agent. Any
// evaluation failure or empty token surfaces as ErrSigningUnavailable; the
// caller decides whether the endpoint tolerates an unsigned request.
func (s *PageSigner) Sign(ctx context.Context, endpoint, query, userAgent string) (string, error) {
	expr := fmt.Sprintf("%s(%q, %q)", s.function, query, userAgent)
	var token string
	if err := s.page.Evaluate(ctx, expr, &token); err != nil {
		return "", fmt.Errorf("%w: %s: %v", douyin.ErrSigningUnavailable, endpoint, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: %s: empty token", douyin.ErrSigningUnavailable, endpoint)
	}
	return token, nil
}
