package douyin

import "errors"

// Error taxonomy shared across the client, session manager and orchestrator.
// Callers classify with errors.Is; wrapping preserves endpoint context.
var (
	// ErrAccountBlocked covers the empty or literal "blocked" response body.
	// Terminal for the whole crawl session.
	ErrAccountBlocked = errors.New("douyin: account blocked")

	// ErrDataFetch marks a transient remote failure. The item or page that
	// produced it is abandoned; siblings continue.
	ErrDataFetch = errors.New("douyin: data fetch failed")

	// ErrMissingItem means the platform answered but the requested item does
	// not exist. Handled like ErrDataFetch.
	ErrMissingItem = errors.New("douyin: item not found")

	// ErrLoginFailed aborts a crawl before any fetching starts.
	ErrLoginFailed = errors.New("douyin: login failed")

	// ErrUnresolvableID means a user-supplied reference could not be parsed.
	ErrUnresolvableID = errors.New("douyin: unresolvable identifier")

	// ErrSigningUnavailable means the external signer could not produce a
	// token for an endpoint that requires one.
	ErrSigningUnavailable = errors.New("douyin: signer unavailable")

	// ErrCrawlInProgress rejects a second concurrent crawl.
	ErrCrawlInProgress = errors.New("douyin: a crawl is already running")
)
