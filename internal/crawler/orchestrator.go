package crawler

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/client"
	"github.com/openharvest/douyin-crawler/internal/douyin"
	"github.com/openharvest/douyin-crawler/internal/metrics"
	"github.com/openharvest/douyin-crawler/internal/store"
)

// API is the slice of the platform client the orchestrator consumes.
type API interface {
	SearchByKeyword(ctx context.Context, keyword string, offset int, opts client.SearchOptions) (douyin.SearchResponse, error)
	GetVideoByID(ctx context.Context, awemeID string) (douyin.Aweme, error)
	GetUserInfo(ctx context.Context, secUserID string) (douyin.UserProfile, error)
	GetUserPosts(ctx context.Context, secUserID, maxCursor string) (douyin.PostsResponse, error)
	ResolveShortURL(ctx context.Context, shortURL string) string
}

// Store persists crawl results and media files.
type Store interface {
	UpsertVideo(ctx context.Context, rec douyin.VideoRecord) bool
	UpsertCreator(ctx context.Context, rec douyin.CreatorRecord) bool
	SaveMediaFile(ctx context.Context, owningID, stem string, data []byte, kind store.MediaKind) string
}

// MediaDownloader fetches media bytes over plain HTTP.
type MediaDownloader interface {
	Download(ctx context.Context, rawURL string) []byte
}

// SessionEnsurer brings the browser session to a logged-in state.
type SessionEnsurer interface {
	Ensure(ctx context.Context) error
}

// Config holds the crawl tuning knobs.
type Config struct {
	StartPage       int
	Concurrency     int
	Sleep           time.Duration
	PublishTime     douyin.PublishTime
	DefaultMaxItems int
}

// Orchestrator drives crawl runs. At most one run is active at a time;
// Start on a busy orchestrator fails fast.
type Orchestrator struct {
	cfg     Config
	api     API
	store   Store
	media   MediaDownloader
	session SessionEnsurer
	logger  *zap.Logger

	// baseCtx outlives any single admin request, so a crawl started over
	// HTTP keeps running after the request returns.
	baseCtx context.Context
	state   sessionState
}

// New builds an orchestrator. ctx bounds the lifetime of every crawl it
// starts, independent of the contexts Start is called with.
func New(ctx context.Context, cfg Config, api API, st Store, media MediaDownloader, session SessionEnsurer, logger *zap.Logger) *Orchestrator {
	if cfg.StartPage < 1 {
		cfg.StartPage = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DefaultMaxItems < 1 {
		cfg.DefaultMaxItems = 15
	}
	return &Orchestrator{
		cfg:     cfg,
		api:     api,
		store:   st,
		media:   media,
		session: session,
		logger:  logger,
		baseCtx: ctx,
	}
}

// Start validates the request, claims the session and launches the crawl in
// the background. Returns douyin.ErrCrawlInProgress while a prior crawl is
// still active.
func (o *Orchestrator) Start(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.MaxItems <= 0 {
		req.MaxItems = o.cfg.DefaultMaxItems
	}
	if !o.state.begin(req.Mode) {
		return douyin.ErrCrawlInProgress
	}
	go o.run(req)
	return nil
}

// Stop asks the active crawl to wind down. It returns immediately; the run
// stops at its next page or item boundary.
func (o *Orchestrator) Stop() {
	o.state.requestStop()
}

// Snapshot reports the current session status.
func (o *Orchestrator) Snapshot() Status {
	return o.state.snapshot()
}

func (o *Orchestrator) run(req Request) {
	outcome := "ok"
	defer func() {
		o.state.finish()
		metrics.ObserveRun(string(req.Mode), outcome)
	}()

	ctx := o.baseCtx
	log := o.logger.With(
		zap.String("mode", string(req.Mode)),
		zap.String("run_id", o.state.snapshot().RunID),
	)
	log.Info("crawl started", zap.Int("max_items", req.MaxItems))

	if err := o.session.Ensure(ctx); err != nil {
		log.Error("session not available", zap.Error(err))
		outcome = "login_failed"
		return
	}

	var err error
	switch req.Mode {
	case ModeSearch:
		err = o.runSearch(ctx, req, log)
	case ModeDetail:
		err = o.runDetail(ctx, req, log)
	case ModeCreator:
		err = o.runCreator(ctx, req, log)
	}
	switch {
	case errors.Is(err, douyin.ErrAccountBlocked):
		outcome = "blocked"
		log.Warn("crawl aborted, account blocked")
	case err != nil:
		outcome = "error"
		log.Error("crawl failed", zap.Error(err))
	default:
		log.Info("crawl finished", zap.Int("saved", o.state.snapshot().Saved))
	}
}

// persist stores a record, bumps counters and optionally pulls media.
func (o *Orchestrator) persist(ctx context.Context, aweme douyin.Aweme, keyword string, downloadMedia bool, log *zap.Logger) {
	rec := douyin.RecordFromAweme(aweme, keyword)
	if !o.store.UpsertVideo(ctx, rec) {
		metrics.ObserveItemError("persist")
		return
	}
	o.state.addSaved(1)
	metrics.ObserveItemSaved("video")
	if downloadMedia {
		o.downloadMedia(ctx, aweme, log)
	}
}

func (o *Orchestrator) sleep(ctx context.Context) {
	if o.cfg.Sleep <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(o.cfg.Sleep):
	}
}

// jitter pauses for a sub-second random interval between media fetches.
func jitter(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(rand.Float64() * float64(time.Second))):
	}
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
