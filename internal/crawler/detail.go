package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/douyin"
	"github.com/openharvest/douyin-crawler/internal/metrics"
)

// runDetail resolves every ref to an aweme id, fetches the details with
// bounded concurrency and persists whatever came back.
func (o *Orchestrator) runDetail(ctx context.Context, req Request, log *zap.Logger) error {
	ids := o.resolveVideoIDs(ctx, req.VideoRefs, log)
	if len(ids) == 0 {
		log.Warn("no resolvable video refs")
		return nil
	}

	awemes, err := o.fetchDetails(ctx, ids, log)
	for _, aweme := range awemes {
		if o.state.stopRequested() {
			break
		}
		o.persist(ctx, aweme, "", req.DownloadMedia, log)
	}
	return err
}

// resolveVideoIDs turns raw refs into aweme ids, chasing short links through
// their redirect. Unresolvable refs are logged and skipped.
func (o *Orchestrator) resolveVideoIDs(ctx context.Context, refs []string, log *zap.Logger) []string {
	var ids []string
	for _, raw := range refs {
		ref, err := douyin.ResolveVideoRef(raw)
		if err != nil {
			metrics.ObserveItemError("resolve")
			log.Warn("skipping unresolvable ref", zap.String("ref", raw), zap.Error(err))
			continue
		}
		if ref.Kind == douyin.VideoRefShort {
			target := o.api.ResolveShortURL(ctx, raw)
			if target == "" {
				metrics.ObserveItemError("resolve")
				log.Warn("short link did not redirect", zap.String("ref", raw))
				continue
			}
			ref, err = douyin.ResolveVideoRef(target)
			if err != nil {
				metrics.ObserveItemError("resolve")
				log.Warn("short link target unresolvable", zap.String("target", target), zap.Error(err))
				continue
			}
		}
		if ref.AwemeID != "" {
			ids = append(ids, ref.AwemeID)
		}
	}
	return ids
}

// fetchDetails fetches aweme details concurrently, never holding more than
// cfg.Concurrency requests in flight. An account block cancels the batch.
func (o *Orchestrator) fetchDetails(ctx context.Context, ids []string, log *zap.Logger) ([]douyin.Aweme, error) {
	slots := make(chan struct{}, o.cfg.Concurrency)
	results := make([]*douyin.Aweme, len(ids))
	var blocked atomic.Bool
	var wg sync.WaitGroup

	for i, id := range ids {
		if o.state.stopRequested() || ctx.Err() != nil || blocked.Load() {
			break
		}
		slots <- struct{}{}
		wg.Add(1)
		go func(i int, id string) {
			defer func() {
				<-slots
				wg.Done()
			}()
			metrics.IncInFlight()
			defer metrics.DecInFlight()

			aweme, err := o.api.GetVideoByID(ctx, id)
			if err != nil {
				if errors.Is(err, douyin.ErrAccountBlocked) {
					blocked.Store(true)
					return
				}
				metrics.ObserveItemError("detail_fetch")
				log.Warn("detail fetch failed", zap.String("aweme_id", id), zap.Error(err))
				return
			}
			results[i] = &aweme
			metrics.ObservePage(string(ModeDetail))
			o.sleep(ctx)
		}(i, id)
	}
	wg.Wait()

	out := make([]douyin.Aweme, 0, len(results))
	for _, a := range results {
		if a != nil {
			out = append(out, *a)
		}
	}
	if blocked.Load() {
		return out, douyin.ErrAccountBlocked
	}
	return out, nil
}
