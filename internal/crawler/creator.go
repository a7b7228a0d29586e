package crawler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/douyin"
	"github.com/openharvest/douyin-crawler/internal/metrics"
)

// runCreator crawls each creator's profile and post feed. A failure on one
// creator is contained to that creator; only an account block aborts the run.
func (o *Orchestrator) runCreator(ctx context.Context, req Request, log *zap.Logger) error {
	for _, raw := range req.CreatorRefs {
		if o.state.stopRequested() || ctx.Err() != nil {
			return ctx.Err()
		}
		ref, err := douyin.ResolveCreatorRef(raw)
		if err != nil {
			metrics.ObserveItemError("resolve")
			log.Warn("skipping unresolvable creator ref", zap.String("ref", raw), zap.Error(err))
			continue
		}
		if err := o.crawlCreator(ctx, ref.SecUserID, req, log.With(zap.String("sec_user_id", ref.SecUserID))); err != nil {
			if errors.Is(err, douyin.ErrAccountBlocked) {
				return err
			}
			log.Warn("creator crawl ended early", zap.String("sec_user_id", ref.SecUserID), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) crawlCreator(ctx context.Context, secUserID string, req Request, log *zap.Logger) error {
	profile, err := o.api.GetUserInfo(ctx, secUserID)
	if err != nil {
		if errors.Is(err, douyin.ErrAccountBlocked) {
			return err
		}
		// A missing profile does not block the post feed.
		metrics.ObserveItemError("profile_fetch")
		log.Warn("profile fetch failed", zap.Error(err))
	} else if o.store.UpsertCreator(ctx, douyin.RecordFromProfile(secUserID, profile)) {
		metrics.ObserveItemSaved("creator")
	}

	saved := 0
	cursor := "0"

	for saved < req.MaxItems {
		if o.state.stopRequested() || ctx.Err() != nil {
			return ctx.Err()
		}
		resp, err := o.api.GetUserPosts(ctx, secUserID, cursor)
		if err != nil {
			metrics.ObserveItemError("posts_page")
			return err
		}
		metrics.ObservePage(string(ModeCreator))
		if len(resp.AwemeList) == 0 {
			return nil
		}

		ids := make([]string, 0, len(resp.AwemeList))
		for _, a := range resp.AwemeList {
			if saved+len(ids) >= req.MaxItems {
				break
			}
			if a.AwemeID != "" {
				ids = append(ids, a.AwemeID)
			}
		}
		awemes, err := o.fetchDetails(ctx, ids, log)
		for _, aweme := range awemes {
			if o.state.stopRequested() {
				return nil
			}
			o.persist(ctx, aweme, "", req.DownloadMedia, log)
			saved++
		}
		if err != nil {
			return err
		}

		if resp.HasMore != 1 {
			return nil
		}
		cursor = resp.MaxCursor.String()
		o.sleep(ctx)
	}
	return nil
}
