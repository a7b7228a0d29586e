package crawler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/client"
	"github.com/openharvest/douyin-crawler/internal/douyin"
	"github.com/openharvest/douyin-crawler/internal/metrics"
)

const searchPageSize = 10

// runSearch crawls each keyword independently. A failure on one keyword is
// contained to that keyword; only an account block stops the whole run.
func (o *Orchestrator) runSearch(ctx context.Context, req Request, log *zap.Logger) error {
	keywords := splitKeywords(req.Keywords)
	startOffset := (o.cfg.StartPage - 1) * searchPageSize

	for _, keyword := range keywords {
		if o.state.stopRequested() || ctx.Err() != nil {
			return ctx.Err()
		}
		if err := o.searchKeyword(ctx, keyword, startOffset, req, log.With(zap.String("keyword", keyword))); err != nil {
			if errors.Is(err, douyin.ErrAccountBlocked) {
				return err
			}
			log.Warn("keyword crawl ended early", zap.String("keyword", keyword), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) searchKeyword(ctx context.Context, keyword string, offset int, req Request, log *zap.Logger) error {
	saved := 0
	searchID := ""

	for saved < req.MaxItems {
		if o.state.stopRequested() || ctx.Err() != nil {
			return ctx.Err()
		}
		resp, err := o.api.SearchByKeyword(ctx, keyword, offset, client.SearchOptions{
			PublishTime: o.cfg.PublishTime,
			SearchID:    searchID,
		})
		if err != nil {
			metrics.ObserveItemError("search_page")
			return err
		}
		metrics.ObservePage(string(ModeSearch))
		if resp.Data == nil {
			// The data envelope went missing mid-run; the platform has
			// likely flagged the session for this query.
			log.Warn("search response missing data, stopping keyword", zap.Int("offset", offset))
			return nil
		}
		items := *resp.Data
		if len(items) == 0 {
			return nil
		}
		searchID = resp.Extra.Logid

		for _, item := range items {
			if saved >= req.MaxItems || o.state.stopRequested() {
				return nil
			}
			aweme, ok := item.Video()
			if !ok || aweme.AwemeID == "" {
				metrics.ObserveItemError("search_item")
				continue
			}
			o.persist(ctx, aweme, keyword, req.DownloadMedia, log)
			saved++
		}

		offset += searchPageSize
		o.sleep(ctx)
	}
	return nil
}
