package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/douyin"
	"github.com/openharvest/douyin-crawler/internal/metrics"
	"github.com/openharvest/douyin-crawler/internal/store"
)

// downloadMedia pulls the media for one aweme. Image posts save every frame
// under an indexed stem; everything else saves the playable video. A broken
// download is logged and skipped, it never fails the crawl.
func (o *Orchestrator) downloadMedia(ctx context.Context, aweme douyin.Aweme, log *zap.Logger) {
	if len(aweme.Images) > 0 {
		for i, img := range aweme.Images {
			if len(img.URLList) == 0 {
				continue
			}
			data := o.media.Download(ctx, img.URLList[0])
			if data == nil {
				metrics.ObserveItemError("media_download")
				log.Warn("image download failed", zap.String("aweme_id", aweme.AwemeID), zap.Int("index", i))
				continue
			}
			stem := fmt.Sprintf("%s_%d", aweme.AwemeID, i)
			if o.store.SaveMediaFile(ctx, aweme.AwemeID, stem, data, store.MediaImage) != "" {
				metrics.ObserveMediaBytes("image", len(data))
			}
			jitter(ctx)
		}
		return
	}

	playURL := aweme.PlayURL()
	if playURL == "" {
		return
	}
	data := o.media.Download(ctx, playURL)
	if data == nil {
		metrics.ObserveItemError("media_download")
		log.Warn("video download failed", zap.String("aweme_id", aweme.AwemeID))
		return
	}
	if o.store.SaveMediaFile(ctx, aweme.AwemeID, aweme.AwemeID, data, store.MediaVideo) != "" {
		metrics.ObserveMediaBytes("video", len(data))
	}
}
