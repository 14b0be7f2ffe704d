package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

// 出品時に記録する分析イベント種別
const (
	EventListingPosted = "listing_posted"
	EventListingFailed = "listing_failed"
)

// PublishHandler はlisting_publishジョブを実行する。
// scheduled（再試行時はfailed）の出品をpostingにしてPublisherへ送信し、
// 結果に応じてactiveまたはfailedへ遷移させる。
// 同一プラットフォームへの送信はrate_limits.interval_minutesの間隔に制限する。
type PublishHandler struct {
	listings  repository.ListingRepository
	items     repository.ItemRepository
	images    repository.ImageRepository
	platforms repository.PlatformRepository
	analytics repository.AnalyticsRepository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// NewPublishHandler はPublishHandlerの新しいインスタンスを生成する。
func NewPublishHandler(
	listings repository.ListingRepository,
	items repository.ItemRepository,
	images repository.ImageRepository,
	platforms repository.PlatformRepository,
	analytics repository.AnalyticsRepository,
	publisher Publisher,
	logger *slog.Logger,
) *PublishHandler {
	return &PublishHandler{
		listings:  listings,
		items:     items,
		images:    images,
		platforms: platforms,
		analytics: analytics,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		limiters:  make(map[int64]*rate.Limiter),
	}
}

// Handle はHandlerを実装する。
func (h *PublishHandler) Handle(ctx context.Context, job *model.ScheduledJob) error {
	if job.ListingID == nil {
		return model.NewValidationError("listing_publish job has no listing", "listingId")
	}
	listingID := *job.ListingID

	listing, err := h.listings.FindByID(ctx, listingID)
	if err != nil {
		return model.NewDatabaseError("Failed to load listing", err)
	}
	if listing == nil {
		return model.NewNotFoundError("Listing")
	}
	if listing.Status != model.ListingStatusScheduled && listing.Status != model.ListingStatusFailed {
		return model.NewValidationError(
			fmt.Sprintf("Listing %d cannot be published from status %s", listing.ID, listing.Status), "status")
	}

	platform, err := h.platforms.FindByID(ctx, listing.PlatformID)
	if err != nil {
		return model.NewDatabaseError("Failed to load platform", err)
	}
	if platform == nil {
		return model.NewNotFoundError("Platform")
	}
	if !platform.IsEnabled {
		return model.NewPlatformError("Platform "+platform.Name+" is disabled", platform.Name, false)
	}

	item, err := h.items.FindByID(ctx, listing.ItemID)
	if err != nil {
		return model.NewDatabaseError("Failed to load item", err)
	}
	images, err := h.images.FindByItemID(ctx, listing.ItemID)
	if err != nil {
		return model.NewDatabaseError("Failed to load images", err)
	}
	images = limitImages(images, platform.ImageRequirements)

	// 同一プラットフォームへの投稿間隔を守る
	if err := h.limiter(platform).Wait(ctx); err != nil {
		return err
	}

	if err := h.setStatus(ctx, listing.ID, model.ListingStatusPosting, ""); err != nil {
		return err
	}

	result, pubErr := h.publisher.Publish(ctx, &PublishRequest{
		Listing:  listing,
		Item:     item,
		Images:   images,
		Platform: platform,
	})

	// 投稿後の状態更新はシャットダウンで中断されても行い、出品をpostingのまま残さない
	stateCtx, cancel := detachedContext(ctx)
	defer cancel()

	if pubErr != nil {
		h.recordFailure(stateCtx, listing, platform, pubErr)
		return pubErr
	}

	now := h.now()
	active := model.ListingStatusActive
	empty := ""
	upd := model.ListingUpdate{
		Status:       &active,
		ExternalID:   &result.ExternalID,
		ExternalURL:  &result.ExternalURL,
		PostedAt:     &now,
		ErrorMessage: &empty,
	}
	if result.ExpiresAt != nil {
		upd.ExpiresAt = result.ExpiresAt
	}
	if _, err := h.listings.Update(stateCtx, listing.ID, upd); err != nil {
		return model.NewDatabaseError("Failed to mark listing active", err)
	}
	if _, err := h.platforms.UpdateLastSync(stateCtx, platform.ID, &now); err != nil {
		h.logger.Warn("最終同期時刻の更新に失敗しました",
			slog.String("platform", platform.Name),
			slog.String("error", err.Error()),
		)
	}
	h.recordEvent(stateCtx, listing.ID, EventListingPosted, map[string]any{
		"platform":    platform.Name,
		"external_id": result.ExternalID,
	})

	h.logger.Info("出品が完了しました",
		slog.Int64("listing_id", listing.ID),
		slog.String("platform", platform.Name),
		slog.String("external_id", result.ExternalID),
	)
	return nil
}

// recordFailure は出品をfailedにし、再試行回数とエラー内容を記録する。
func (h *PublishHandler) recordFailure(ctx context.Context, listing *model.Listing, platform *model.Platform, pubErr error) {
	msg := pubErr.Error()
	if err := h.setStatus(ctx, listing.ID, model.ListingStatusFailed, msg); err != nil {
		h.logger.Error("出品状態の更新に失敗しました",
			slog.Int64("listing_id", listing.ID),
			slog.String("error", err.Error()),
		)
	}
	if _, err := h.listings.IncrementRetryCount(ctx, listing.ID); err != nil {
		h.logger.Error("再試行回数の更新に失敗しました",
			slog.Int64("listing_id", listing.ID),
			slog.String("error", err.Error()),
		)
	}
	h.recordEvent(ctx, listing.ID, EventListingFailed, map[string]any{
		"platform":    platform.Name,
		"error":       msg,
		"recoverable": model.IsRecoverable(pubErr),
	})
}

func (h *PublishHandler) setStatus(ctx context.Context, listingID int64, status model.ListingStatus, errMsg string) error {
	upd := model.ListingUpdate{Status: &status, ErrorMessage: &errMsg}
	if _, err := h.listings.Update(ctx, listingID, upd); err != nil {
		return model.NewDatabaseError("Failed to update listing status", err)
	}
	return nil
}

func (h *PublishHandler) recordEvent(ctx context.Context, listingID int64, eventType string, data map[string]any) {
	if h.analytics == nil {
		return
	}
	if _, err := h.analytics.Create(ctx, &model.AnalyticsEvent{
		ListingID: listingID,
		EventType: eventType,
		EventData: data,
	}); err != nil {
		h.logger.Warn("分析イベントの記録に失敗しました",
			slog.Int64("listing_id", listingID),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// limiter はプラットフォームごとのrate.Limiterを返す。
// interval_minutesが未設定の場合は制限しない。
func (h *PublishHandler) limiter(p *model.Platform) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	if l, ok := h.limiters[p.ID]; ok {
		return l
	}
	limit := rate.Inf
	if p.RateLimits != nil && p.RateLimits.IntervalMinutes > 0 {
		limit = rate.Every(time.Duration(p.RateLimits.IntervalMinutes) * time.Minute)
	}
	l := rate.NewLimiter(limit, 1)
	h.limiters[p.ID] = l
	return l
}

// limitImages はプラットフォームの最大画像枚数に合わせて画像を切り詰める。
func limitImages(images []*model.Image, req *model.ImageRequirements) []*model.Image {
	if req == nil || req.MaxCount <= 0 || len(images) <= req.MaxCount {
		return images
	}
	return images[:req.MaxCount]
}
