package dispatch

import (
	"context"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

func registerListings(d *Dispatcher, repo repository.ListingRepository) {
	d.Register("listings:create", func(ctx context.Context, args Args) (any, error) {
		var listing model.Listing
		if err := args.Decode(0, &listing); err != nil {
			return nil, err
		}
		if listing.ItemID <= 0 {
			return nil, model.NewValidationError("item_id is required", "item_id")
		}
		if listing.PlatformID <= 0 {
			return nil, model.NewValidationError("platform_id is required", "platform_id")
		}
		if listing.Status != "" && !listing.Status.Valid() {
			return nil, model.NewValidationError("Invalid status: "+string(listing.Status), "status")
		}
		return repo.Create(ctx, &listing)
	})
	d.Register("listings:findById", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		listing, err := repo.FindByID(ctx, id)
		return orNotFound(listing, err, "Listing")
	})
	d.Register("listings:findByItemId", func(ctx context.Context, args Args) (any, error) {
		itemID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		return repo.FindByItemID(ctx, itemID)
	})
	d.Register("listings:findByPlatformId", func(ctx context.Context, args Args) (any, error) {
		platformID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		return repo.FindByPlatformID(ctx, platformID)
	})
	d.Register("listings:findByStatus", func(ctx context.Context, args Args) (any, error) {
		var status model.ListingStatus
		if err := args.Decode(0, &status); err != nil {
			return nil, err
		}
		if !status.Valid() {
			return nil, model.NewValidationError("Invalid status: "+string(status), "status")
		}
		return repo.FindByStatus(ctx, status)
	})
	d.Register("listings:findScheduled", func(ctx context.Context, args Args) (any, error) {
		var before time.Time
		found, err := args.Optional(0, &before)
		if err != nil {
			return nil, err
		}
		if !found {
			return repo.FindScheduled(ctx, nil)
		}
		return repo.FindScheduled(ctx, &before)
	})
	d.Register("listings:findAll", func(ctx context.Context, args Args) (any, error) {
		var filter model.ListingFilter
		if _, err := args.Optional(0, &filter); err != nil {
			return nil, err
		}
		return repo.FindAll(ctx, filter)
	})
	d.Register("listings:update", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		var upd model.ListingUpdate
		if err := args.Decode(1, &upd); err != nil {
			return nil, err
		}
		if upd.Status != nil && !upd.Status.Valid() {
			return nil, model.NewValidationError("Invalid status: "+string(*upd.Status), "status")
		}
		listing, err := repo.Update(ctx, id, upd)
		return orNotFound(listing, err, "Listing")
	})
	d.RegisterFlag("listings:incrementRetry", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		listing, err := repo.IncrementRetryCount(ctx, id)
		return listing != nil, err
	})
	d.RegisterFlag("listings:updateAnalytics", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		var counters model.ListingAnalytics
		if err := args.Decode(1, &counters); err != nil {
			return false, err
		}
		listing, err := repo.UpdateAnalytics(ctx, id, counters)
		return listing != nil, err
	})
	d.RegisterFlag("listings:delete", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		return repo.Delete(ctx, id)
	})
	d.Register("listings:count", func(ctx context.Context, args Args) (any, error) {
		var filter model.ListingFilter
		if _, err := args.Optional(0, &filter); err != nil {
			return nil, err
		}
		return repo.Count(ctx, filter)
	})
}

func registerPlatforms(d *Dispatcher, repo repository.PlatformRepository) {
	d.Register("platforms:create", func(ctx context.Context, args Args) (any, error) {
		var platform model.Platform
		if err := args.Decode(0, &platform); err != nil {
			return nil, err
		}
		if platform.Name == "" {
			return nil, model.NewValidationError("Name is required", "name")
		}
		if platform.DisplayName == "" {
			platform.DisplayName = platform.Name
		}
		return repo.Create(ctx, &platform)
	})
	d.Register("platforms:findById", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		platform, err := repo.FindByID(ctx, id)
		return orNotFound(platform, err, "Platform")
	})
	d.Register("platforms:findByName", func(ctx context.Context, args Args) (any, error) {
		name, err := args.String(0)
		if err != nil {
			return nil, err
		}
		platform, err := repo.FindByName(ctx, name)
		return orNotFound(platform, err, "Platform")
	})
	d.Register("platforms:findAll", func(ctx context.Context, args Args) (any, error) {
		var enabledOnly bool
		if _, err := args.Optional(0, &enabledOnly); err != nil {
			return nil, err
		}
		return repo.FindAll(ctx, enabledOnly)
	})
	d.Register("platforms:update", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		var upd model.PlatformUpdate
		if err := args.Decode(1, &upd); err != nil {
			return nil, err
		}
		platform, err := repo.Update(ctx, id, upd)
		return orNotFound(platform, err, "Platform")
	})
	d.RegisterFlag("platforms:updateAuth", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		authData, err := args.String(1)
		if err != nil {
			return false, err
		}
		platform, err := repo.UpdateAuthData(ctx, id, authData)
		return platform != nil, err
	})
	d.RegisterFlag("platforms:updateSync", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		var at time.Time
		found, err := args.Optional(1, &at)
		if err != nil {
			return false, err
		}
		var atPtr *time.Time
		if found {
			atPtr = &at
		}
		platform, err := repo.UpdateLastSync(ctx, id, atPtr)
		return platform != nil, err
	})
	d.RegisterFlag("platforms:toggleEnabled", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		platform, err := repo.ToggleEnabled(ctx, id)
		return platform != nil, err
	})
	d.RegisterFlag("platforms:delete", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		return repo.Delete(ctx, id)
	})
}

func registerAnalytics(d *Dispatcher, repo repository.AnalyticsRepository) {
	d.Register("analytics:create", func(ctx context.Context, args Args) (any, error) {
		var event model.AnalyticsEvent
		if err := args.Decode(0, &event); err != nil {
			return nil, err
		}
		if event.ListingID <= 0 {
			return nil, model.NewValidationError("listing_id is required", "listing_id")
		}
		if event.EventType == "" {
			return nil, model.NewValidationError("event_type is required", "event_type")
		}
		return repo.Create(ctx, &event)
	})
	d.Register("analytics:findById", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		event, err := repo.FindByID(ctx, id)
		return orNotFound(event, err, "Analytics event")
	})
	d.Register("analytics:findByListingId", func(ctx context.Context, args Args) (any, error) {
		listingID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		var eventType string
		if _, err := args.Optional(1, &eventType); err != nil {
			return nil, err
		}
		return repo.FindByListingID(ctx, listingID, eventType)
	})
	d.Register("analytics:findByEventType", func(ctx context.Context, args Args) (any, error) {
		eventType, err := args.String(0)
		if err != nil {
			return nil, err
		}
		limit, err := args.IntOr(1, 0)
		if err != nil {
			return nil, err
		}
		return repo.FindByEventType(ctx, eventType, limit)
	})
	d.Register("analytics:findInDateRange", func(ctx context.Context, args Args) (any, error) {
		var start, end time.Time
		if err := args.Decode(0, &start); err != nil {
			return nil, err
		}
		if err := args.Decode(1, &end); err != nil {
			return nil, err
		}
		var listingID int64
		if _, err := args.Optional(2, &listingID); err != nil {
			return nil, err
		}
		return repo.FindInDateRange(ctx, start, end, listingID)
	})
	d.Register("analytics:countByEventType", func(ctx context.Context, args Args) (any, error) {
		listingID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		eventType, err := args.String(1)
		if err != nil {
			return nil, err
		}
		return repo.CountByEventType(ctx, listingID, eventType)
	})
	d.Register("analytics:getEventTypeSummary", func(ctx context.Context, args Args) (any, error) {
		listingID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		return repo.GetEventTypeSummary(ctx, listingID)
	})
	d.Register("analytics:getLatestEvent", func(ctx context.Context, args Args) (any, error) {
		listingID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		eventType, err := args.String(1)
		if err != nil {
			return nil, err
		}
		// イベントがない場合はdataなしの成功とする
		event, err := repo.GetLatestEvent(ctx, listingID, eventType)
		if err != nil || event == nil {
			return nil, err
		}
		return event, nil
	})
	d.RegisterFlag("analytics:delete", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		return repo.Delete(ctx, id)
	})
	d.Register("analytics:deleteByListingId", func(ctx context.Context, args Args) (any, error) {
		listingID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		return repo.DeleteByListingID(ctx, listingID)
	})
	d.Register("analytics:deleteOlderThan", func(ctx context.Context, args Args) (any, error) {
		var days int
		if err := args.Decode(0, &days); err != nil {
			return nil, err
		}
		if days < 0 {
			return nil, model.NewValidationError("days must not be negative", "days")
		}
		return repo.DeleteOlderThan(ctx, days)
	})
}
