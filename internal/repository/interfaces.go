// Package repository はデータ永続化のインターフェースとSQLite実装を定義する。
//
// 取得系メソッドは対象が存在しない場合にエラーではなくnilを返す。
// 部分更新は変更可能な項目のみを持つ*Update構造体で受け取る。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

// ItemRepository は商品データの永続化インターフェース。
type ItemRepository interface {
	// Create は商品を作成し、採番済みの商品を返す。
	// SKUが重複する場合は一意制約違反のエラーを返す。
	Create(ctx context.Context, item *model.Item) (*model.Item, error)
	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Item, error)
	// FindAll は条件に一致する商品を作成日時の降順で返す。
	FindAll(ctx context.Context, filter model.ItemFilter) ([]*model.Item, error)
	// Update は指定項目のみ更新する。変更項目がない場合は現在の商品をそのまま返す。
	Update(ctx context.Context, id int64, upd model.ItemUpdate) (*model.Item, error)
	// Delete は商品を削除する。画像・出品はカスケード削除される。
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context, filter model.ItemFilter) (int, error)
}

// ImageRepository は商品画像の永続化インターフェース。
type ImageRepository interface {
	Create(ctx context.Context, image *model.Image) (*model.Image, error)
	FindByID(ctx context.Context, id int64) (*model.Image, error)
	// FindByItemID は商品の画像を表示順で返す。
	FindByItemID(ctx context.Context, itemID int64) ([]*model.Image, error)
	Update(ctx context.Context, id int64, upd model.ImageUpdate) (*model.Image, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteByItemID(ctx context.Context, itemID int64) (int, error)
	// SetPrimaryImage は商品内でメイン画像を1枚に切り替える。
	// 画像が商品に属さない場合はfalseを返し、何も変更しない。
	SetPrimaryImage(ctx context.Context, itemID, imageID int64) (bool, error)
	// GetPrimaryImage はメイン画像を返す。未設定の場合はnilを返す。
	GetPrimaryImage(ctx context.Context, itemID int64) (*model.Image, error)
	// ReorderImages は指定順にdisplay_orderを0から振り直す。
	ReorderImages(ctx context.Context, itemID int64, imageIDs []int64) error
	Count(ctx context.Context, itemID int64) (int, error)
	// FindOlderThan は指定時刻より前に作成された画像を返す。
	FindOlderThan(ctx context.Context, before time.Time) ([]*model.Image, error)
}

// ListingRepository は出品データの永続化インターフェース。
type ListingRepository interface {
	// Create は出品を作成する。同じ商品・プラットフォームの組が既に存在する場合は
	// 一意制約違反のエラーを返す。
	Create(ctx context.Context, listing *model.Listing) (*model.Listing, error)
	FindByID(ctx context.Context, id int64) (*model.Listing, error)
	FindByItemID(ctx context.Context, itemID int64) ([]*model.Listing, error)
	FindByPlatformID(ctx context.Context, platformID int64) ([]*model.Listing, error)
	FindByStatus(ctx context.Context, status model.ListingStatus) ([]*model.Listing, error)
	// FindScheduled はscheduled状態の出品を予定時刻の昇順で返す。
	// beforeを指定した場合はその時刻以前のもののみ返す。
	FindScheduled(ctx context.Context, before *time.Time) ([]*model.Listing, error)
	FindAll(ctx context.Context, filter model.ListingFilter) ([]*model.Listing, error)
	Update(ctx context.Context, id int64, upd model.ListingUpdate) (*model.Listing, error)
	IncrementRetryCount(ctx context.Context, id int64) (*model.Listing, error)
	UpdateAnalytics(ctx context.Context, id int64, analytics model.ListingAnalytics) (*model.Listing, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteByItemID(ctx context.Context, itemID int64) (int, error)
	Count(ctx context.Context, filter model.ListingFilter) (int, error)
	// ExpireDue はexpires_atを過ぎたactiveな出品をexpiredに変更し、件数を返す。
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// PlatformRepository はプラットフォーム設定の永続化インターフェース。
type PlatformRepository interface {
	Create(ctx context.Context, platform *model.Platform) (*model.Platform, error)
	FindByID(ctx context.Context, id int64) (*model.Platform, error)
	FindByName(ctx context.Context, name string) (*model.Platform, error)
	// FindAll は表示名順で返す。enabledOnlyがtrueの場合は有効なもののみ返す。
	FindAll(ctx context.Context, enabledOnly bool) ([]*model.Platform, error)
	Update(ctx context.Context, id int64, upd model.PlatformUpdate) (*model.Platform, error)
	UpdateAuthData(ctx context.Context, id int64, authData string) (*model.Platform, error)
	// UpdateLastSync は最終同期時刻を記録する。atがnilの場合は現在時刻。
	UpdateLastSync(ctx context.Context, id int64, at *time.Time) (*model.Platform, error)
	// ToggleEnabled は有効・無効を反転する。
	ToggleEnabled(ctx context.Context, id int64) (*model.Platform, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context, enabledOnly bool) (int, error)
}

// TemplateRepository は商品テンプレートの永続化インターフェース。
type TemplateRepository interface {
	Create(ctx context.Context, template *model.Template) (*model.Template, error)
	FindByID(ctx context.Context, id int64) (*model.Template, error)
	FindByName(ctx context.Context, name string) (*model.Template, error)
	FindByCategory(ctx context.Context, category string) ([]*model.Template, error)
	FindAll(ctx context.Context) ([]*model.Template, error)
	// GetMostUsed は使用回数の多い順にlimit件返す。
	GetMostUsed(ctx context.Context, limit int) ([]*model.Template, error)
	Update(ctx context.Context, id int64, upd model.TemplateUpdate) (*model.Template, error)
	IncrementUseCount(ctx context.Context, id int64) (*model.Template, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context, category string) (int, error)
}

// AnalyticsRepository は出品イベントの永続化インターフェース。追記専用。
type AnalyticsRepository interface {
	Create(ctx context.Context, event *model.AnalyticsEvent) (*model.AnalyticsEvent, error)
	FindByID(ctx context.Context, id int64) (*model.AnalyticsEvent, error)
	// FindByListingID は出品のイベントを新しい順に返す。eventTypeが空の場合は全種別。
	FindByListingID(ctx context.Context, listingID int64, eventType string) ([]*model.AnalyticsEvent, error)
	// FindByEventType は種別ごとのイベントを新しい順に返す。limitが0以下なら全件。
	FindByEventType(ctx context.Context, eventType string, limit int) ([]*model.AnalyticsEvent, error)
	// FindInDateRange は[start, end]に記録されたイベントを返す。listingIDが0なら全出品。
	FindInDateRange(ctx context.Context, start, end time.Time, listingID int64) ([]*model.AnalyticsEvent, error)
	CountByEventType(ctx context.Context, listingID int64, eventType string) (int, error)
	// GetEventTypeSummary は出品のイベント種別ごとの件数を返す。
	GetEventTypeSummary(ctx context.Context, listingID int64) (map[string]int, error)
	GetLatestEvent(ctx context.Context, listingID int64, eventType string) (*model.AnalyticsEvent, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteByListingID(ctx context.Context, listingID int64) (int, error)
	// DeleteOlderThan はdays日より前のイベントを削除し、件数を返す。
	DeleteOlderThan(ctx context.Context, days int) (int, error)
}

// JobRepository はバックグラウンドジョブキューの永続化インターフェース。
type JobRepository interface {
	Create(ctx context.Context, job *model.ScheduledJob) (*model.ScheduledJob, error)
	FindByID(ctx context.Context, id int64) (*model.ScheduledJob, error)
	FindByJobID(ctx context.Context, jobID string) (*model.ScheduledJob, error)
	FindAll(ctx context.Context, filter model.JobFilter) ([]*model.ScheduledJob, error)
	Count(ctx context.Context, filter model.JobFilter) (int, error)
	// ClaimDue は実行予定時刻を過ぎたpendingジョブを最大limit件activeに遷移させて返す。
	// 取得と状態遷移は同一トランザクションで行う。
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	// Reschedule はactiveなジョブをpendingに戻し、実行予定時刻を更新する。
	Reschedule(ctx context.Context, id int64, at time.Time, errMsg string) error
	// Cancel はpendingのジョブのみcancelledにする。対象外の場合はfalseを返す。
	Cancel(ctx context.Context, id int64) (bool, error)
	// RequeueStale はstartedBeforeより前に開始されたままactiveで残っているジョブをpendingに戻し、件数を返す。
	RequeueStale(ctx context.Context, startedBefore time.Time) (int, error)
	// DeleteFinishedOlderThan は終了済みジョブのうち指定時刻より前に作成されたものを削除する。
	DeleteFinishedOlderThan(ctx context.Context, before time.Time) (int, error)
}
