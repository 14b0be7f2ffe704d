package model

import "time"

// Template は商品作成時に適用する既定値のセット。
type Template struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	DefaultValues map[string]any `json:"default_values"`
	CustomFields  map[string]any `json:"custom_fields,omitempty"`
	Description   string         `json:"description,omitempty"`
	UseCount      int            `json:"use_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TemplateUpdate はTemplateの部分更新で変更可能な項目。
// use_countはIncrementUseCountでのみ変更する。
type TemplateUpdate struct {
	Name          *string         `json:"name"`
	Category      *string         `json:"category"`
	DefaultValues *map[string]any `json:"default_values"`
	CustomFields  *map[string]any `json:"custom_fields"`
	Description   *string         `json:"description"`
}

// AnalyticsEvent は出品に対するエンゲージメントの記録。
// 追記専用で、作成後の更新はできない。
type AnalyticsEvent struct {
	ID         int64          `json:"id"`
	ListingID  int64          `json:"listing_id"`
	EventType  string         `json:"event_type"`
	EventData  map[string]any `json:"event_data,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}
