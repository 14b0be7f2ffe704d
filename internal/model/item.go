// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Condition は商品の状態を表す。
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

// Valid はConditionが定義済みの値かどうかを返す。
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// DefaultCurrency は通貨未指定時に使用する通貨コード。
const DefaultCurrency = "USD"

// Dimensions は商品の寸法を表す。
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"` // in または cm
}

// Item は在庫として管理する販売商品を表す。
// 空文字列のテキスト項目はDB上ではNULLとして保存される。
type Item struct {
	ID           int64               `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Category     string              `json:"category"`
	Condition    Condition           `json:"condition"`
	Price        decimal.Decimal     `json:"price"`
	Currency     string              `json:"currency"`
	Quantity     int                 `json:"quantity"`
	Cost         decimal.NullDecimal `json:"cost"`
	SKU          string              `json:"sku,omitempty"`
	Brand        string              `json:"brand,omitempty"`
	Size         string              `json:"size,omitempty"`
	Color        string              `json:"color,omitempty"`
	Weight       *float64            `json:"weight,omitempty"`
	Dimensions   *Dimensions         `json:"dimensions,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	CustomFields map[string]any      `json:"custom_fields,omitempty"`
	TemplateID   *int64              `json:"template_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ItemUpdate はItemの部分更新で変更可能な項目。
// nilのフィールドは更新対象外となる。ID・作成日時は更新できない。
type ItemUpdate struct {
	Title        *string              `json:"title"`
	Description  *string              `json:"description"`
	Category     *string              `json:"category"`
	Condition    *Condition           `json:"condition"`
	Price        *decimal.Decimal     `json:"price"`
	Currency     *string              `json:"currency"`
	Quantity     *int                 `json:"quantity"`
	Cost         *decimal.NullDecimal `json:"cost"`
	SKU          *string              `json:"sku"`
	Brand        *string              `json:"brand"`
	Size         *string              `json:"size"`
	Color        *string              `json:"color"`
	Weight       *float64             `json:"weight"`
	Dimensions   *Dimensions          `json:"dimensions"`
	Tags         *[]string            `json:"tags"`
	CustomFields *map[string]any      `json:"custom_fields"`
	TemplateID   *int64               `json:"template_id"`
}

// ItemFilter は商品一覧・件数取得の絞り込み条件。
// すべて任意で、指定された条件はANDで結合される。
type ItemFilter struct {
	Category  string    `json:"category"`
	Condition Condition `json:"condition"`
	// Search はタイトル・説明・SKUに対する部分一致検索。
	Search string `json:"search"`
}
