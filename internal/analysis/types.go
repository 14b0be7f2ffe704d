// Package analysis は商品写真をAIで分析し、出品情報の下書きを生成する。
package analysis

import (
	"github.com/shopspring/decimal"

	"github.com/hitoshi/resaleman/internal/model"
)

// MaxImages は1回の分析で送信する画像の最大枚数。
const MaxImages = 5

// ItemAnalysis はAIが推定した商品情報。
type ItemAnalysis struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Condition   model.Condition `json:"condition"`
	Price       decimal.Decimal `json:"price"`
	Brand       string          `json:"brand,omitempty"`
	Color       string          `json:"color,omitempty"`
	Size        string          `json:"size,omitempty"`
	// Weight は発送重量（ポンド）。
	Weight     *float64 `json:"weight,omitempty"`
	Confidence int      `json:"confidence"`
}

// UserCorrections はユーザーが確認・修正済みの項目。
// 空文字列とnilは未指定として扱う。
type UserCorrections struct {
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category,omitempty"`
	Condition   string           `json:"condition,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Brand       string           `json:"brand,omitempty"`
	Color       string           `json:"color,omitempty"`
	Size        string           `json:"size,omitempty"`
	Weight      *float64         `json:"weight,omitempty"`
}

// Empty は指定された項目が1つもないかを返す。
func (c *UserCorrections) Empty() bool {
	return c == nil || (c.Title == "" && c.Description == "" && c.Category == "" && c.Condition == "" &&
		c.Price == nil && c.Brand == "" && c.Color == "" && c.Size == "" && c.Weight == nil)
}

// ApplyCorrections はユーザー指定の項目で分析結果を上書きする。
// モデルが指示に従わなかった場合でも修正済みの値が残る。
func ApplyCorrections(a *ItemAnalysis, c *UserCorrections) {
	if a == nil || c.Empty() {
		return
	}
	if c.Title != "" {
		a.Title = c.Title
	}
	if c.Description != "" {
		a.Description = c.Description
	}
	if c.Category != "" {
		a.Category = c.Category
	}
	if c.Condition != "" {
		a.Condition = NormalizeCondition(c.Condition)
	}
	if c.Price != nil {
		a.Price = *c.Price
	}
	if c.Brand != "" {
		a.Brand = c.Brand
	}
	if c.Color != "" {
		a.Color = c.Color
	}
	if c.Size != "" {
		a.Size = c.Size
	}
	if c.Weight != nil {
		w := *c.Weight
		a.Weight = &w
	}
}
