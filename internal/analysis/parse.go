package analysis

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/resaleman/internal/model"
)

// 解析結果のデフォルト値
const (
	defaultTitle      = "Untitled Item"
	defaultCategory   = "Other"
	defaultConfidence = 50
)

// Categories はAIに選ばせるカテゴリ一覧。
var Categories = []string{
	"Electronics",
	"Clothing",
	"Home & Garden",
	"Sports",
	"Toys",
	"Books",
	"Music",
	"Movies",
	"Video Games",
	"Health & Beauty",
	"Automotive",
	"Collectibles",
	"Art",
	"Jewelry",
	"Furniture",
	"Appliances",
	"Tools",
	"Pet Supplies",
	"Office",
	"Baby & Kids",
	"Other",
}

// conditionAliases は表記ゆれを含む状態の対応表。キーは小文字・アンダースコアを空白にした形。
var conditionAliases = map[string]model.Condition{
	"new":      model.ConditionNew,
	"like new": model.ConditionLikeNew,
	"like-new": model.ConditionLikeNew,
	"good":     model.ConditionGood,
	"fair":     model.ConditionFair,
	"poor":     model.ConditionPoor,
}

var errNoJSON = errors.New("no JSON object found in response")

// ExtractJSON は応答テキスト中の最初の "{" から最後の "}" までを取り出す。
// 前後に説明文が付いていても解析できるようにする。
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseResponse はモデルの応答テキストをItemAnalysisに変換し、各項目を正規化する。
func ParseResponse(text string) (*ItemAnalysis, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, model.NewAIParseError(errNoJSON)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, model.NewAIParseError(err)
	}

	a := &ItemAnalysis{
		Title:       stringField(fields, "title"),
		Description: stringField(fields, "description"),
		Category:    NormalizeCategory(stringField(fields, "category")),
		Condition:   NormalizeCondition(stringField(fields, "condition")),
		Brand:       stringField(fields, "brand"),
		Color:       stringField(fields, "color"),
		Size:        stringField(fields, "size"),
		Confidence:  defaultConfidence,
	}
	if a.Title == "" {
		a.Title = defaultTitle
	}
	if price, ok := numberField(fields, "price"); ok {
		a.Price = decimal.NewFromFloat(price).Round(2)
	}
	if weight, ok := numberField(fields, "weight"); ok {
		a.Weight = &weight
	}
	if confidence, ok := numberField(fields, "confidence"); ok {
		a.Confidence = int(math.Round(math.Max(0, math.Min(100, confidence))))
	}
	return a, nil
}

// NormalizeCategory はカテゴリを大文字小文字を区別せずに一覧と照合する。
// 一致しない場合は "Other"。
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	for _, c := range Categories {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	return defaultCategory
}

// NormalizeCondition は状態の表記ゆれを吸収する。一致しない場合は good。
func NormalizeCondition(condition string) model.Condition {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(condition)), "_", " ")
	if c, ok := conditionAliases[key]; ok {
		return c
	}
	return model.ConditionGood
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

// numberField はJSONの数値のみを受け付ける。文字列の "12.5" は数値とみなさない。
func numberField(fields map[string]any, key string) (float64, bool) {
	f, ok := fields[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
