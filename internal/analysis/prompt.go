package analysis

import (
	"fmt"
	"strings"
)

// BuildPrompt は分析指示のプロンプトを組み立てる。
// 修正済み項目がある場合は、その値を変更しないよう先頭で指示する。
func BuildPrompt(c *UserCorrections) string {
	var b strings.Builder
	hasCorrections := !c.Empty()

	if hasCorrections {
		b.WriteString("IMPORTANT: The seller has already reviewed these photos and corrected some fields. ")
		b.WriteString("Use the following values EXACTLY as given and do not modify them:\n\n")
		writeCorrection(&b, "Title", quoted(c.Title))
		writeCorrection(&b, "Description", quoted(c.Description))
		writeCorrection(&b, "Category", quoted(c.Category))
		writeCorrection(&b, "Condition", quoted(c.Condition))
		if c.Price != nil {
			writeCorrection(&b, "Price", "$"+c.Price.StringFixed(2))
		}
		writeCorrection(&b, "Brand", quoted(c.Brand))
		writeCorrection(&b, "Color", quoted(c.Color))
		writeCorrection(&b, "Size", quoted(c.Size))
		if c.Weight != nil {
			writeCorrection(&b, "Weight", fmt.Sprintf("%g lbs", *c.Weight))
		}
		b.WriteString("\nOnly infer the fields the seller did not provide, using the photos and the values above as context.\n\n")
	}

	b.WriteString("You are an expert at evaluating second-hand goods for online resale listings. ")
	if hasCorrections {
		b.WriteString("Starting from the seller-provided values above, analyze the photo(s) and complete the remaining fields:\n\n")
	} else {
		b.WriteString("Analyze the photo(s) and extract the following fields:\n\n")
	}

	b.WriteString("1. title: a clear, descriptive product title (at most 80 characters)\n")
	b.WriteString("2. description: 2-3 sentences covering key features, condition and any visible defects\n")
	fmt.Fprintf(&b, "3. category: exactly ONE of: %s\n", strings.Join(Categories, ", "))
	b.WriteString("4. condition: one of new, like_new, good, fair, poor\n")
	b.WriteString("5. price: a fair resale price in USD\n")
	b.WriteString("6. brand: the brand name if visible\n")
	b.WriteString("7. color: the primary color\n")
	b.WriteString("8. size: clothing size or dimensions if applicable\n")
	b.WriteString("9. weight: estimated shipping weight in pounds if possible\n")
	b.WriteString("10. confidence: your confidence in this analysis from 0 to 100\n\n")

	b.WriteString(`Reply with ONLY a JSON object in exactly this shape:
{
  "title": "string",
  "description": "string",
  "category": "string",
  "condition": "good",
  "price": 25.00,
  "brand": "string or null",
  "color": "string or null",
  "size": "string or null",
  "weight": 1.5,
  "confidence": 85
}

Do not write anything before or after the JSON object.`)

	return b.String()
}

func writeCorrection(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s (DO NOT CHANGE)\n", label, value)
}

func quoted(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("%q", s)
}
