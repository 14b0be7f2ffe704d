package dispatch

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

// orNotFound はリポジトリが返したnilを「<entity> not found」エラーに変換する。
func orNotFound[T any](v *T, err error, entity string) (any, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, model.NewNotFoundError(entity)
	}
	return v, nil
}

// --- items ---

func registerItems(d *Dispatcher, repo repository.ItemRepository) {
	d.Register("items:create", func(ctx context.Context, args Args) (any, error) {
		var item model.Item
		if err := args.Decode(0, &item); err != nil {
			return nil, err
		}
		// 価格の省略を0と区別するため、ポインタで受け直す
		var given struct {
			Price *decimal.Decimal `json:"price"`
		}
		if err := args.Decode(0, &given); err != nil {
			return nil, err
		}
		if given.Price == nil {
			return nil, model.NewValidationError("Price is required", "price")
		}
		if err := validateItem(&item); err != nil {
			return nil, err
		}
		return repo.Create(ctx, &item)
	})
	d.Register("items:findById", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		item, err := repo.FindByID(ctx, id)
		return orNotFound(item, err, "Item")
	})
	d.Register("items:findAll", func(ctx context.Context, args Args) (any, error) {
		var filter model.ItemFilter
		if _, err := args.Optional(0, &filter); err != nil {
			return nil, err
		}
		return repo.FindAll(ctx, filter)
	})
	d.Register("items:update", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		var upd model.ItemUpdate
		if err := args.Decode(1, &upd); err != nil {
			return nil, err
		}
		if upd.Condition != nil && !upd.Condition.Valid() {
			return nil, model.NewValidationError("Invalid condition: "+string(*upd.Condition), "condition")
		}
		if upd.Price != nil && upd.Price.IsNegative() {
			return nil, model.NewValidationError("Price must not be negative", "price")
		}
		item, err := repo.Update(ctx, id, upd)
		return orNotFound(item, err, "Item")
	})
	d.Register("items:delete", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		deleted, err := repo.Delete(ctx, id)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return nil, model.NewNotFoundError("Item")
		}
		return nil, nil
	})
	d.Register("items:count", func(ctx context.Context, args Args) (any, error) {
		var filter model.ItemFilter
		if _, err := args.Optional(0, &filter); err != nil {
			return nil, err
		}
		return repo.Count(ctx, filter)
	})
}

func validateItem(item *model.Item) error {
	if item.Title == "" {
		return model.NewValidationError("Title is required", "title")
	}
	if item.Category == "" {
		return model.NewValidationError("Category is required", "category")
	}
	if item.Condition != "" && !item.Condition.Valid() {
		return model.NewValidationError("Invalid condition: "+string(item.Condition), "condition")
	}
	if item.Price.IsNegative() {
		return model.NewValidationError("Price must not be negative", "price")
	}
	return nil
}

// --- images ---

func registerImages(d *Dispatcher, repo repository.ImageRepository) {
	d.Register("images:create", func(ctx context.Context, args Args) (any, error) {
		var img model.Image
		if err := args.Decode(0, &img); err != nil {
			return nil, err
		}
		if img.ItemID <= 0 {
			return nil, model.NewValidationError("item_id is required", "item_id")
		}
		if img.OriginalPath == "" {
			return nil, model.NewValidationError("original_path is required", "original_path")
		}
		return repo.Create(ctx, &img)
	})
	d.Register("images:findById", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		img, err := repo.FindByID(ctx, id)
		return orNotFound(img, err, "Image")
	})
	d.Register("images:findByItemId", func(ctx context.Context, args Args) (any, error) {
		itemID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		return repo.FindByItemID(ctx, itemID)
	})
	d.Register("images:getPrimary", func(ctx context.Context, args Args) (any, error) {
		itemID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		img, err := repo.GetPrimaryImage(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if img == nil {
			nf := model.NewNotFoundError("Primary image")
			nf.Message = "No primary image found"
			return nil, nf
		}
		return img, nil
	})
	d.Register("images:update", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		var upd model.ImageUpdate
		if err := args.Decode(1, &upd); err != nil {
			return nil, err
		}
		img, err := repo.Update(ctx, id, upd)
		return orNotFound(img, err, "Image")
	})
	d.RegisterFlag("images:setPrimary", func(ctx context.Context, args Args) (bool, error) {
		itemID, err := args.ID(0)
		if err != nil {
			return false, err
		}
		imageID, err := args.ID(1)
		if err != nil {
			return false, err
		}
		return repo.SetPrimaryImage(ctx, itemID, imageID)
	})
	d.RegisterFlag("images:reorder", func(ctx context.Context, args Args) (bool, error) {
		itemID, err := args.ID(0)
		if err != nil {
			return false, err
		}
		var ids []int64
		if err := args.Decode(1, &ids); err != nil {
			return false, err
		}
		if err := repo.ReorderImages(ctx, itemID, ids); err != nil {
			return false, err
		}
		return true, nil
	})
	d.RegisterFlag("images:delete", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		return repo.Delete(ctx, id)
	})
	d.Register("images:deleteByItem", func(ctx context.Context, args Args) (any, error) {
		itemID, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		return repo.DeleteByItemID(ctx, itemID)
	})
}

// --- templates ---

// defaultMostUsedLimit はtemplates:getMostUsedでlimit省略時の件数。
const defaultMostUsedLimit = 10

func registerTemplates(d *Dispatcher, repo repository.TemplateRepository) {
	d.Register("templates:create", func(ctx context.Context, args Args) (any, error) {
		var tmpl model.Template
		if err := args.Decode(0, &tmpl); err != nil {
			return nil, err
		}
		if tmpl.Name == "" {
			return nil, model.NewValidationError("Name is required", "name")
		}
		if tmpl.DefaultValues == nil {
			return nil, model.NewValidationError("default_values is required", "default_values")
		}
		return repo.Create(ctx, &tmpl)
	})
	d.Register("templates:findById", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		tmpl, err := repo.FindByID(ctx, id)
		return orNotFound(tmpl, err, "Template")
	})
	d.Register("templates:findByName", func(ctx context.Context, args Args) (any, error) {
		name, err := args.String(0)
		if err != nil {
			return nil, err
		}
		tmpl, err := repo.FindByName(ctx, name)
		return orNotFound(tmpl, err, "Template")
	})
	d.Register("templates:findByCategory", func(ctx context.Context, args Args) (any, error) {
		category, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return repo.FindByCategory(ctx, category)
	})
	d.Register("templates:findAll", func(ctx context.Context, _ Args) (any, error) {
		return repo.FindAll(ctx)
	})
	d.Register("templates:getMostUsed", func(ctx context.Context, args Args) (any, error) {
		limit, err := args.IntOr(0, defaultMostUsedLimit)
		if err != nil {
			return nil, err
		}
		return repo.GetMostUsed(ctx, limit)
	})
	d.Register("templates:update", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		var upd model.TemplateUpdate
		if err := args.Decode(1, &upd); err != nil {
			return nil, err
		}
		tmpl, err := repo.Update(ctx, id, upd)
		return orNotFound(tmpl, err, "Template")
	})
	d.RegisterFlag("templates:incrementUse", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		tmpl, err := repo.IncrementUseCount(ctx, id)
		return tmpl != nil, err
	})
	d.RegisterFlag("templates:delete", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		return repo.Delete(ctx, id)
	})
	d.Register("templates:count", func(ctx context.Context, args Args) (any, error) {
		var category string
		if _, err := args.Optional(0, &category); err != nil {
			return nil, err
		}
		return repo.Count(ctx, category)
	})
}
