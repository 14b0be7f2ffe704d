package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/resaleman/internal/model"
)

// DefaultPlatforms は初回起動時に投入するプラットフォーム設定。
var DefaultPlatforms = []model.Platform{
	{
		Name:           "facebook_marketplace",
		DisplayName:    "Facebook Marketplace",
		IsEnabled:      true,
		AuthType:       model.AuthTypeBrowserAutomation,
		AutomationType: model.AutomationTypeBrowserAutomation,
		RateLimits:     &model.RateLimits{DailyPosts: 50, IntervalMinutes: 5},
		ImageRequirements: &model.ImageRequirements{
			MaxCount:   10,
			MaxSizeMB:  5,
			Formats:    []string{"jpg", "png"},
			Dimensions: &model.DimensionLimits{MaxWidth: 1200, MaxHeight: 1200},
		},
		RequiredFields: []string{"title", "price", "category", "location", "description"},
		Config:         map[string]any{"base_url": "https://www.facebook.com/marketplace"},
	},
}

// EnsureSchema はスキーマを冪等に作成し、既定プラットフォームを投入する。
// 投入は行単位で存在確認してから行うため、途中で中断しても次回起動時に残りが投入される。
func EnsureSchema(ctx context.Context, db *sql.DB, path string, logger *slog.Logger) error {
	if err := RunMigrations(path); err != nil {
		return err
	}

	inserted, err := SeedPlatforms(ctx, db, DefaultPlatforms)
	if err != nil {
		return err
	}

	logger.Info("database schema ensured",
		slog.String("path", path),
		slog.Int("seeded_platforms", inserted),
	)
	return nil
}

// SeedPlatforms は同名のプラットフォームが存在しない場合のみ挿入する。
// 挿入した件数を返す。
func SeedPlatforms(ctx context.Context, db *sql.DB, platforms []model.Platform) (int, error) {
	inserted := 0
	for _, p := range platforms {
		var count int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM platforms WHERE name = ?`, p.Name,
		).Scan(&count); err != nil {
			return inserted, fmt.Errorf("failed to check platform %s: %w", p.Name, err)
		}
		if count > 0 {
			continue
		}

		rateLimits, err := seedJSON(p.RateLimits)
		if err != nil {
			return inserted, err
		}
		imageReqs, err := seedJSON(p.ImageRequirements)
		if err != nil {
			return inserted, err
		}
		requiredFields, err := seedJSON(p.RequiredFields)
		if err != nil {
			return inserted, err
		}
		config, err := seedJSON(p.Config)
		if err != nil {
			return inserted, err
		}

		if _, err := db.ExecContext(ctx,
			`INSERT INTO platforms (name, display_name, is_enabled, auth_type, automation_type,
			                        rate_limits, image_requirements, required_fields, config)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.DisplayName, p.IsEnabled, string(p.AuthType), string(p.AutomationType),
			rateLimits, imageReqs, requiredFields, config,
		); err != nil {
			return inserted, fmt.Errorf("failed to seed platform %s: %w", p.Name, err)
		}
		inserted++
	}
	return inserted, nil
}

func seedJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode seed data: %w", err)
	}
	return string(b), nil
}
