package model

import "time"

// AuthType はプラットフォームの認証方式。
type AuthType string

const (
	AuthTypeOAuth             AuthType = "oauth"
	AuthTypeCredentials       AuthType = "credentials"
	AuthTypeBrowserAutomation AuthType = "browser-automation"
)

// AutomationType はプラットフォームへの出品方式。
type AutomationType string

const (
	AutomationTypeAPI               AutomationType = "api"
	AutomationTypeBrowserAutomation AutomationType = "browser-automation"
)

// RateLimits はプラットフォームごとの投稿制限。
type RateLimits struct {
	DailyPosts      int `json:"daily_posts"`
	IntervalMinutes int `json:"interval_minutes"`
}

// DimensionLimits は画像サイズの上限・下限。
type DimensionLimits struct {
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`
	MinWidth  int `json:"min_width,omitempty"`
	MinHeight int `json:"min_height,omitempty"`
}

// ImageRequirements はプラットフォームが要求する画像条件。
type ImageRequirements struct {
	MaxCount   int              `json:"max_count"`
	MaxSizeMB  float64          `json:"max_size_mb"`
	Formats    []string         `json:"formats"`
	Dimensions *DimensionLimits `json:"dimensions,omitempty"`
}

// Platform は出品先マーケットプレイスの設定を表す。
type Platform struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	DisplayName       string             `json:"display_name"`
	IsEnabled         bool               `json:"is_enabled"`
	AuthType          AuthType           `json:"auth_type"`
	AuthData          string             `json:"auth_data,omitempty"`
	AutomationType    AutomationType     `json:"automation_type"`
	RateLimits        *RateLimits        `json:"rate_limits,omitempty"`
	ImageRequirements *ImageRequirements `json:"image_requirements,omitempty"`
	RequiredFields    []string           `json:"required_fields,omitempty"`
	Config            map[string]any     `json:"config,omitempty"`
	LastSync          *time.Time         `json:"last_sync,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// PlatformUpdate はPlatformの部分更新で変更可能な項目。
type PlatformUpdate struct {
	Name              *string            `json:"name"`
	DisplayName       *string            `json:"display_name"`
	IsEnabled         *bool              `json:"is_enabled"`
	AuthType          *AuthType          `json:"auth_type"`
	AuthData          *string            `json:"auth_data"`
	AutomationType    *AutomationType    `json:"automation_type"`
	RateLimits        *RateLimits        `json:"rate_limits"`
	ImageRequirements *ImageRequirements `json:"image_requirements"`
	RequiredFields    *[]string          `json:"required_fields"`
	Config            *map[string]any    `json:"config"`
	LastSync          *time.Time         `json:"last_sync"`
}
