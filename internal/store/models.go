package store

import (
	"encoding/json"
	"time"
)

type Script struct {
	ID         int64          `json:"id"`
	Theme      string         `json:"theme"`
	Type       string         `json:"script_type"`
	Platform   string         `json:"platform"`
	Content    string         `json:"content"`
	IsFavorite bool           `json:"is_favorite"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ScriptUpdate holds the fields to change; nil means unchanged.
type ScriptUpdate struct {
	Theme      *string
	Type       *string
	Platform   *string
	Content    *string
	IsFavorite *bool
	Metadata   map[string]any
}

func (u ScriptUpdate) Empty() bool {
	return u.Theme == nil && u.Type == nil && u.Platform == nil &&
		u.Content == nil && u.IsFavorite == nil && u.Metadata == nil
}

type ListOptions struct {
	Limit         int
	FavoritesOnly bool
}

type ScriptStats struct {
	TotalScripts         int            `json:"total_scripts"`
	FavoriteScripts      int            `json:"favorite_scripts"`
	TypeDistribution     map[string]int `json:"type_distribution"`
	PlatformDistribution map[string]int `json:"platform_distribution"`
}

type Novel struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Genre          string          `json:"genre"`
	CoverImage     string          `json:"cover_image"`
	ExtraData      json.RawMessage `json:"extra_data,omitempty"`
	RollingSummary string          `json:"rolling_summary"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Chapter struct {
	ID          int64     `json:"id"`
	NovelID     int64     `json:"novel_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	WordCount   int       `json:"word_count"`
	Status      string    `json:"status"`
	OrderIndex  int       `json:"order_index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
