// Package settings holds the single upstream credential and any other
// key/value settings, backed by SQL or Redis.
package settings

import (
	"context"
	"regexp"
	"strings"

	"scriptdesk/internal/apperr"
	"scriptdesk/internal/store"
)

// KeyAPIKey is the settings key of the upstream credential.
const KeyAPIKey = "apikey"

const minAPIKeyLength = 10

var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store reads and writes settings.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// SQLStore keeps settings in the `settings` table of the main database.
type SQLStore struct {
	db *store.Store
}

func NewSQLStore(db *store.Store) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return s.db.GetSetting(ctx, key)
}

func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	return s.db.SetSetting(ctx, key, value)
}

// ValidateAPIKey checks that key is present and well-formed.
func ValidateAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return apperr.Validation("credential not configured")
	}
	if len(key) < minAPIKeyLength || !apiKeyPattern.MatchString(key) {
		return apperr.Validation("credential is malformed")
	}
	return nil
}

// APIKey loads the credential from s and validates it. It is read on every
// call; nothing is kept in memory.
func APIKey(ctx context.Context, s Store) (string, error) {
	key, ok, err := s.GetSetting(ctx, KeyAPIKey)
	if err != nil {
		return "", err
	}
	if !ok {
		key = ""
	}
	key = strings.TrimSpace(key)
	if err := ValidateAPIKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// SaveAPIKey validates and stores key.
func SaveAPIKey(ctx context.Context, s Store, key string) error {
	key = strings.TrimSpace(key)
	if err := ValidateAPIKey(key); err != nil {
		return err
	}
	return s.SetSetting(ctx, KeyAPIKey, key)
}

// APIKeyStatus describes the stored credential without revealing it.
type APIKeyStatus struct {
	Exists     bool `json:"exists"`
	Configured bool `json:"configured"`
	Length     int  `json:"length"`
}

func CheckAPIKey(ctx context.Context, s Store) (APIKeyStatus, error) {
	key, ok, err := s.GetSetting(ctx, KeyAPIKey)
	if err != nil {
		return APIKeyStatus{}, err
	}
	key = strings.TrimSpace(key)
	return APIKeyStatus{
		Exists:     ok && key != "",
		Configured: ok && ValidateAPIKey(key) == nil,
		Length:     len(key),
	}, nil
}
