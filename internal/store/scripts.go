package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scriptdesk/internal/apperr"
)

const scriptColumns = `id, theme, script_type, platform, content, is_favorite, metadata, created_at`

// CreateScript inserts sc and fills in its ID and CreatedAt.
func (s *Store) CreateScript(ctx context.Context, sc *Script) error {
	meta, err := encodeMetadata(sc.Metadata)
	if err != nil {
		return err
	}
	sc.CreatedAt = time.Now().UTC()
	id, err := s.insert(ctx,
		`INSERT INTO scripts(theme, script_type, platform, content, is_favorite, metadata, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sc.Theme, sc.Type, sc.Platform, sc.Content, sc.IsFavorite, meta, sc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create script: %w", err)
	}
	sc.ID = id
	return nil
}

func (s *Store) GetScript(ctx context.Context, id int64) (*Script, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+scriptColumns+` FROM scripts WHERE id = ?`), id)
	sc, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scriptNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get script %d: %w", id, err)
	}
	return sc, nil
}

// ListScripts returns scripts newest first.
func (s *Store) ListScripts(ctx context.Context, opts ListOptions) ([]Script, error) {
	q := `SELECT ` + scriptColumns + ` FROM scripts`
	args := []any{}
	if opts.FavoritesOnly {
		q += ` WHERE is_favorite = ?`
		args = append(args, true)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.bind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	out := []Script{}
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		out = append(out, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return out, nil
}

// UpdateScript applies the non-nil fields of u and returns the updated row.
func (s *Store) UpdateScript(ctx context.Context, id int64, u ScriptUpdate) (*Script, error) {
	if u.Empty() {
		return nil, apperr.Validation("no fields to update")
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Theme != nil {
		add("theme", *u.Theme)
	}
	if u.Type != nil {
		add("script_type", *u.Type)
	}
	if u.Platform != nil {
		add("platform", *u.Platform)
	}
	if u.Content != nil {
		add("content", *u.Content)
	}
	if u.IsFavorite != nil {
		add("is_favorite", *u.IsFavorite)
	}
	if u.Metadata != nil {
		meta, err := encodeMetadata(u.Metadata)
		if err != nil {
			return nil, err
		}
		add("metadata", meta)
	}
	args = append(args, id)

	ok, err := s.exec(ctx, `UPDATE scripts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update script %d: %w", id, err)
	}
	if !ok {
		return nil, scriptNotFound(id)
	}
	return s.GetScript(ctx, id)
}

func (s *Store) DeleteScript(ctx context.Context, id int64) error {
	ok, err := s.exec(ctx, `DELETE FROM scripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete script %d: %w", id, err)
	}
	if !ok {
		return scriptNotFound(id)
	}
	return nil
}

// ToggleFavorite flips is_favorite and returns the new value.
func (s *Store) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	ok, err := s.exec(ctx, `UPDATE scripts SET is_favorite = NOT is_favorite WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("toggle favorite %d: %w", id, err)
	}
	if !ok {
		return false, scriptNotFound(id)
	}
	var fav bool
	if err := s.db.QueryRowContext(ctx, s.bind(`SELECT is_favorite FROM scripts WHERE id = ?`), id).Scan(&fav); err != nil {
		return false, fmt.Errorf("toggle favorite %d: %w", id, err)
	}
	return fav, nil
}

// ScriptStats aggregates totals and per-type/per-platform counts.
func (s *Store) ScriptStats(ctx context.Context) (*ScriptStats, error) {
	st := &ScriptStats{
		TypeDistribution:     map[string]int{},
		PlatformDistribution: map[string]int{},
	}
	err := s.db.QueryRowContext(ctx, s.bind(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_favorite = ? THEN 1 ELSE 0 END), 0) FROM scripts`), true,
	).Scan(&st.TotalScripts, &st.FavoriteScripts)
	if err != nil {
		return nil, fmt.Errorf("script stats: %w", err)
	}
	if err := s.distribution(ctx, "script_type", st.TypeDistribution); err != nil {
		return nil, err
	}
	if err := s.distribution(ctx, "platform", st.PlatformDistribution); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) distribution(ctx context.Context, col string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+col+`, COUNT(*) FROM scripts GROUP BY `+col)
	if err != nil {
		return fmt.Errorf("script %s distribution: %w", col, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return fmt.Errorf("script %s distribution: %w", col, err)
		}
		into[k] = n
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(r rowScanner) (*Script, error) {
	var (
		sc   Script
		meta sql.NullString
	)
	if err := r.Scan(&sc.ID, &sc.Theme, &sc.Type, &sc.Platform, &sc.Content, &sc.IsFavorite, &meta, &sc.CreatedAt); err != nil {
		return nil, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &sc.Metadata); err != nil {
			return nil, fmt.Errorf("decode script metadata: %w", err)
		}
	}
	return &sc, nil
}

func encodeMetadata(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func scriptNotFound(id int64) error {
	return apperr.NotFound(fmt.Sprintf("script %d not found", id))
}
