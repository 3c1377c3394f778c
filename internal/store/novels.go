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

const (
	NovelStatusOngoing = "ongoing"
	ChapterStatusDraft = "draft"
	novelColumns       = `id, title, description, genre, cover_image, extra_data, rolling_summary, status, created_at, updated_at`
)

// NovelUpdate holds the fields to change; nil means unchanged.
type NovelUpdate struct {
	Title          *string
	Description    *string
	Genre          *string
	CoverImage     *string
	ExtraData      json.RawMessage
	RollingSummary *string
	Status         *string
}

func (u NovelUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Genre == nil && u.CoverImage == nil &&
		u.ExtraData == nil && u.RollingSummary == nil && u.Status == nil
}

func (s *Store) CreateNovel(ctx context.Context, n *Novel) error {
	if n.Status == "" {
		n.Status = NovelStatusOngoing
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	id, err := s.insert(ctx,
		`INSERT INTO novels(title, description, genre, cover_image, extra_data, rolling_summary, status, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Title, n.Description, n.Genre, n.CoverImage, rawOrNull(n.ExtraData), n.RollingSummary, n.Status, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create novel: %w", err)
	}
	n.ID = id
	return nil
}

func (s *Store) GetNovel(ctx context.Context, id int64) (*Novel, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+novelColumns+` FROM novels WHERE id = ?`), id)
	n, err := scanNovel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, novelNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get novel %d: %w", id, err)
	}
	return n, nil
}

// ListNovels returns novels most recently updated first.
func (s *Store) ListNovels(ctx context.Context) ([]Novel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+novelColumns+` FROM novels ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list novels: %w", err)
	}
	defer rows.Close()

	out := []Novel{}
	for rows.Next() {
		n, err := scanNovel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan novel: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list novels: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateNovel(ctx context.Context, id int64, u NovelUpdate) (*Novel, error) {
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
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Genre != nil {
		add("genre", *u.Genre)
	}
	if u.CoverImage != nil {
		add("cover_image", *u.CoverImage)
	}
	if u.ExtraData != nil {
		add("extra_data", rawOrNull(u.ExtraData))
	}
	if u.RollingSummary != nil {
		add("rolling_summary", *u.RollingSummary)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	ok, err := s.exec(ctx, `UPDATE novels SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update novel %d: %w", id, err)
	}
	if !ok {
		return nil, novelNotFound(id)
	}
	return s.GetNovel(ctx, id)
}

// DeleteNovel removes the novel and its chapters.
func (s *Store) DeleteNovel(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete novel %d: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM chapters WHERE novel_id = ?`), id); err != nil {
		return fmt.Errorf("delete chapters of novel %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.bind(`DELETE FROM novels WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete novel %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete novel %d: %w", id, err)
	} else if n == 0 {
		return novelNotFound(id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete novel %d: %w", id, err)
	}
	return nil
}

// touchNovel bumps updated_at after a chapter change.
func (s *Store) touchNovel(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.bind(`UPDATE novels SET updated_at = ? WHERE id = ?`), time.Now().UTC(), id)
	return err
}

func scanNovel(r rowScanner) (*Novel, error) {
	var (
		n     Novel
		extra sql.NullString
	)
	if err := r.Scan(&n.ID, &n.Title, &n.Description, &n.Genre, &n.CoverImage, &extra,
		&n.RollingSummary, &n.Status, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if extra.Valid && extra.String != "" {
		n.ExtraData = json.RawMessage(extra.String)
	}
	return &n, nil
}

func rawOrNull(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func novelNotFound(id int64) error {
	return apperr.NotFound(fmt.Sprintf("novel %d not found", id))
}
