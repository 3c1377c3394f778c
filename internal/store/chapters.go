package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"scriptdesk/internal/apperr"
)

const chapterColumns = `id, novel_id, title, content, description, word_count, status, order_index, created_at, updated_at`

// ChapterUpdate holds the fields to change; nil means unchanged.
type ChapterUpdate struct {
	Title       *string
	Content     *string
	Description *string
	WordCount   *int
	Status      *string
	OrderIndex  *int
}

func (u ChapterUpdate) Empty() bool {
	return u.Title == nil && u.Content == nil && u.Description == nil &&
		u.WordCount == nil && u.Status == nil && u.OrderIndex == nil
}

// CreateChapter inserts c under its novel. WordCount defaults to the rune
// count of Content.
func (s *Store) CreateChapter(ctx context.Context, c *Chapter) error {
	if _, err := s.GetNovel(ctx, c.NovelID); err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = ChapterStatusDraft
	}
	if c.WordCount == 0 {
		c.WordCount = utf8.RuneCountInString(c.Content)
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	id, err := s.insert(ctx,
		`INSERT INTO chapters(novel_id, title, content, description, word_count, status, order_index, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.NovelID, c.Title, c.Content, c.Description, c.WordCount, c.Status, c.OrderIndex, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create chapter: %w", err)
	}
	c.ID = id
	if err := s.touchNovel(ctx, c.NovelID); err != nil {
		return fmt.Errorf("touch novel %d: %w", c.NovelID, err)
	}
	return nil
}

func (s *Store) GetChapter(ctx context.Context, id int64) (*Chapter, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+chapterColumns+` FROM chapters WHERE id = ?`), id)
	c, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chapterNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter %d: %w", id, err)
	}
	return c, nil
}

// ListChapters returns the chapters of a novel in reading order.
func (s *Store) ListChapters(ctx context.Context, novelID int64) ([]Chapter, error) {
	if _, err := s.GetNovel(ctx, novelID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		s.bind(`SELECT `+chapterColumns+` FROM chapters WHERE novel_id = ? ORDER BY order_index ASC, id ASC`), novelID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	out := []Chapter{}
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return out, nil
}

// UpdateChapter applies u. Changing Content without an explicit WordCount
// recomputes the word count.
func (s *Store) UpdateChapter(ctx context.Context, id int64, u ChapterUpdate) (*Chapter, error) {
	if u.Empty() {
		return nil, apperr.Validation("no fields to update")
	}
	current, err := s.GetChapter(ctx, id)
	if err != nil {
		return nil, err
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
	if u.Content != nil {
		add("content", *u.Content)
		if u.WordCount == nil {
			add("word_count", utf8.RuneCountInString(*u.Content))
		}
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.WordCount != nil {
		add("word_count", *u.WordCount)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.OrderIndex != nil {
		add("order_index", *u.OrderIndex)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	if _, err := s.exec(ctx, `UPDATE chapters SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("update chapter %d: %w", id, err)
	}
	if err := s.touchNovel(ctx, current.NovelID); err != nil {
		return nil, fmt.Errorf("touch novel %d: %w", current.NovelID, err)
	}
	return s.GetChapter(ctx, id)
}

func (s *Store) DeleteChapter(ctx context.Context, id int64) error {
	ok, err := s.exec(ctx, `DELETE FROM chapters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chapter %d: %w", id, err)
	}
	if !ok {
		return chapterNotFound(id)
	}
	return nil
}

func scanChapter(r rowScanner) (*Chapter, error) {
	var c Chapter
	if err := r.Scan(&c.ID, &c.NovelID, &c.Title, &c.Content, &c.Description, &c.WordCount,
		&c.Status, &c.OrderIndex, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func chapterNotFound(id int64) error {
	return apperr.NotFound(fmt.Sprintf("chapter %d not found", id))
}
