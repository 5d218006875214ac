package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmlb/ai-news-engine/app/feed"
)

var _ ItemStore = (*ItemRepository)(nil)

// ItemRepository handles database operations for news items
type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// InsertNew stores items whose (source, link) pair is not in the table yet
// and returns how many rows were added.
func (r *ItemRepository) InsertNew(ctx context.Context, runID string, items []feed.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (
			source, link, title, topic, published, author, snippet,
			payload, run_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, link) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var runRef sql.NullString
	if runID != "" {
		runRef = sql.NullString{String: runID, Valid: true}
	}
	createdAt := time.Now().UTC().Format(time.RFC3339)

	inserted := 0
	for _, item := range items {
		payload, err := json.Marshal(payloadOf(item))
		if err != nil {
			return 0, fmt.Errorf("failed to encode payload for %s: %w", item.Link, err)
		}

		res, err := stmt.ExecContext(ctx,
			string(item.Source), item.Link, item.Title, item.Topic,
			item.Published.String(), item.Author, item.Snippet,
			string(payload), runRef, createdAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert item %s: %w", item.Link, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit items: %w", err)
	}

	return inserted, nil
}

// Count returns the number of stored items for source, or for all sources
// when source is empty.
func (r *ItemRepository) Count(ctx context.Context, source feed.Source) (int, error) {
	var count int
	var err error
	if source == "" {
		err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count)
	} else {
		err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE source = ?", string(source)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

// Recent returns the latest items by publication day, newest first.
func (r *ItemRepository) Recent(ctx context.Context, limit int) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, link, title, COALESCE(topic, ''), published,
		       COALESCE(author, ''), COALESCE(snippet, ''), COALESCE(payload, ''),
		       COALESCE(run_id, ''), created_at
		FROM items
		ORDER BY published DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var payload, createdAt string
		err := rows.Scan(
			&item.ID, &item.Source, &item.Link, &item.Title, &item.Topic,
			&item.Published, &item.Author, &item.Snippet, &payload,
			&item.RunID, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}

		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &item.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload for %s: %w", item.Link, err)
			}
		}
		item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func payloadOf(item feed.Item) map[string]any {
	payload := make(map[string]any)
	set := func(key, value string) {
		if value != "" {
			payload[key] = value
		}
	}

	set("image", item.Image)
	set("channel", item.Channel)
	set("subreddit", item.Subreddit)
	set("description", item.Description)
	set("transcript", item.Transcript)
	set("content", item.Content)
	if !item.PublishedAt.IsZero() {
		payload["published_at"] = item.PublishedAt.UTC().Format(time.RFC3339)
	}
	if item.Source == feed.SourceReddit {
		payload["score"] = item.Score
		payload["comments"] = item.Comments
	}
	if item.ReadingMinutes > 0 {
		payload["reading_minutes"] = item.ReadingMinutes
	}
	return payload
}
