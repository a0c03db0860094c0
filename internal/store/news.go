package store

import (
	"context"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// UpsertNews inserts a news item, deduplicating on URL. Returns false if
// the item already existed.
func (s *Store) UpsertNews(ctx context.Context, item domain.NewsItem) (bool, error) {
	if item.CollectedAt.IsZero() {
		item.CollectedAt = time.Now().UTC()
	}
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO news_items (ticker_code, title, url, source, published_at, collected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
	`, item.TickerCode, item.Title, item.URL, item.Source, item.PublishedAt.Format(time.RFC3339), item.CollectedAt.Format(time.RFC3339))
	if err != nil {
		return false, apperr.StoreUnavailable(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetNews returns the most recent news items for a ticker, newest first.
func (s *Store) GetNews(ctx context.Context, tickerCode string, limit int) ([]domain.NewsItem, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, ticker_code, title, url, source, published_at, collected_at
		FROM news_items
		WHERE ticker_code = ?
		ORDER BY published_at DESC LIMIT ?
	`, tickerCode, limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.NewsItem
	for rows.Next() {
		var n domain.NewsItem
		var publishedAt, collectedAt string
		if err := rows.Scan(&n.ID, &n.TickerCode, &n.Title, &n.URL, &n.Source, &publishedAt, &collectedAt); err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		n.PublishedAt, _ = time.Parse(time.RFC3339, publishedAt)
		n.CollectedAt, _ = time.Parse(time.RFC3339, collectedAt)
		out = append(out, n)
	}
	return out, rows.Err()
}
