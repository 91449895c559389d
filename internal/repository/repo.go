package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// AppendItems inserts a page of catalog rows. Existing identifiers are
// skipped so re-importing a playlist is harmless.
func (r *Repo) AppendItems(ctx context.Context, items []FeedItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO feed_items(item_id, media_ref, title, added_at) VALUES (?,?,?,?)`,
			it.ItemID, it.MediaRef, it.Title, now,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListItemsPage returns up to limit rows starting at offset, in feed order.
func (r *Repo) ListItemsPage(ctx context.Context, offset, limit int) ([]FeedItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT position, item_id, media_ref, title FROM feed_items ORDER BY position ASC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FeedItem
	for rows.Next() {
		var it FeedItem
		if err := rows.Scan(&it.Position, &it.ItemID, &it.MediaRef, &it.Title); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) CountItems(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feed_items`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetResolvedURL returns a cached resolution no older than maxAge, or
// sql.ErrNoRows semantics mapped to ("", false).
func (r *Repo) GetResolvedURL(ctx context.Context, itemID string, maxAge time.Duration) (string, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT url, resolved_at FROM resolved_urls WHERE item_id = ?`, itemID)
	var u ResolvedURL
	if err := row.Scan(&u.URL, &u.ResolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if time.Since(time.Unix(u.ResolvedAt, 0)) > maxAge {
		return "", false, nil
	}
	return u.URL, true, nil
}

func (r *Repo) PutResolvedURL(ctx context.Context, itemID, url string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO resolved_urls(item_id, url, resolved_at) VALUES (?,?,?)`,
		itemID, url, time.Now().Unix(),
	)
	return err
}

func (r *Repo) DeleteResolvedURL(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM resolved_urls WHERE item_id = ?`, itemID)
	return err
}

func (r *Repo) CacheTouch(ctx context.Context, hash string, size int64, created bool) error {
	now := time.Now().Unix()
	if created {
		_, err := r.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO file_cache(hash,bytes,accessed_at,created_at) VALUES (?,?,?,COALESCE((SELECT created_at FROM file_cache WHERE hash=?),?))`,
			hash, size, now, hash, now)
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE file_cache SET accessed_at=? WHERE hash=?`, now, hash)
	return err
}

func (r *Repo) CacheRemove(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM file_cache WHERE hash=?`, hash)
	return err
}

func (r *Repo) CacheTotalBytes(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(bytes),0) FROM file_cache`)
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *Repo) CacheOldest(ctx context.Context) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT hash FROM file_cache ORDER BY accessed_at ASC LIMIT 1`)
	var hash string
	if err := row.Scan(&hash); err != nil {
		return "", err
	}
	return hash, nil
}
