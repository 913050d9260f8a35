package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/devstats/internal/repository"
)

var _ repository.WebhookEventRepository = (*WebhookEventDB)(nil)

type WebhookEventDB struct {
	conn *sql.DB
}

func (w *WebhookEventDB) Processed(ctx context.Context, eventID string) (bool, error) {
	var n int
	err := w.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_events WHERE id = ?`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking webhook event %s: %w", eventID, err)
	}
	return n > 0, nil
}

func (w *WebhookEventDB) Record(ctx context.Context, eventID, eventType string) error {
	_, err := w.conn.ExecContext(ctx,
		`INSERT INTO webhook_events (id, type, processed_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		eventID, eventType, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording webhook event %s: %w", eventID, err)
	}
	return nil
}
