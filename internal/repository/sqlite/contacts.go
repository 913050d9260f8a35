package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

var _ repository.ContactRepository = (*ContactDB)(nil)

type ContactDB struct {
	conn *sql.DB
}

func (c *ContactDB) Create(ctx context.Context, msg *model.ContactMessage) error {
	msg.ID = xid.New().String()
	msg.CreatedAt = time.Now().UTC()

	_, err := c.conn.ExecContext(ctx,
		`INSERT INTO contact_messages (id, name, email, subject, message, remote_ip, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Name, msg.Email, msg.Subject, msg.Message, msg.RemoteIP, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting contact message: %w", err)
	}
	return nil
}

// List returns messages newest first. A zero Limit means 50.
func (c *ContactDB) List(ctx context.Context, opts repository.ListOptions) ([]model.ContactMessage, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	rows, err := c.conn.QueryContext(ctx,
		`SELECT id, name, email, subject, message, remote_ip, created_at
		 FROM contact_messages ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing contact messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.ContactMessage{}
	for rows.Next() {
		var m model.ContactMessage
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Message, &m.RemoteIP, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning contact message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating contact messages: %w", err)
	}
	return msgs, nil
}
