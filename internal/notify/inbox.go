package notify

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminInbox is the notifications table behind the admin bell.
type AdminInbox struct {
	DB *pgxpool.Pool
}

func (a *AdminInbox) Send(ctx context.Context, m Message) error {
	_, err := a.DB.Exec(ctx, `
		INSERT INTO notifications (id, idempotency_key, user_role, title, message, link)
		VALUES ($1, $2, 'admin', $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		uuid.NewString(), m.IdempotencyKey, m.Title, m.Body, m.Link)
	return err
}

func (a *AdminInbox) List(ctx context.Context, unreadOnly bool, limit int) ([]orders.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.DB.Query(ctx, `
		SELECT id, title, message, link, is_read, created_at FROM notifications
		WHERE user_role='admin' AND (NOT $1 OR NOT is_read)
		ORDER BY created_at DESC LIMIT $2`, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Notification{}
	for rows.Next() {
		var n orders.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (a *AdminInbox) MarkRead(ctx context.Context, id string) error {
	ct, err := a.DB.Exec(ctx, `UPDATE notifications SET is_read=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}
