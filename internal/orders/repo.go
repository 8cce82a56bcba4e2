package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Repo is the Postgres order store.
type Repo struct{ DB *pgxpool.Pool }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// CreateOrderWithItems writes the order row and all of its line items in one
// transaction. A reused external_id yields ErrDuplicateOrder. The order's
// holds are locked and attached in the same transaction; if the sweeper got
// to one of them first the order is refused with ErrHoldsReleased.
func (r *Repo) CreateOrderWithItems(ctx context.Context, o Order, items []LineItem) (Order, error) {
	if len(items) == 0 {
		return Order{}, errors.New("order without items")
	}
	if sum := SumItems(items); sum != o.TotalCents {
		return Order{}, fmt.Errorf("total mismatch: order=%d items=%d", o.TotalCents, sum)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var released int
	if err := tx.QueryRow(ctx, `
		WITH locked AS (
			SELECT status FROM reservations WHERE order_id=$1 FOR UPDATE
		)
		SELECT COUNT(*) FROM locked WHERE status='released'`, o.ID).Scan(&released); err != nil {
		return Order{}, err
	}
	if released > 0 {
		return Order{}, ErrHoldsReleased
	}
	if _, err := tx.Exec(ctx, `UPDATE reservations SET expires_at=NULL WHERE order_id=$1 AND status='held'`, o.ID); err != nil {
		return Order{}, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, user_id, status, payment_status, payment_method, phone, address, total_cents)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		o.ID, o.ExternalID, o.UserID, o.Status, o.PaymentStatus, o.PaymentMethod, o.Phone, o.Address, o.TotalCents,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Order{}, ErrDuplicateOrder
		}
		return Order{}, err
	}

	batch := &pgx.Batch{}
	for i, it := range items {
		batch.Queue(`
			INSERT INTO order_items(order_id, position, product_id, product_name, size, qty, price_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, i, it.ProductID, it.ProductName, it.Size, it.Qty, it.PriceCents)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	o.Items = make([]LineItem, len(items))
	for i, it := range items {
		it.OrderID = o.ID
		o.Items[i] = it
	}
	return o, nil
}

const orderColumns = `id, COALESCE(external_id, ''), user_id, status, payment_status, payment_method,
	phone, address, total_cents, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.Phone, &o.Address, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	out := []Order{o}
	if err := r.loadItems(ctx, out); err != nil {
		return Order{}, err
	}
	return out[0], nil
}

func (r *Repo) FindByExternalID(ctx context.Context, userID, externalID string) (Order, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE external_id=$1 AND user_id=$2`, externalID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return r.GetOrder(ctx, id)
}

func (r *Repo) OrderExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

// ListOrders returns every order, newest first; an empty status means all.
func (r *Repo) ListOrders(ctx context.Context, status Status) ([]Order, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	}
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE status=$1 ORDER BY created_at DESC`, status)
}

func (r *Repo) list(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, r.loadItems(ctx, out)
}

func (r *Repo) loadItems(ctx context.Context, out []Order) error {
	if len(out) == 0 {
		return nil
	}
	ids := make([]string, len(out))
	idx := make(map[string]int, len(out))
	for i, o := range out {
		ids[i] = o.ID
		idx[o.ID] = i
	}
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, product_name, size, qty, price_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.ProductName, &it.Size, &it.Qty, &it.PriceCents); err != nil {
			return err
		}
		i := idx[it.OrderID]
		out[i].Items = append(out[i].Items, it)
	}
	return rows.Err()
}

// UpdateOrderStatus moves an order from `from` to `to`; it fails with
// ErrStaleStatus if the row no longer has status `from`.
func (r *Repo) UpdateOrderStatus(ctx context.Context, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	return r.checkUpdated(ctx, id, ct)
}

// UpdatePaymentStatus moves payment_status from `from` to `to`. A cancelled
// order is never updated; that case also reports ErrStaleStatus.
func (r *Repo) UpdatePaymentStatus(ctx context.Context, id string, from, to PaymentStatus) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status=$3, updated_at=now()
		WHERE id=$1 AND payment_status=$2 AND status <> 'cancelled'`, id, from, to)
	if err != nil {
		return err
	}
	return r.checkUpdated(ctx, id, ct)
}

func (r *Repo) checkUpdated(ctx context.Context, id string, ct pgconn.CommandTag) error {
	if ct.RowsAffected() == 1 {
		return nil
	}
	ok, err := r.OrderExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrStaleStatus
}
