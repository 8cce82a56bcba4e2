package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReservationRepo is the hold ledger. Holds are created by CatalogRepo in the
// same transaction as the stock claim they describe.
type ReservationRepo struct{ DB *pgxpool.Pool }

const holdColumns = `id, order_id, product_id, size, qty, status, expires_at, created_at`

func scanHolds(rows pgx.Rows) ([]Hold, error) {
	defer rows.Close()
	var out []Hold
	for rows.Next() {
		var h Hold
		if err := rows.Scan(&h.ID, &h.OrderID, &h.ProductID, &h.Size, &h.Qty, &h.Status, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReleaseHold mengembalikan stok dari satu hold yang masih 'held'.
// Returns false if the hold was already released or confirmed.
func (r *ReservationRepo) ReleaseHold(ctx context.Context, holdID string) (bool, error) {
	return r.release(ctx, holdID, nil)
}

// ReleaseExpiredHold is ReleaseHold for the sweeper: it only releases the
// hold if, under its row lock, it is still unattached and expired before
// `before`. A hold whose order was saved meanwhile is left alone.
func (r *ReservationRepo) ReleaseExpiredHold(ctx context.Context, holdID string, before time.Time) (bool, error) {
	return r.release(ctx, holdID, &before)
}

func (r *ReservationRepo) release(ctx context.Context, holdID string, expiredBefore *time.Time) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var pid, size string
	var qty int
	err = tx.QueryRow(ctx, `
		SELECT product_id, size, qty FROM reservations
		WHERE id=$1 AND status='held'
		  AND ($2::timestamptz IS NULL OR (expires_at IS NOT NULL AND expires_at < $2))
		FOR UPDATE`, holdID, expiredBefore).Scan(&pid, &size, &qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// same lock order as DecrementSizeStock: product row before its sizes
	if _, err := lockProduct(ctx, tx, pid); err != nil {
		return false, err
	}

	if size != "" {
		if _, err := tx.Exec(ctx, `UPDATE product_sizes SET stock = stock + $3 WHERE product_id=$1 AND label=$2`, pid, size, qty); err != nil {
			return false, err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE products SET status='available', version=version+1, updated_at=now()
		WHERE id=$1 AND status='reserved'`, pid); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `UPDATE reservations SET status='released', expires_at=NULL WHERE id=$1`, holdID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// AttachHolds removes the expiry from an order's holds; the order row exists
// so the sweeper must leave them alone.
func (r *ReservationRepo) AttachHolds(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE reservations SET expires_at=NULL WHERE order_id=$1 AND status='held'`, orderID)
	return err
}

// ConfirmHolds flips every held hold of the order to confirmed and returns
// all confirmed holds of the order, including ones confirmed earlier.
func (r *ReservationRepo) ConfirmHolds(ctx context.Context, orderID string) ([]Hold, error) {
	if _, err := r.DB.Exec(ctx, `
		UPDATE reservations SET status='confirmed', expires_at=NULL
		WHERE order_id=$1 AND status='held'`, orderID); err != nil {
		return nil, err
	}
	rows, err := r.DB.Query(ctx, `SELECT `+holdColumns+` FROM reservations
		WHERE order_id=$1 AND status='confirmed' ORDER BY product_id, size`, orderID)
	if err != nil {
		return nil, err
	}
	return scanHolds(rows)
}

func (r *ReservationRepo) ExpiredHolds(ctx context.Context, before time.Time, limit int) ([]Hold, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+holdColumns+` FROM reservations
		WHERE status='held' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	return scanHolds(rows)
}

func (r *ReservationRepo) CountActiveHolds(ctx context.Context, productID string) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE product_id=$1 AND status='held'`, productID).Scan(&n)
	return n, err
}

func (r *ReservationRepo) HoldsForOrder(ctx context.Context, orderID string) ([]Hold, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+holdColumns+` FROM reservations
		WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	return scanHolds(rows)
}

// InventoryRepo is the catalog together with the hold ledger.
type InventoryRepo struct {
	*CatalogRepo
	*ReservationRepo
}

func NewInventoryRepo(db *pgxpool.Pool) InventoryRepo {
	return InventoryRepo{&CatalogRepo{DB: db}, &ReservationRepo{DB: db}}
}
