package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepo is the Postgres catalog store. Every reservation-flavoured
// write takes an optional hold which is inserted in the same transaction as
// the compare-and-swap.
type CatalogRepo struct{ DB *pgxpool.Pool }

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const productColumns = `id, name, description, price_cents, images, condition, status, version,
	purchase_price_cents, paid_amount_cents, debt_cents, paid_at, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Images, &p.Condition, &p.Status, &p.Version,
		&p.PurchasePriceCents, &p.PaidAmountCents, &p.DebtCents, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getProduct(ctx context.Context, q querier, id string) (Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	ps := []Product{p}
	if err := loadSizes(ctx, q, ps); err != nil {
		return Product{}, err
	}
	return ps[0], nil
}

func loadSizes(ctx context.Context, q querier, ps []Product) error {
	if len(ps) == 0 {
		return nil
	}
	ids := make([]string, len(ps))
	idx := make(map[string]int, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
		idx[p.ID] = i
	}
	rows, err := q.Query(ctx, `
		SELECT product_id, label, stock FROM product_sizes
		WHERE product_id = ANY($1) ORDER BY product_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var pid string
		var s SizeStock
		if err := rows.Scan(&pid, &s.Label, &s.Stock); err != nil {
			return err
		}
		i := idx[pid]
		ps[i].Sizes = append(ps[i].Sizes, s)
	}
	return rows.Err()
}

func (r *CatalogRepo) GetProduct(ctx context.Context, id string) (Product, error) {
	return getProduct(ctx, r.DB, id)
}

// ListProducts returns the catalog newest first; empty status means all.
func (r *CatalogRepo) ListProducts(ctx context.Context, status ProductStatus) ([]Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		sql = `SELECT ` + productColumns + ` FROM products WHERE status=$1 ORDER BY created_at DESC`
		args = append(args, status)
	}
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, loadSizes(ctx, r.DB, out)
}

func insertHold(ctx context.Context, tx pgx.Tx, h *Hold) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reservations(id, order_id, product_id, size, qty, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'held', $6)`,
		h.ID, h.OrderID, h.ProductID, h.Size, h.Qty, h.ExpiresAt)
	return err
}

// CompareAndSwapStatus sets status to next only if it is currently expected.
func (r *CatalogRepo) CompareAndSwapStatus(ctx context.Context, id string, expected, next ProductStatus, hold *Hold) (bool, error) {
	if !CanTransitionProduct(expected, next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE products SET status=$3, version=version+1, updated_at=now(),
			paid_at = CASE WHEN $3::text = 'sold' THEN COALESCE(paid_at, now()) ELSE paid_at END
		WHERE id=$1 AND status=$2`, id, expected, next)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, nil
	}
	if hold != nil {
		if err := insertHold(ctx, tx, hold); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// lockProduct takes the row lock every stock-changing write of a product
// goes through, and returns the status under that lock.
func lockProduct(ctx context.Context, tx pgx.Tx, id string) (ProductStatus, error) {
	var st ProductStatus
	err := tx.QueryRow(ctx, `SELECT status FROM products WHERE id=$1 FOR UPDATE`, id).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return st, err
}

// DecrementSizeStock takes qty units of one size, only if the size still has
// exactly `expected` units and the product is available. When the last unit
// across all sizes is taken the product flips to reserved in the same write.
// The product row is locked first so two buyers taking the last units of
// different sizes see each other's decrement when summing the stock.
func (r *CatalogRepo) DecrementSizeStock(ctx context.Context, id, size string, expected, qty int, hold *Hold) (bool, error) {
	if qty < 1 {
		return false, fmt.Errorf("invalid qty %d", qty)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	st, err := lockProduct(ctx, tx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if st != ProductAvailable {
		return false, nil
	}
	ct, err := tx.Exec(ctx, `
		UPDATE product_sizes SET stock = stock - $4
		WHERE product_id=$1 AND label=$2 AND stock=$3 AND stock >= $4`, id, size, expected, qty)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, nil
	}
	var left int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(stock), 0) FROM product_sizes WHERE product_id=$1`, id).Scan(&left); err != nil {
		return false, err
	}
	next := ProductAvailable
	if left == 0 {
		next = ProductReserved
	}
	if _, err := tx.Exec(ctx, `
		UPDATE products SET status=$2, version=version+1, updated_at=now() WHERE id=$1`, id, next); err != nil {
		return false, err
	}
	if hold != nil {
		if err := insertHold(ctx, tx, hold); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *CatalogRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := ValidateProduct(p); err != nil {
		return Product{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO products(id, name, description, price_cents, images, condition, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'available')`,
		p.ID, p.Name, p.Description, p.PriceCents, p.Images, p.Condition); err != nil {
		return Product{}, err
	}
	for i, s := range p.Sizes {
		if _, err := tx.Exec(ctx, `INSERT INTO product_sizes(product_id, label, position, stock) VALUES ($1,$2,$3,$4)`,
			p.ID, s.Label, i, s.Stock); err != nil {
			return Product{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, err
	}
	return r.GetProduct(ctx, p.ID)
}

// UpdateProduct edits display attributes and price. Stock and status are
// only changed through the reservation protocol, RestockSize and repost.
func (r *CatalogRepo) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	cur, err := r.GetProduct(ctx, p.ID)
	if err != nil {
		return Product{}, err
	}
	p.Sizes = cur.Sizes
	if err := ValidateProduct(p); err != nil {
		return Product{}, err
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if _, err := r.DB.Exec(ctx, `
		UPDATE products SET name=$2, description=$3, price_cents=$4, images=$5, condition=$6,
			version=version+1, updated_at=now()
		WHERE id=$1`, p.ID, p.Name, p.Description, p.PriceCents, p.Images, p.Condition); err != nil {
		return Product{}, err
	}
	return r.GetProduct(ctx, p.ID)
}

// RestockSize adds qty units to a size (creating it if new). A sized product
// that ran out becomes available again.
func (r *CatalogRepo) RestockSize(ctx context.Context, id, size string, qty int) (Product, error) {
	if qty < 1 || size == "" {
		return Product{}, fmt.Errorf("%w: restock needs a size and a positive qty", ErrInvalidProduct)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockProduct(ctx, tx, id); err != nil {
		return Product{}, err
	}
	p, err := getProduct(ctx, tx, id)
	if err != nil {
		return Product{}, err
	}
	if !p.HasSizes() {
		return Product{}, fmt.Errorf("%w: product has no sizes", ErrInvalidProduct)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO product_sizes(product_id, label, position, stock)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position)+1, 0) FROM product_sizes WHERE product_id=$1), $3)
		ON CONFLICT (product_id, label) DO UPDATE SET stock = product_sizes.stock + EXCLUDED.stock`,
		id, size, qty); err != nil {
		return Product{}, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE products SET version=version+1, updated_at=now(),
			status = 'available'
		WHERE id=$1`, id); err != nil {
		return Product{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, err
	}
	return r.GetProduct(ctx, id)
}

// DeleteProduct removes a product that no order references. Historical
// orders are never deleted to make room for a catalog change.
func (r *CatalogRepo) DeleteProduct(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var used bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM order_items WHERE product_id=$1)
		    OR EXISTS(SELECT 1 FROM reservations WHERE product_id=$1 AND status='held')`, id).Scan(&used); err != nil {
		return err
	}
	if used {
		return ErrProductInUse
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE product_id=$1`, id); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *CatalogRepo) SetPurchasePrice(ctx context.Context, id string, cents int64) error {
	if cents < 0 {
		return fmt.Errorf("%w: negative purchase price", ErrInvalidAmount)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE products SET purchase_price_cents=$2, updated_at=now() WHERE id=$1`, id, cents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPayment books a customer payment against a sold product.
func (r *CatalogRepo) RecordPayment(ctx context.Context, id string, amount int64) (AccountingRow, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return AccountingRow{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var row AccountingRow
	err = tx.QueryRow(ctx, `
		SELECT id, name, price_cents, purchase_price_cents, paid_amount_cents
		FROM products WHERE id=$1 FOR UPDATE`, id).
		Scan(&row.ProductID, &row.Name, &row.PriceCents, &row.PurchasePriceCents, &row.PaidAmountCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountingRow{}, ErrNotFound
	}
	if err != nil {
		return AccountingRow{}, err
	}
	paid, debt, err := ApplyPayment(row.PriceCents, row.PaidAmountCents, amount)
	if err != nil {
		return AccountingRow{}, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE products SET paid_amount_cents=$2, debt_cents=$3, paid_at=COALESCE(paid_at, now()), updated_at=now()
		WHERE id=$1`, id, paid, debt); err != nil {
		return AccountingRow{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return AccountingRow{}, err
	}
	row.PaidAmountCents, row.DebtCents = paid, debt
	return row, nil
}

func (r *CatalogRepo) SoldProducts(ctx context.Context) ([]AccountingRow, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, price_cents, purchase_price_cents, paid_amount_cents, debt_cents
		FROM products WHERE status='sold' ORDER BY paid_at DESC NULLS LAST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountingRow
	for rows.Next() {
		var a AccountingRow
		if err := rows.Scan(&a.ProductID, &a.Name, &a.PriceCents, &a.PurchasePriceCents, &a.PaidAmountCents, &a.DebtCents); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
