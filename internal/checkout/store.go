package checkout

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/db"
	"github.com/noah-isme/maison-parfum/internal/promo"
)

// PGTransactor runs checkouts in a Postgres transaction.
type PGTransactor struct {
	Pool *pgxpool.Pool
}

// WithinTx implements Transactor. Promo lookups inside the transaction lock
// the code row.
func (t PGTransactor) WithinTx(ctx context.Context, fn func(Stores) error) error {
	tx, err := t.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin checkout tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	stores := Stores{
		Catalog: catalog.Store{DB: tx},
		Promos:  promo.PGStore{DB: tx, ForUpdate: true},
		Orders:  PGOrders{DB: tx},
	}
	if err := fn(stores); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit checkout tx: %w", err)
	}
	return nil
}

// PGOrders writes orders and their lines.
type PGOrders struct {
	DB db.DBTX
}

// Insert implements OrderStore.
func (s PGOrders) Insert(ctx context.Context, o Order) error {
	promoID := pgtype.Text{String: o.PromoCodeID, Valid: o.PromoCodeID != ""}
	promoCode := pgtype.Text{String: o.PromoCode, Valid: o.PromoCode != ""}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO orders (id, user_id, email, status, currency, shipping_method,
			subtotal, shipping_cost, discount_amount, total, promo_code_id, promo_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::uuid, $12, $13)`,
		o.ID, o.UserID, o.Email, o.Status, o.Currency, o.ShippingMethod,
		o.Subtotal, o.ShippingCost, o.DiscountAmount, o.Total, promoID, promoCode, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, l := range o.Lines {
		if _, err := s.DB.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, selected_size, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, l.ProductID, l.Name, l.SelectedSize, l.Quantity, l.UnitPrice, l.LineTotal); err != nil {
			return fmt.Errorf("insert order item %s: %w", l.ProductID, err)
		}
	}
	return nil
}
