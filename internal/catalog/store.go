// Package catalog reads the price and availability data the pricing engine
// needs for products and packs.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/maison-parfum/internal/db"
	"github.com/noah-isme/maison-parfum/internal/pricing"
)

// Kind distinguishes single products from curated packs.
type Kind string

const (
	KindProduct Kind = "product"
	KindPack    Kind = "pack"
)

// ErrInsufficientStock is returned when a stock reservation cannot be met.
var ErrInsufficientStock = errors.New("catalog: insufficient stock")

// Item is a purchasable product or pack as priced by the engine.
type Item struct {
	ID           string
	Kind         Kind
	Name         string
	BasePrice    pricing.Money
	PriceBySize  map[string]pricing.Money
	Stock        *int
	PromoAllowed bool
}

// Line builds a pricing line for quantity units of the chosen size.
func (it Item) Line(size string, quantity int) pricing.Line {
	return pricing.Line{
		ProductID:       it.ID,
		UnitPriceBySize: it.PriceBySize,
		BasePrice:       it.BasePrice,
		SelectedSize:    size,
		Quantity:        quantity,
		Stock:           it.Stock,
	}
}

// Store reads catalog rows through pgx. DB may be a pool or a transaction.
type Store struct {
	DB db.DBTX
}

const itemsSQL = `
SELECT id::text, 'product', name, base_price, price_by_size, stock, promo_allowed
FROM products
WHERE is_active AND id::text = ANY($1)
UNION ALL
SELECT id::text, 'pack', name, price, '{}'::jsonb, stock, promo_allowed
FROM packs
WHERE is_active AND id::text = ANY($1)`

// Items returns the active items among ids keyed by id. Unknown ids are
// simply absent from the result.
func (s Store) Items(ctx context.Context, ids []string) (map[string]Item, error) {
	out := make(map[string]Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, itemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: query items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("catalog: scan items: %w", err)
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

const excludedSQL = `
SELECT id::text, 'product', name, base_price, price_by_size, stock, promo_allowed
FROM products
WHERE NOT promo_allowed AND id::text = ANY($1)
UNION ALL
SELECT id::text, 'pack', name, price, '{}'::jsonb, stock, promo_allowed
FROM packs
WHERE NOT promo_allowed AND id::text = ANY($1)
ORDER BY 3`

// FindExcluded returns the items among ids that may not be combined with a
// promo code, ordered by name.
func (s Store) FindExcluded(ctx context.Context, ids []string) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, excludedSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: query excluded items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("catalog: scan excluded items: %w", err)
	}
	return items, nil
}

// ReserveStock decrements tracked stock for an item. Items without stock
// tracking always succeed.
func (s Store) ReserveStock(ctx context.Context, item Item, quantity int) error {
	table := "products"
	if item.Kind == KindPack {
		table = "packs"
	}
	tag, err := s.DB.Exec(ctx,
		`UPDATE `+table+` SET stock = stock - $2, updated_at = now()
		 WHERE id::text = $1 AND (stock IS NULL OR stock >= $2)`,
		item.ID, quantity)
	if err != nil {
		return fmt.Errorf("catalog: reserve stock %s: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientStock, item.ID)
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (Item, error) {
	var (
		it    Item
		kind  string
		stock pgtype.Int4
	)
	if err := row.Scan(&it.ID, &kind, &it.Name, &it.BasePrice, &it.PriceBySize, &stock, &it.PromoAllowed); err != nil {
		return Item{}, err
	}
	it.Kind = Kind(kind)
	if stock.Valid {
		v := int(stock.Int32)
		it.Stock = &v
	}
	return it, nil
}
