package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

type catalog struct {
	db *sql.DB
}

// NewCatalog создаёт каталог товаров поверх таблицы products.
func NewCatalog(store *Store) domain.Catalog {
	return &catalog{db: store.DB()}
}

func (c *catalog) Product(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product := domain.ProductSnapshot{ProductID: productID}
	err := c.db.QueryRowContext(ctx, `
		SELECT name, image_url, price_minor, currency
		FROM products
		WHERE product_id = $1
	`, productID).Scan(&product.Name, &product.ImageURL, &product.PriceMinor, &product.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductSnapshot{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.ProductSnapshot{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// UpsertProduct добавляет или обновляет товар.
func UpsertProduct(ctx context.Context, store *Store, product domain.ProductSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := store.DB().ExecContext(ctx, `
		INSERT INTO products (product_id, name, image_url, price_minor, currency)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (product_id) DO UPDATE
		SET name = EXCLUDED.name,
		    image_url = EXCLUDED.image_url,
		    price_minor = EXCLUDED.price_minor,
		    currency = EXCLUDED.currency
	`, product.ProductID, product.Name, product.ImageURL, product.PriceMinor, product.Currency)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

var _ domain.Catalog = (*catalog)(nil)
