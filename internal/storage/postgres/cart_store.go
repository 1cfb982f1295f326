package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

const (
	opTimeout       = 5 * time.Second
	defaultCurrency = "USD"
)

type cartStore struct {
	store *Store
	now   func() time.Time
}

// NewCartStore создаёт PostgreSQL-реализацию CartStore.
// Каждая запись идёт в транзакции с блокировкой строки carts и поднимает revision.
func NewCartStore(store *Store) domain.CartStore {
	return &cartStore{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *cartStore) Get(ctx context.Context, ownerID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		cart      domain.Cart
		currency  string
		updatedAt sql.NullTime
	)
	err := s.store.DB().QueryRowContext(ctx, `
		SELECT currency, revision, updated_at
		FROM carts
		WHERE owner_id = $1
	`, ownerID).Scan(&currency, &cart.Revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{Items: []domain.CartItem{}, Currency: defaultCurrency}, nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	cart.Currency = currency
	if updatedAt.Valid {
		cart.UpdatedAt = updatedAt.Time.UTC()
	}

	cart.Items, err = loadItems(ctx, s.store.DB(), ownerID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Recalculate()
	return cart, nil
}

func (s *cartStore) AddItem(ctx context.Context, ownerID string, product domain.ProductSnapshot, quantity int32, expectedRevision int64) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}
	currency := product.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	return s.write(ctx, ownerID, currency, expectedRevision, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (
				owner_id, product_id, item_id, quantity, price_minor,
				product_name, product_image_url, product_currency
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (owner_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		`,
			ownerID, product.ProductID, uuid.NewString(), quantity, product.PriceMinor,
			product.Name, product.ImageURL, currency,
		)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}
		return nil
	})
}

func (s *cartStore) SetQuantity(ctx context.Context, ownerID, productID string, quantity int32, expectedRevision int64) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	return s.write(ctx, ownerID, defaultCurrency, expectedRevision, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = $3
			WHERE owner_id = $1 AND product_id = $2
		`, ownerID, productID, quantity)
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return requireAffected(res)
	})
}

func (s *cartStore) RemoveItem(ctx context.Context, ownerID, productID string, expectedRevision int64) (domain.Cart, error) {
	return s.write(ctx, ownerID, defaultCurrency, expectedRevision, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE owner_id = $1 AND product_id = $2
		`, ownerID, productID)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		return requireAffected(res)
	})
}

func (s *cartStore) Clear(ctx context.Context, ownerID string, expectedRevision int64) (domain.Cart, error) {
	return s.write(ctx, ownerID, defaultCurrency, expectedRevision, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE owner_id = $1`, ownerID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		return nil
	})
}

func (s *cartStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// write блокирует строку корзины, сверяет ревизию, применяет mutate и поднимает revision.
func (s *cartStore) write(ctx context.Context, ownerID, currency string, expectedRevision int64, mutate func(context.Context, *sql.Tx) error) (cart domain.Cart, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO carts (owner_id, currency, revision, updated_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID, currency, s.now()); err != nil {
		return domain.Cart{}, fmt.Errorf("ensure cart: %w", err)
	}

	if err = tx.QueryRowContext(ctx, `
		SELECT currency, revision FROM carts WHERE owner_id = $1 FOR UPDATE
	`, ownerID).Scan(&cart.Currency, &cart.Revision); err != nil {
		return domain.Cart{}, fmt.Errorf("lock cart: %w", err)
	}
	if expectedRevision != 0 && expectedRevision != cart.Revision {
		err = domain.ErrConflict
		return domain.Cart{}, err
	}

	if err = mutate(ctx, tx); err != nil {
		return domain.Cart{}, err
	}

	cart.UpdatedAt = s.now()
	if err = tx.QueryRowContext(ctx, `
		UPDATE carts SET revision = revision + 1, updated_at = $2
		WHERE owner_id = $1
		RETURNING revision
	`, ownerID, cart.UpdatedAt).Scan(&cart.Revision); err != nil {
		return domain.Cart{}, fmt.Errorf("bump cart revision: %w", err)
	}

	if cart.Items, err = loadItems(ctx, tx, ownerID); err != nil {
		return domain.Cart{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Cart{}, fmt.Errorf("commit tx: %w", err)
	}

	cart.Recalculate()
	return cart, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadItems(ctx context.Context, q queryer, ownerID string) ([]domain.CartItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_id, product_id, quantity, price_minor, product_name, product_image_url, product_currency
		FROM cart_items
		WHERE owner_id = $1
		ORDER BY position ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var (
			item    domain.CartItem
			product domain.ProductSnapshot
		)
		if err := rows.Scan(&item.ItemID, &item.ProductID, &item.Quantity, &item.PriceMinor,
			&product.Name, &product.ImageURL, &product.Currency); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		product.ProductID = item.ProductID
		product.PriceMinor = item.PriceMinor
		item.Product = &product
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

var _ domain.CartStore = (*cartStore)(nil)
