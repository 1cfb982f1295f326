package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartsync/internal/storage/postgres/pgtest"
)

// cartTables очищаются перед каждым тестом. Каталог products заполняет миграция, его не трогаем.
var cartTables = []string{"cart_idempotency_keys", "cart_items", "carts"}

// connectTestStore открывает Store без миграций; схема на усмотрение теста.
func connectTestStore(t *testing.T) *Store {
	t.Helper()

	store, _ := pgtest.Connect(t, func(ctx context.Context, dsn string) (*Store, error) {
		return Open(ctx, dsn)
	})
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// cartTestStore возвращает Store с актуальной схемой, засеянным каталогом и пустыми корзинами.
func cartTestStore(t *testing.T) *Store {
	t.Helper()

	store := connectTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0), "migrate up")
	_, err := store.DB().ExecContext(ctx,
		"TRUNCATE TABLE "+strings.Join(cartTables, ", ")+" RESTART IDENTITY CASCADE")
	require.NoError(t, err, "reset cart tables")
	return store
}
