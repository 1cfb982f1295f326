package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/memory"
)

var tea = domain.ProductSnapshot{ProductID: "sku-tea", Name: "Green tea", PriceMinor: 450, Currency: "USD"}

func TestCartStore_GetMissingReturnsEmptyCart(t *testing.T) {
	store := memory.NewCartStore()

	cart, err := store.Get(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(cart.Items) != 0 || cart.Revision != 0 || cart.Currency != "USD" {
		t.Fatalf("unexpected empty cart: %+v", cart)
	}
}

func TestCartStore_AddMergesAndRecalculates(t *testing.T) {
	store := memory.NewCartStore()
	ctx := context.Background()

	if _, err := store.AddItem(ctx, "owner-1", tea, 2, 0); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	cart, err := store.AddItem(ctx, "owner-1", tea, 1, 1)
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected merged item, got %d items", len(cart.Items))
	}
	if cart.ItemCount != 3 || cart.TotalMinor != 1350 || cart.Items[0].SubtotalMinor != 1350 {
		t.Fatalf("unexpected totals: %+v", cart)
	}
	if cart.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", cart.Revision)
	}
	if cart.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be set")
	}
}

func TestCartStore_StaleRevisionConflicts(t *testing.T) {
	store := memory.NewCartStore()
	ctx := context.Background()

	if _, err := store.AddItem(ctx, "owner-1", tea, 1, 0); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := store.SetQuantity(ctx, "owner-1", tea.ProductID, 5, 1); err != nil {
		t.Fatalf("set quantity failed: %v", err)
	}

	_, err := store.SetQuantity(ctx, "owner-1", tea.ProductID, 7, 1)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	_, err = store.Clear(ctx, "owner-1", 1)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on clear, got %v", err)
	}
}

func TestCartStore_ValidationErrors(t *testing.T) {
	store := memory.NewCartStore()
	ctx := context.Background()

	if _, err := store.AddItem(ctx, "owner-1", tea, 0, 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if _, err := store.SetQuantity(ctx, "owner-1", "unknown", 1, 0); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if _, err := store.RemoveItem(ctx, "owner-1", "unknown", 0); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found on remove, got %v", err)
	}
}

func TestCartStore_RemoveAndClear(t *testing.T) {
	store := memory.NewCartStore()
	ctx := context.Background()
	mug := domain.ProductSnapshot{ProductID: "sku-mug", PriceMinor: 900, Currency: "USD"}

	if _, err := store.AddItem(ctx, "owner-1", tea, 1, 0); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := store.AddItem(ctx, "owner-1", mug, 2, 0); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	cart, err := store.RemoveItem(ctx, "owner-1", tea.ProductID, 0)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(cart.Items) != 1 || cart.TotalMinor != 1800 {
		t.Fatalf("unexpected cart after remove: %+v", cart)
	}

	cart, err = store.Clear(ctx, "owner-1", cart.Revision)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(cart.Items) != 0 || cart.ItemCount != 0 || cart.TotalMinor != 0 {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
	if cart.Revision != 4 {
		t.Fatalf("expected revision 4, got %d", cart.Revision)
	}
}

func TestCartStore_ReturnsCopies(t *testing.T) {
	store := memory.NewCartStore()
	ctx := context.Background()

	cart, err := store.AddItem(ctx, "owner-1", tea, 1, 0)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	cart.Items[0].Quantity = 99
	cart.Items[0].Product.Name = "mutated"

	stored, _ := store.Get(ctx, "owner-1")
	if stored.Items[0].Quantity != 1 || stored.Items[0].Product.Name != tea.Name {
		t.Fatalf("store state leaked: %+v", stored.Items[0])
	}
}
