package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

const defaultCurrency = "USD"

// cartStoreInMemory — in-memory хранилище авторитетных корзин с ревизиями (optimistic locking).
type cartStoreInMemory struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
	now   func() time.Time
}

// NewCartStore возвращает in-memory хранилище для локальной разработки и тестов.
func NewCartStore() *cartStoreInMemory {
	return &cartStoreInMemory{
		carts: make(map[string]domain.Cart),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает корзину владельца; отсутствующая корзина отдаётся пустой с ревизией 0.
func (s *cartStoreInMemory) Get(_ context.Context, ownerID string) (domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[ownerID]
	if !ok {
		return domain.Cart{Items: []domain.CartItem{}, Currency: defaultCurrency}, nil
	}
	return cart.Clone(), nil
}

// AddItem добавляет товар или увеличивает количество существующей позиции.
func (s *cartStoreInMemory) AddItem(_ context.Context, ownerID string, product domain.ProductSnapshot, quantity int32, expectedRevision int64) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.loadForWrite(ownerID, expectedRevision)
	if err != nil {
		return domain.Cart{}, err
	}

	if item, idx, ok := cart.FindProduct(product.ProductID); ok {
		item.Quantity += quantity
		cart.Items[idx] = item
	} else {
		snapshot := product
		cart.Items = append(cart.Items, domain.CartItem{
			ItemID:     uuid.NewString(),
			ProductID:  product.ProductID,
			Quantity:   quantity,
			PriceMinor: product.PriceMinor,
			Product:    &snapshot,
		})
		if cart.Currency == "" && product.Currency != "" {
			cart.Currency = product.Currency
		}
	}

	return s.save(ownerID, cart), nil
}

// SetQuantity выставляет количество позиции.
func (s *cartStoreInMemory) SetQuantity(_ context.Context, ownerID, productID string, quantity int32, expectedRevision int64) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.loadForWrite(ownerID, expectedRevision)
	if err != nil {
		return domain.Cart{}, err
	}
	item, idx, ok := cart.FindProduct(productID)
	if !ok {
		return domain.Cart{}, domain.ErrProductNotFound
	}
	item.Quantity = quantity
	cart.Items[idx] = item

	return s.save(ownerID, cart), nil
}

// RemoveItem удаляет позицию товара.
func (s *cartStoreInMemory) RemoveItem(_ context.Context, ownerID, productID string, expectedRevision int64) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.loadForWrite(ownerID, expectedRevision)
	if err != nil {
		return domain.Cart{}, err
	}
	_, idx, ok := cart.FindProduct(productID)
	if !ok {
		return domain.Cart{}, domain.ErrProductNotFound
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)

	return s.save(ownerID, cart), nil
}

// Clear удаляет все позиции корзины.
func (s *cartStoreInMemory) Clear(_ context.Context, ownerID string, expectedRevision int64) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.loadForWrite(ownerID, expectedRevision)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = []domain.CartItem{}

	return s.save(ownerID, cart), nil
}

// Ping всегда успешен для in-memory хранилища.
func (s *cartStoreInMemory) Ping(context.Context) error {
	return nil
}

// loadForWrite возвращает копию корзины для изменения, проверяя ожидаемую ревизию.
func (s *cartStoreInMemory) loadForWrite(ownerID string, expectedRevision int64) (domain.Cart, error) {
	cart, ok := s.carts[ownerID]
	if !ok {
		cart = domain.Cart{Items: []domain.CartItem{}, Currency: defaultCurrency}
	}
	if expectedRevision != 0 && expectedRevision != cart.Revision {
		return domain.Cart{}, domain.ErrConflict
	}
	return cart.Clone(), nil
}

// save пересчитывает итоги (суммы считает только сервер), поднимает ревизию и сохраняет копию.
func (s *cartStoreInMemory) save(ownerID string, cart domain.Cart) domain.Cart {
	cart.Recalculate()
	cart.Revision++
	cart.UpdatedAt = s.now()
	s.carts[ownerID] = cart
	return cart.Clone()
}

var _ domain.CartStore = (*cartStoreInMemory)(nil)
