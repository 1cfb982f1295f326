package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// catalogInMemory — справочник товаров для серверной корзины.
type catalogInMemory struct {
	mu       sync.RWMutex
	products map[string]domain.ProductSnapshot
}

// NewCatalog создаёт каталог с заданными товарами.
func NewCatalog(products ...domain.ProductSnapshot) *catalogInMemory {
	c := &catalogInMemory{products: make(map[string]domain.ProductSnapshot, len(products))}
	for _, p := range products {
		c.products[p.ProductID] = p
	}
	return c
}

// Put добавляет или заменяет товар.
func (c *catalogInMemory) Put(product domain.ProductSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ProductID] = product
}

// Product возвращает товар или ErrProductNotFound.
func (c *catalogInMemory) Product(_ context.Context, productID string) (domain.ProductSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok {
		return domain.ProductSnapshot{}, domain.ErrProductNotFound
	}
	return p, nil
}

// DemoProducts содержит небольшой ассортимент для локального запуска сервиса.
func DemoProducts() []domain.ProductSnapshot {
	return []domain.ProductSnapshot{
		{ProductID: "sku-tea", Name: "Green tea 100g", PriceMinor: 450, Currency: "USD"},
		{ProductID: "sku-coffee", Name: "Coffee beans 250g", PriceMinor: 1290, Currency: "USD"},
		{ProductID: "sku-mug", Name: "Ceramic mug", PriceMinor: 900, Currency: "USD"},
		{ProductID: "sku-kettle", Name: "Electric kettle", PriceMinor: 3490, Currency: "USD"},
	}
}

var _ domain.Catalog = (*catalogInMemory)(nil)
