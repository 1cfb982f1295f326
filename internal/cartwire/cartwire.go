// Package cartwire описывает JSON-представление корзины, общее для HTTP API сервиса и его клиента.
// Денежные суммы передаются в минимальных единицах валюты.
package cartwire

import (
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// HeaderIfMatch и HeaderETag переносят ревизию корзины.
const (
	HeaderIfMatch        = "If-Match"
	HeaderETag           = "ETag"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Product описывает снимок карточки товара.
type Product struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Price     int64  `json:"price"`
	Currency  string `json:"currency"`
}

// Item описывает позицию корзины.
type Item struct {
	ItemID    string   `json:"itemId"`
	ProductID string   `json:"productId"`
	Quantity  int32    `json:"quantity"`
	Price     int64    `json:"price"`
	Subtotal  int64    `json:"subtotal"`
	Product   *Product `json:"product,omitempty"`
}

// Cart описывает корзину целиком.
type Cart struct {
	Items       []Item    `json:"items"`
	TotalAmount int64     `json:"totalAmount"`
	Currency    string    `json:"currency"`
	ItemCount   int32     `json:"itemCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Revision    int64     `json:"revision"`
}

// AddItemRequest задаёт тело POST /api/cart/items.
type AddItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
}

// UpdateItemRequest задаёт тело PUT /api/cart/items/{productId}.
type UpdateItemRequest struct {
	Quantity int32 `json:"quantity"`
}

// ErrorResponse задаёт тело любого ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromDomain переводит доменную корзину в DTO.
func FromDomain(cart domain.Cart) Cart {
	out := Cart{
		Items:       make([]Item, 0, len(cart.Items)),
		TotalAmount: cart.TotalMinor,
		Currency:    cart.Currency,
		ItemCount:   cart.ItemCount,
		UpdatedAt:   cart.UpdatedAt,
		Revision:    cart.Revision,
	}
	for _, item := range cart.Items {
		wire := Item{
			ItemID:    item.ItemID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.PriceMinor,
			Subtotal:  item.SubtotalMinor,
		}
		if item.Product != nil {
			wire.Product = &Product{
				ProductID: item.Product.ProductID,
				Name:      item.Product.Name,
				ImageURL:  item.Product.ImageURL,
				Price:     item.Product.PriceMinor,
				Currency:  item.Product.Currency,
			}
		}
		out.Items = append(out.Items, wire)
	}
	return out
}

// ToDomain переводит DTO в доменную корзину. Значения берутся как есть, без пересчёта.
func (c Cart) ToDomain() domain.Cart {
	out := domain.Cart{
		TotalMinor: c.TotalAmount,
		Currency:   c.Currency,
		ItemCount:  c.ItemCount,
		UpdatedAt:  c.UpdatedAt,
		Revision:   c.Revision,
	}
	if len(c.Items) == 0 {
		return out
	}
	out.Items = make([]domain.CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		d := domain.CartItem{
			ItemID:        item.ItemID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			PriceMinor:    item.Price,
			SubtotalMinor: item.Subtotal,
		}
		if item.Product != nil {
			d.Product = &domain.ProductSnapshot{
				ProductID:  item.Product.ProductID,
				Name:       item.Product.Name,
				ImageURL:   item.Product.ImageURL,
				PriceMinor: item.Product.Price,
				Currency:   item.Product.Currency,
			}
		}
		out.Items = append(out.Items, d)
	}
	return out
}

// FormatRevision возвращает значение ETag для ревизии.
func FormatRevision(revision int64) string {
	return strconv.Quote(strconv.FormatInt(revision, 10))
}

// ParseRevision разбирает значение If-Match / ETag. Пустое значение и "*" дают 0.
func ParseRevision(value string) (int64, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "W/")
	if value == "" || value == "*" {
		return 0, nil
	}
	value = strings.Trim(value, `"`)
	revision, err := strconv.ParseInt(value, 10, 64)
	if err != nil || revision < 0 {
		return 0, domain.ErrInvalidRevision
	}
	return revision, nil
}
