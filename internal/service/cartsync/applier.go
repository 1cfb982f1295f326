package cartsync

import (
	"time"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// Функции оптимистичного применения работают над копией снимка и никогда не
// пересчитывают TotalMinor целиком: сумма корректируется только приращениями,
// авторитетное значение приходит с сервером.

func applyAdd(cart domain.Cart, productID string, quantity int32, product *domain.ProductSnapshot, newItemID func() string, now time.Time) domain.Cart {
	next := cart.Clone()

	if item, idx, ok := next.FindProduct(productID); ok {
		item.Quantity += quantity
		item.SubtotalMinor = item.PriceMinor * int64(item.Quantity)
		next.Items[idx] = item
		next.TotalMinor += item.PriceMinor * int64(quantity)
	} else {
		item := domain.CartItem{
			ItemID:    newItemID(),
			ProductID: productID,
			Quantity:  quantity,
		}
		if product != nil {
			snapshot := *product
			item.Product = &snapshot
			item.PriceMinor = product.PriceMinor
			if next.Currency == "" {
				next.Currency = product.Currency
			}
		}
		item.SubtotalMinor = item.PriceMinor * int64(quantity)
		next.Items = append(next.Items, item)
		next.TotalMinor += item.SubtotalMinor
	}

	next.ItemCount += quantity
	next.UpdatedAt = now
	return next
}

func applySetQuantity(cart domain.Cart, idx int, quantity int32, now time.Time) domain.Cart {
	next := cart.Clone()

	item := next.Items[idx]
	delta := quantity - item.Quantity
	item.Quantity = quantity
	item.SubtotalMinor = item.PriceMinor * int64(quantity)
	next.Items[idx] = item

	next.ItemCount += delta
	next.TotalMinor += item.PriceMinor * int64(delta)
	next.UpdatedAt = now
	return next
}

func applyRemove(cart domain.Cart, idx int, now time.Time) domain.Cart {
	next := cart.Clone()

	item := next.Items[idx]
	next.Items = append(next.Items[:idx], next.Items[idx+1:]...)
	next.ItemCount -= item.Quantity
	next.TotalMinor -= item.SubtotalMinor
	next.UpdatedAt = now
	return next
}

func applyClear(cart domain.Cart, now time.Time) domain.Cart {
	return domain.Cart{
		Items:     []domain.CartItem{},
		Currency:  cart.Currency,
		UpdatedAt: now,
		Revision:  cart.Revision,
	}
}
