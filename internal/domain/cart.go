package domain

import "time"

// ProductSnapshot — данные карточки товара, сохранённые вместе с позицией корзины для отображения.
type ProductSnapshot struct {
	ProductID  string
	Name       string
	ImageURL   string
	PriceMinor int64
	Currency   string
}

// CartItem представляет одну позицию корзины.
type CartItem struct {
	// Стабильный локальный ключ позиции.
	ItemID string
	// Идентификатор товара в каталоге, по нему адресуются вызовы удалённого сервиса.
	ProductID string
	// Количество единиц товара.
	Quantity int32
	// Цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// SubtotalMinor в локально выведенном состоянии всегда равен PriceMinor * Quantity,
	// иначе берётся из ответа сервера как есть.
	SubtotalMinor int64
	// Опциональный снимок карточки товара.
	Product *ProductSnapshot
}

// Cart агрегирует состояние корзины одной сессии.
type Cart struct {
	Items      []CartItem
	TotalMinor int64
	Currency   string
	ItemCount  int32
	UpdatedAt  time.Time
	// Ревизия серверной копии, с которой снят снимок (0, если ещё не синхронизировался).
	Revision int64
}

// Clone возвращает глубокую копию корзины.
func (c Cart) Clone() Cart {
	out := c
	if c.Items == nil {
		return out
	}
	out.Items = make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		if item.Product != nil {
			snapshot := *item.Product
			item.Product = &snapshot
		}
		out.Items[i] = item
	}
	return out
}

// FindItem ищет позицию по локальному ключу.
func (c Cart) FindItem(itemID string) (CartItem, int, bool) {
	for i, item := range c.Items {
		if item.ItemID == itemID {
			return item, i, true
		}
	}
	return CartItem{}, -1, false
}

// FindProduct ищет позицию по идентификатору товара.
func (c Cart) FindProduct(productID string) (CartItem, int, bool) {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return item, i, true
		}
	}
	return CartItem{}, -1, false
}

// CountItems возвращает сумму количеств по всем позициям.
func (c Cart) CountItems() int32 {
	var total int32
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Recalculate выводит подытоги, количество и сумму из позиций.
// Вызывается только на стороне авторитетного хранилища.
func (c *Cart) Recalculate() {
	var total int64
	var count int32
	for i := range c.Items {
		item := &c.Items[i]
		item.SubtotalMinor = item.PriceMinor * int64(item.Quantity)
		total += item.SubtotalMinor
		count += item.Quantity
	}
	c.TotalMinor = total
	c.ItemCount = count
}

// ValidateInvariants проверяет инварианты локально выведенной корзины и возвращает список замечаний.
// TotalMinor не сверяется: локально сумма корректируется только приращениями.
func (c Cart) ValidateInvariants() []error {
	var errs []error

	if c.ItemCount != c.CountItems() {
		errs = append(errs, ErrItemCountMismatch)
	}
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrInvalidQuantity)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.SubtotalMinor != item.PriceMinor*int64(item.Quantity) {
			errs = append(errs, ErrSubtotalMismatch)
		}
	}

	return errs
}
