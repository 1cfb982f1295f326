package cartsync

import (
	"time"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// coalescer склеивает быстрые изменения количества в одну запись.
// Слот PendingEdit один на всю корзину: правка другой позиции вытесняет
// сетевую отправку предыдущей (её локальный эффект остаётся в снимке).
// Не потокобезопасен, защищается мьютексом Engine.
type coalescer struct {
	scheduler domain.Scheduler
	delay     time.Duration

	pending    *domain.PendingEdit
	base       domain.Cart
	timer      domain.Timer
	generation uint64
}

func newCoalescer(scheduler domain.Scheduler, delay time.Duration) *coalescer {
	return &coalescer{scheduler: scheduler, delay: delay}
}

// arm перезаписывает слот и перевзводит таймер. base хранит снимок до первой правки
// текущей серии; он сохраняется, пока серия не отправлена или не отменена.
func (c *coalescer) arm(edit domain.PendingEdit, base domain.Cart, fire func(generation uint64)) (superseded *domain.PendingEdit) {
	if c.pending == nil {
		c.base = base
	} else {
		prev := *c.pending
		superseded = &prev
	}
	if c.timer != nil {
		c.timer.Stop()
	}

	c.generation++
	generation := c.generation
	c.pending = &edit
	c.timer = c.scheduler.AfterFunc(c.delay, func() { fire(generation) })
	return superseded
}

// rebase переносит незавершённую серию на свежую авторитетную корзину. Отклонённая
// запись откатится к этой корзине, а не к снимку до первой правки, поэтому изменения,
// подтверждённые сервером внутри окна debounce, не теряются. Возвращает снимок для
// отображения: серверная корзина с ожидающим количеством поверх. Если позиции на
// сервере больше нет, правка отменяется.
func (c *coalescer) rebase(server domain.Cart, now time.Time) (domain.Cart, bool) {
	if c.pending == nil {
		return server, false
	}
	item, idx, ok := server.FindProduct(c.pending.ProductID)
	if !ok {
		c.cancel()
		return server, true
	}
	c.base = server
	c.pending.ItemID = item.ItemID
	return applySetQuantity(server, idx, c.pending.Quantity, now), false
}

// take забирает правку при срабатывании таймера; устаревшие поколения игнорируются.
func (c *coalescer) take(generation uint64) (domain.PendingEdit, domain.Cart, bool) {
	if c.pending == nil || generation != c.generation {
		return domain.PendingEdit{}, domain.Cart{}, false
	}
	edit := *c.pending
	base := c.base
	c.reset()
	return edit, base, true
}

// cancelFor отменяет отложенную правку, если она относится к productID.
func (c *coalescer) cancelFor(productID string) bool {
	if c.pending == nil || c.pending.ProductID != productID {
		return false
	}
	c.cancel()
	return true
}

func (c *coalescer) cancel() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.generation++
	c.reset()
}

func (c *coalescer) reset() {
	c.pending = nil
	c.timer = nil
	c.base = domain.Cart{}
}

func (c *coalescer) current() (domain.PendingEdit, bool) {
	if c.pending == nil {
		return domain.PendingEdit{}, false
	}
	return *c.pending, true
}
