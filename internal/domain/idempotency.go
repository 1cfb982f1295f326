package domain

import (
	"context"
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что мутация корзины принята и ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что мутация применена и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что мутация отклонена; сохранённый ответ повторяется как есть.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит результат мутации корзины, выполненной с Idempotency-Key.
// Key уже включает владельца корзины (см. IdempotencyScope).
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyScope привязывает клиентский ключ к владельцу корзины,
// чтобы одинаковые ключи разных пользователей не пересекались.
func IdempotencyScope(ownerID, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return ownerID + ":" + key
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey кладёт ключ идемпотентности мутации в контекст вызова удалённого сервиса.
// Движок использует идентификатор операции очереди, поэтому повторная отправка после
// обрыва связи не применяет изменение дважды.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFromContext возвращает ключ, положенный WithIdempotencyKey.
func IdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKeyCtx{}).(string)
	return key, ok && key != ""
}
