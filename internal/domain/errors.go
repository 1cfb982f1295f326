package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConnectivity — ответ от удалённого сервиса не был получен (сеть недоступна, таймаут).
	ErrConnectivity = errors.New("cart service unreachable")
	// ErrConflict — сервер отклонил изменение из-за параллельной модификации (HTTP 409).
	ErrConflict = errors.New("cart was modified by another session")
	// ErrItemNotFound — позиция с таким ключом отсутствует в локальной корзине.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrProductNotFound — товар отсутствует в каталоге или в серверной корзине.
	ErrProductNotFound = errors.New("product not found")
	// ErrQueueCapacityExceeded — в офлайн-очереди слишком много неотправленных изменений.
	ErrQueueCapacityExceeded = errors.New("too many pending changes")
	// ErrInvalidQuantity — количество должно быть больше нуля.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrItemPriceInvalid — цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// ErrItemCountMismatch — ItemCount не совпадает с суммой количеств.
	ErrItemCountMismatch = errors.New("item count does not match item quantities")
	// ErrSubtotalMismatch — подытог позиции не равен price * quantity.
	ErrSubtotalMismatch = errors.New("item subtotal does not match price * quantity")
	// ErrSessionNotStarted — операция вызвана до Start или после Stop.
	ErrSessionNotStarted = errors.New("cart session is not started")
	// ErrSessionAlreadyStarted — повторный Start без Stop.
	ErrSessionAlreadyStarted = errors.New("cart session is already started")
	// ErrInvalidRevision — значение If-Match не является ревизией корзины.
	ErrInvalidRevision = errors.New("invalid cart revision")
	// ErrUnauthorized — отсутствует или недействителен bearer-токен.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — не передан хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован; вызывающий решает по статусу записи.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// RemoteError — ответ удалённого сервиса с кодом ошибки и человекочитаемым сообщением.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cart service responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Message
}

// Is позволяет сопоставлять 409 с ErrConflict через errors.Is.
func (e *RemoteError) Is(target error) bool {
	return target == ErrConflict && e.StatusCode == http.StatusConflict
}

// IsConflict проверяет, является ли ошибка конфликтом параллельной модификации.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsConnectivity проверяет, что ответ от сервиса не был получен.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity)
}
