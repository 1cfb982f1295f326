package cartsync

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// Outcome — класс исхода сетевого вызова.
type Outcome int

const (
	// Сервер принял изменение.
	OutcomeSuccess Outcome = iota
	// Ответ не был получен; операция уходит в очередь.
	OutcomeConnectivity
	// HTTP 409; локальная дельта отбрасывается, корзина перезагружается.
	OutcomeConflict
	// Валидация, not found, ошибка сервера; откат к предыдущему снимку.
	OutcomeOther
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeConnectivity:
		return "connectivity"
	case OutcomeConflict:
		return "conflict"
	default:
		return "other"
	}
}

// Classify относит ошибку ровно к одному классу исхода.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case domain.IsConnectivity(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return OutcomeConnectivity
	case domain.IsConflict(err):
		return OutcomeConflict
	default:
		return OutcomeOther
	}
}
