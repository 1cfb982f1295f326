package cartsync

import (
	"time"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

type systemScheduler struct{}

// SystemScheduler возвращает планировщик поверх time.AfterFunc.
func SystemScheduler() domain.Scheduler {
	return systemScheduler{}
}

func (systemScheduler) AfterFunc(d time.Duration, fn func()) domain.Timer {
	return time.AfterFunc(d, fn)
}
