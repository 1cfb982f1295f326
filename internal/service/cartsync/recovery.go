package cartsync

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// dispatch отправляет мутацию и применяет политику восстановления по классу исхода.
// Офлайн мутация, как и мутация за непустой очередью, сразу уходит в очередь, минуя сеть.
func (e *Engine) dispatch(ctx context.Context, m mutation) error {
	if !m.online {
		return e.deferOperation(m, nil)
	}

	cart, err := e.call(ctx, m.remote, m.op)
	switch Classify(err) {
	case OutcomeSuccess:
		e.commit(m, cart)
		return nil
	case OutcomeConnectivity:
		return e.deferOperation(m, err)
	case OutcomeConflict:
		return e.recoverConflict(ctx, m, err)
	default:
		return e.rollback(m, err)
	}
}

// commit заменяет снимок ответом сервера целиком, без слияния.
func (e *Engine) commit(m mutation, cart domain.Cart) {
	e.mu.Lock()
	if m.epoch != e.epoch {
		e.mu.Unlock()
		return
	}
	e.inflight--
	// clear не возвращает корзину: локальная пустая корзина и есть итог.
	if m.op.Kind != domain.OperationClear {
		e.replaceCartLocked(cart)
	}
	e.settleLocked()
	state := e.stateLocked()
	e.mu.Unlock()

	e.metrics.RecordMutation(string(m.op.Kind), "synced")
	e.publish(domain.SyncEvent{
		Type:      domain.SyncEventSynced,
		Operation: m.op.Kind,
		ProductID: m.op.Payload.ProductID,
	})
	e.emit(state)
}

// replaceCartLocked ставит авторитетную корзину на место локального снимка.
// Ожидающая правка количества остаётся видна и переносится на новую корзину.
func (e *Engine) replaceCartLocked(server domain.Cart) {
	cart, dropped := e.edits.rebase(server, e.now())
	if dropped {
		e.logger.Debug("pending quantity edit dropped: item is no longer in the cart")
	}
	e.cart = cart
}

// deferOperation кладёт мутацию в офлайн-очередь, сохраняя оптимистичное состояние.
// Если очередь заполнена, изменение откатывается: синхронизировать его будет нечем.
func (e *Engine) deferOperation(m mutation, cause error) error {
	e.mu.Lock()
	if m.epoch != e.epoch {
		e.mu.Unlock()
		return nil
	}
	e.inflight--
	if err := e.queue.Enqueue(m.op); err != nil {
		e.cart = m.prev
		e.setStatusLocked(domain.SyncStatusError)
		state := e.stateLocked()
		e.mu.Unlock()

		e.metrics.RecordMutation(string(m.op.Kind), "rejected")
		e.logger.WithFields(log.Fields{
			"operation":  m.op.Kind,
			"product_id": m.op.Payload.ProductID,
			"queue_len":  state.QueueLen,
		}).Warn("offline queue is full, change rolled back")
		e.notify(domain.NoticeError, domain.NoticeQueueFull, "Too many pending changes. Reconnect to sync your cart before making more edits.")
		e.emit(state)
		return fmt.Errorf("%s %s: %w", m.op.Kind, m.op.Payload.ProductID, err)
	}
	e.setStatusLocked(domain.SyncStatusError)
	state := e.stateLocked()
	e.mu.Unlock()

	e.metrics.RecordMutation(string(m.op.Kind), "queued")
	e.metrics.SetQueueDepth(state.QueueLen)
	entry := e.logger.WithFields(log.Fields{
		"operation":  m.op.Kind,
		"product_id": m.op.Payload.ProductID,
		"queue_len":  state.QueueLen,
	})
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Info("change queued for later sync")
	e.notify(domain.NoticeWarning, domain.NoticeQueued, "Your change was saved and will sync when the connection is restored.")
	e.publish(domain.SyncEvent{
		Type:      domain.SyncEventQueued,
		Operation: m.op.Kind,
		ProductID: m.op.Payload.ProductID,
	})
	e.emit(state)
	return nil
}

// recoverConflict отбрасывает оптимистичную дельту и перезагружает корзину.
func (e *Engine) recoverConflict(ctx context.Context, m mutation, cause error) error {
	e.mu.Lock()
	if m.epoch != e.epoch {
		e.mu.Unlock()
		return nil
	}
	e.inflight--
	e.cart = m.prev
	state := e.stateLocked()
	e.mu.Unlock()

	e.metrics.RecordMutation(string(m.op.Kind), "conflict")
	e.metrics.RecordConflict()
	e.logger.WithError(cause).WithFields(log.Fields{
		"operation":  m.op.Kind,
		"product_id": m.op.Payload.ProductID,
	}).Warn("cart changed concurrently, refetching")
	e.emit(state)
	e.notify(domain.NoticeWarning, domain.NoticeConflict, "Your cart was updated by another session. It has been refreshed.")
	e.publish(domain.SyncEvent{
		Type:      domain.SyncEventConflict,
		Operation: m.op.Kind,
		ProductID: m.op.Payload.ProductID,
	})

	if err := e.refetch(ctx, m.epoch, m.remote); err != nil {
		return fmt.Errorf("%s %s: %w (refetch failed: %v)", m.op.Kind, m.op.Payload.ProductID, cause, err)
	}
	return fmt.Errorf("%s %s: %w", m.op.Kind, m.op.Payload.ProductID, cause)
}

// rollback восстанавливает снимок до мутации и показывает ошибку сервера как есть.
func (e *Engine) rollback(m mutation, cause error) error {
	e.mu.Lock()
	if m.epoch != e.epoch {
		e.mu.Unlock()
		return cause
	}
	e.inflight--
	e.cart = m.prev
	e.setStatusLocked(domain.SyncStatusError)
	state := e.stateLocked()
	e.mu.Unlock()

	e.metrics.RecordMutation(string(m.op.Kind), "rolled_back")
	e.logger.WithError(cause).WithFields(log.Fields{
		"operation":  m.op.Kind,
		"product_id": m.op.Payload.ProductID,
	}).Warn("change rejected by cart service, rolled back")
	e.notify(domain.NoticeError, domain.NoticeRolledBack, cause.Error())
	e.publish(domain.SyncEvent{
		Type:      domain.SyncEventRolledBack,
		Operation: m.op.Kind,
		ProductID: m.op.Payload.ProductID,
		Reason:    cause.Error(),
	})
	e.emit(state)
	return cause
}

// refetch загружает авторитетную корзину и заменяет ею локальный снимок.
func (e *Engine) refetch(ctx context.Context, epoch uint64, remote domain.RemoteCart) error {
	start := time.Now()
	cart, err := remote.Fetch(ctx)
	e.metrics.ObserveRemoteCall("fetch", time.Since(start))

	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.setStatusLocked(domain.SyncStatusError)
		state := e.stateLocked()
		e.mu.Unlock()

		e.metrics.RecordFetch("error")
		e.logger.WithError(err).Warn("failed to fetch cart")
		e.notify(domain.NoticeError, domain.NoticeSyncFailed, "Could not load your cart: "+err.Error())
		e.emit(state)
		return fmt.Errorf("fetch cart: %w", err)
	}
	e.replaceCartLocked(cart)
	e.settleLocked()
	state := e.stateLocked()
	e.mu.Unlock()

	e.metrics.RecordFetch("ok")
	e.publish(domain.SyncEvent{Type: domain.SyncEventFetched})
	e.emit(state)
	return nil
}

// drain обрабатывает офлайн-очередь строго по FIFO.
//
// Успех или конфликт удаляют операцию и переходят к следующей; любая другая неудача
// увеличивает счётчик попыток, оставляет операцию в голове очереди и прерывает проход.
// Операция, исчерпавшая попытки, выбрасывается без отправки. Только проход, опустошивший
// очередь, завершается авторитетной перезагрузкой корзины.
func (e *Engine) drain(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return domain.ErrSessionNotStarted
	}
	if e.draining || e.queue.Len() == 0 {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	epoch, remote := e.epoch, e.remote
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.epoch == epoch {
			e.draining = false
		}
		e.mu.Unlock()
	}()

	conflicted := false
	for {
		e.mu.Lock()
		if e.epoch != epoch {
			e.mu.Unlock()
			return nil
		}
		op, ok := e.queue.Peek()
		if !ok {
			e.mu.Unlock()
			break
		}
		if op.RetryCount >= e.maxRetries {
			e.queue.Remove(op.ID)
			depth := e.queue.Len()
			e.mu.Unlock()

			e.metrics.RecordDropped()
			e.metrics.SetQueueDepth(depth)
			e.logger.WithFields(log.Fields{
				"operation":   op.Kind,
				"product_id":  op.Payload.ProductID,
				"retry_count": op.RetryCount,
			}).Error("queued change dropped after exhausting retries")
			e.notify(domain.NoticeError, domain.NoticeDropped, fmt.Sprintf("A pending %s change could not be synced and was discarded.", op.Kind))
			e.publish(domain.SyncEvent{
				Type:       domain.SyncEventDropped,
				Operation:  op.Kind,
				ProductID:  op.Payload.ProductID,
				RetryCount: op.RetryCount,
			})
			continue
		}
		e.mu.Unlock()

		_, err := e.call(ctx, remote, op)
		outcome := Classify(err)

		e.mu.Lock()
		if e.epoch != epoch {
			e.mu.Unlock()
			return nil
		}
		switch outcome {
		case OutcomeSuccess:
			e.queue.Remove(op.ID)
		case OutcomeConflict:
			e.queue.Remove(op.ID)
			conflicted = true
		default:
			retries := e.queue.MarkFailed(op.ID)
			e.setStatusLocked(domain.SyncStatusError)
			state := e.stateLocked()
			e.mu.Unlock()

			e.metrics.RecordDrain("failed")
			e.logger.WithError(err).WithFields(log.Fields{
				"operation":   op.Kind,
				"product_id":  op.Payload.ProductID,
				"retry_count": retries,
				"queue_len":   state.QueueLen,
			}).Warn("queued change failed, drain pass stopped")
			e.notify(domain.NoticeWarning, domain.NoticeSyncFailed, "Some changes are still waiting to sync. They will be retried.")
			e.emit(state)
			return fmt.Errorf("drain %s %s: %w", op.Kind, op.Payload.ProductID, err)
		}
		depth := e.queue.Len()
		e.mu.Unlock()

		e.metrics.SetQueueDepth(depth)
		e.metrics.RecordMutation(string(op.Kind), "drained_"+outcome.String())
		if outcome == OutcomeConflict {
			e.metrics.RecordConflict()
			e.publish(domain.SyncEvent{
				Type:      domain.SyncEventConflict,
				Operation: op.Kind,
				ProductID: op.Payload.ProductID,
			})
		}
	}

	if conflicted {
		e.notify(domain.NoticeWarning, domain.NoticeConflict, "Your cart was updated by another session. It has been refreshed.")
	}
	if err := e.refetch(ctx, epoch, remote); err != nil {
		e.metrics.RecordDrain("refetch_failed")
		return err
	}
	e.metrics.RecordDrain("completed")
	e.publish(domain.SyncEvent{Type: domain.SyncEventDrained})
	return nil
}

// call выполняет одну мутацию на удалённом сервисе.
func (e *Engine) call(ctx context.Context, remote domain.RemoteCart, op domain.QueuedOperation) (domain.Cart, error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveRemoteCall(string(op.Kind), time.Since(start))
	}()

	// повтор из очереди идёт с тем же ключом, что и первая попытка
	ctx = domain.WithIdempotencyKey(ctx, op.ID)
	switch op.Kind {
	case domain.OperationAdd:
		return remote.Add(ctx, op.Payload.ProductID, op.Payload.Quantity)
	case domain.OperationUpdate:
		return remote.Update(ctx, op.Payload.ProductID, op.Payload.Quantity)
	case domain.OperationRemove:
		return remote.Remove(ctx, op.Payload.ProductID)
	case domain.OperationClear:
		return domain.Cart{}, remote.Clear(ctx)
	default:
		return domain.Cart{}, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}
