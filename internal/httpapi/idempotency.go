package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/cartsync/internal/cartwire"
	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

const (
	maxIdempotencyKeyLength = 128
	headerReplayed          = "Idempotent-Replayed"
)

// withIdempotency выполняет мутацию не более одного раза на Idempotency-Key владельца.
// Повтор с тем же ключом получает сохранённый ответ. Ответы 5xx не сохраняются, ключ освобождается.
func (s *Server) withIdempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := strings.TrimSpace(r.Header.Get(cartwire.HeaderIdempotencyKey))
		if s.idempotency == nil || rawKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(rawKey) > maxIdempotencyKeyLength {
			writeError(w, http.StatusBadRequest, "idempotency key is too long")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		key := domain.IdempotencyScope(ownerFromContext(ctx), rawKey)
		logger := s.logger.WithField("idempotency_key", key)

		record, err := s.idempotency.CreateProcessing(ctx, key, requestHash(r, body), s.now().Add(s.idemTTL))
		if err != nil {
			s.replayIdempotency(w, err, record)
			return
		}
		s.idemMetrics.RecordRequest("new")

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		var captured bytes.Buffer
		ww.Tee(&captured)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		switch {
		case status >= http.StatusInternalServerError:
			if err := s.idempotency.Delete(ctx, key); err != nil {
				logger.WithError(err).Warn("failed to release idempotency key")
			}
		case status >= http.StatusBadRequest:
			if err := s.idempotency.MarkFailed(ctx, key, captured.Bytes(), status); err != nil {
				logger.WithError(err).Warn("failed to store idempotency failure response")
			}
		default:
			if err := s.idempotency.MarkDone(ctx, key, captured.Bytes(), status); err != nil {
				logger.WithError(err).Warn("failed to store idempotent success response")
			}
		}
	})
}

func (s *Server) replayIdempotency(w http.ResponseWriter, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		s.idemMetrics.RecordRequest("mismatch")
		writeError(w, http.StatusUnprocessableEntity, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			s.idemMetrics.RecordRequest("replayed")
			status := record.HTTPStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(headerReplayed, "true")
			w.WriteHeader(status)
			_, _ = w.Write(record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			s.idemMetrics.RecordRequest("in_progress")
			writeError(w, http.StatusConflict, "request with the same idempotency key is already processing")
		default:
			writeError(w, http.StatusInternalServerError, "unknown idempotency record status")
		}
	default:
		s.logger.WithError(createErr).Warn("failed to create idempotency record")
		writeError(w, http.StatusInternalServerError, "failed to initialize idempotency request")
	}
}

// requestHash не включает If-Match: повтор после обрыва связи может нести уже другую ревизию.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{' '})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{'\n'})
	h.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(h.Sum(nil))
}
