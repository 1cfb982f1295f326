package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/cartsync/internal/cartwire"
	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// Коды завершения процесса.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError несёт код завершения.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError оборачивает ошибку кодом завершения.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode извлекает код завершения; по умолчанию ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// lockedWriter сериализует вывод: уведомления движка приходят из других горутин.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l, format, args...)
}

// formatMoney печатает сумму в минимальных единицах как 12.90 USD.
func formatMoney(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency))
}

func writeCartText(w io.Writer, cart domain.Cart, status domain.SyncStatus, online bool, queueLen int) {
	network := "online"
	if !online {
		network = "offline"
	}
	_, _ = fmt.Fprintf(w, "status=%s network=%s queued=%d revision=%d\n", status, network, queueLen, cart.Revision)
	if len(cart.Items) == 0 {
		_, _ = fmt.Fprintln(w, "  (cart is empty)")
	}
	for _, item := range cart.Items {
		name := item.ProductID
		if item.Product != nil && item.Product.Name != "" {
			name = item.Product.Name
		}
		_, _ = fmt.Fprintf(w, "  %s  %-24s x%-3d %s\n", item.ItemID, name, item.Quantity, formatMoney(item.SubtotalMinor, cart.Currency))
	}
	_, _ = fmt.Fprintf(w, "  items=%d total=%s\n", cart.ItemCount, formatMoney(cart.TotalMinor, cart.Currency))
}

type cartView struct {
	cartwire.Cart
	Status   domain.SyncStatus `json:"status"`
	Online   bool              `json:"online"`
	QueueLen int               `json:"queueLen"`
}

func writeCartJSON(w io.Writer, cart domain.Cart, status domain.SyncStatus, online bool, queueLen int) error {
	return json.NewEncoder(w).Encode(cartView{
		Cart:     cartwire.FromDomain(cart),
		Status:   status,
		Online:   online,
		QueueLen: queueLen,
	})
}
