package cartsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/memory"
)

const testOwner = "user-1"

var (
	errOffline  = fmt.Errorf("dial tcp: %w", domain.ErrConnectivity)
	errConflict = &domain.RemoteError{StatusCode: http.StatusConflict, Message: "cart revision is stale"}
	errRejected = &domain.RemoteError{StatusCode: http.StatusUnprocessableEntity, Message: "Only 2 items left in stock"}
)

func loggerForTests() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.DebugLevel)
	return logger.WithField("component", "test")
}

type remoteCall struct {
	kind      string
	productID string
	quantity  int32
}

// fakeRemote — удалённый сервис поверх in-memory хранилища с инъекцией ошибок.
type fakeRemote struct {
	mu       sync.Mutex
	store    domain.CartStore
	catalog  domain.Catalog
	calls    []remoteCall
	failNext map[string][]error
	failAll  map[string]error
	// onCall вызывается до ответа, вне блокировки фейка.
	onCall func(kind string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		store: memory.NewCartStore(),
		catalog: memory.NewCatalog(
			domain.ProductSnapshot{ProductID: "P", Name: "Tea", PriceMinor: 450, Currency: "USD"},
			domain.ProductSnapshot{ProductID: "X", Name: "Mug", PriceMinor: 900, Currency: "USD"},
			domain.ProductSnapshot{ProductID: "Y", Name: "Kettle", PriceMinor: 3490, Currency: "USD"},
		),
		failNext: make(map[string][]error),
		failAll:  make(map[string]error),
	}
}

func (f *fakeRemote) ForSession(domain.Session) (domain.RemoteCart, error) {
	return f, nil
}

// injectOnce заставляет следующий вызов kind вернуть err.
func (f *fakeRemote) injectOnce(kind string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[kind] = append(f.failNext[kind], err)
}

// injectAlways заставляет все вызовы kind возвращать err (nil снимает инъекцию).
func (f *fakeRemote) injectAlways(kind string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failAll, kind)
		return
	}
	f.failAll[kind] = err
}

func (f *fakeRemote) record(kind, productID string, quantity int32) error {
	f.mu.Lock()
	f.calls = append(f.calls, remoteCall{kind: kind, productID: productID, quantity: quantity})
	var err error
	if always, ok := f.failAll[kind]; ok {
		err = always
	} else if queued := f.failNext[kind]; len(queued) > 0 {
		f.failNext[kind] = queued[1:]
		err = queued[0]
	}
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(kind)
	}
	return err
}

func (f *fakeRemote) callsOf(kind string) []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []remoteCall
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) authoritative(t *testing.T) domain.Cart {
	t.Helper()
	cart, err := f.store.Get(context.Background(), testOwner)
	require.NoError(t, err)
	return cart
}

func toRemoteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrProductNotFound):
		return &domain.RemoteError{StatusCode: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return &domain.RemoteError{StatusCode: http.StatusConflict, Message: err.Error()}
	default:
		return &domain.RemoteError{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}
}

func (f *fakeRemote) Fetch(ctx context.Context) (domain.Cart, error) {
	if err := f.record("fetch", "", 0); err != nil {
		return domain.Cart{}, err
	}
	return f.store.Get(ctx, testOwner)
}

func (f *fakeRemote) Add(ctx context.Context, productID string, quantity int32) (domain.Cart, error) {
	if err := f.record("add", productID, quantity); err != nil {
		return domain.Cart{}, err
	}
	product, err := f.catalog.Product(ctx, productID)
	if err != nil {
		return domain.Cart{}, toRemoteErr(err)
	}
	cart, err := f.store.AddItem(ctx, testOwner, product, quantity, 0)
	return cart, toRemoteErr(err)
}

func (f *fakeRemote) Update(ctx context.Context, productID string, quantity int32) (domain.Cart, error) {
	if err := f.record("update", productID, quantity); err != nil {
		return domain.Cart{}, err
	}
	cart, err := f.store.SetQuantity(ctx, testOwner, productID, quantity, 0)
	return cart, toRemoteErr(err)
}

func (f *fakeRemote) Remove(ctx context.Context, productID string) (domain.Cart, error) {
	if err := f.record("remove", productID, 0); err != nil {
		return domain.Cart{}, err
	}
	cart, err := f.store.RemoveItem(ctx, testOwner, productID, 0)
	return cart, toRemoteErr(err)
}

func (f *fakeRemote) Clear(ctx context.Context) error {
	if err := f.record("clear", "", 0); err != nil {
		return err
	}
	_, err := f.store.Clear(ctx, testOwner, 0)
	return toRemoteErr(err)
}

// manualScheduler — детерминированный планировщик: таймеры срабатывают только в Advance.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	scheduler *manualScheduler
	at        time.Duration
	fn        func()
	done      bool
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{}
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) domain.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{scheduler: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.scheduler.mu.Lock()
	defer t.scheduler.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance сдвигает время и синхронно выполняет наступившие таймеры по порядку.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.done && t.at <= s.now {
			t.done = true
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// Active возвращает число взведённых таймеров.
func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.done {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (n *recordingNotifier) Notify(notice domain.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) codes() []domain.NoticeCode {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.NoticeCode, 0, len(n.notices))
	for _, notice := range n.notices {
		out = append(out, notice.Code)
	}
	return out
}

func (n *recordingNotifier) last() domain.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return domain.Notice{}
	}
	return n.notices[len(n.notices)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SyncEvent
}

func (p *recordingPublisher) PublishSyncEvent(event domain.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.SyncEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SyncEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testHarness struct {
	engine    *Engine
	remote    *fakeRemote
	conn      *ManualConnectivity
	scheduler *manualScheduler
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newHarness(t *testing.T, online bool, options ...Option) *testHarness {
	t.Helper()

	h := &testHarness{
		remote:    newFakeRemote(),
		conn:      NewManualConnectivity(online),
		scheduler: newManualScheduler(),
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	base := []Option{
		WithLogger(loggerForTests()),
		WithScheduler(h.scheduler),
		WithNotifier(h.notifier),
		WithEventPublisher(h.publisher),
	}
	h.engine = NewEngine(h.remote, h.conn, append(base, options...)...)
	return h
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background(), domain.Session{UserID: testOwner, Token: "token-1"}))
	t.Cleanup(h.engine.Stop)
}

// seed кладёт товары прямо в серверную корзину, минуя движок.
func (h *testHarness) seed(t *testing.T, productID string, quantity int32) {
	t.Helper()
	ctx := context.Background()
	product, err := h.remote.catalog.Product(ctx, productID)
	require.NoError(t, err)
	_, err = h.remote.store.AddItem(ctx, testOwner, product, quantity, 0)
	require.NoError(t, err)
}

func (h *testHarness) itemID(t *testing.T, productID string) string {
	t.Helper()
	item, _, ok := h.engine.Snapshot().FindProduct(productID)
	require.True(t, ok, "product %s not in cart", productID)
	return item.ItemID
}
