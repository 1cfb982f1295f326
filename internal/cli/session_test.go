package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/httpapi"
	"github.com/vladislavdragonenkov/cartsync/internal/remote/httpcart"
	"github.com/vladislavdragonenkov/cartsync/internal/service/cartsync"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/memory"
)

type shellFixture struct {
	shell  *shell
	buf    *bytes.Buffer
	writer *lockedWriter
	store  domain.CartStore
}

func newShellFixture(t *testing.T, online bool, format string) *shellFixture {
	t.Helper()

	store := memory.NewCartStore()
	api := httpapi.NewServer(store, memory.NewCatalog(memory.DemoProducts()...))
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)

	factory, err := httpcart.NewFactory(srv.URL)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	writer := &lockedWriter{w: out}
	conn := cartsync.NewManualConnectivity(online)
	engine := cartsync.NewEngine(factory, conn,
		cartsync.WithNotifier(noticePrinter{out: writer}),
		cartsync.WithDebounce(10*time.Millisecond),
	)
	require.NoError(t, engine.Start(context.Background(), domain.Session{UserID: "alice", Token: "alice"}))
	t.Cleanup(engine.Stop)

	return &shellFixture{
		shell:  &shell{engine: engine, conn: conn, out: writer, format: format},
		buf:    out,
		writer: writer,
		store:  store,
	}
}

func (f *shellFixture) output() string {
	f.writer.mu.Lock()
	defer f.writer.mu.Unlock()
	return f.buf.String()
}

func (f *shellFixture) reset() {
	f.writer.mu.Lock()
	defer f.writer.mu.Unlock()
	f.buf.Reset()
}

func (f *shellFixture) serverCart(t *testing.T) domain.Cart {
	t.Helper()
	cart, err := f.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	return cart
}

func TestShell_AddUpdateRemoveAgainstCartService(t *testing.T) {
	f := newShellFixture(t, true, "text")
	ctx := context.Background()

	require.NoError(t, f.shell.exec(ctx, "add sku-tea 2"))
	require.Contains(t, f.output(), "total=9.00 USD")
	require.Equal(t, int32(2), f.serverCart(t).ItemCount)

	itemID := f.shell.engine.Snapshot().Items[0].ItemID
	require.NoError(t, f.shell.exec(ctx, "update "+itemID+" 5"))
	require.Eventually(t, func() bool {
		_, pending := f.shell.engine.PendingEdit()
		return !pending && f.shell.engine.Status() == domain.SyncStatusSynced
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, int32(5), f.serverCart(t).ItemCount)

	require.NoError(t, f.shell.exec(ctx, "remove "+itemID))
	require.Empty(t, f.serverCart(t).Items)
	require.Equal(t, domain.SyncStatusSynced, f.shell.engine.Status())
}

func TestShell_OfflineQueueDrainsOnReconnect(t *testing.T) {
	f := newShellFixture(t, true, "text")
	ctx := context.Background()

	require.NoError(t, f.shell.exec(ctx, "offline"))
	require.NoError(t, f.shell.exec(ctx, "add sku-mug"))
	require.NoError(t, f.shell.exec(ctx, "add sku-coffee 2"))
	require.Equal(t, 2, f.shell.engine.QueueLen())
	require.Empty(t, f.serverCart(t).Items)

	f.reset()
	require.NoError(t, f.shell.exec(ctx, "queue"))
	require.Contains(t, f.output(), "queued=2")

	require.NoError(t, f.shell.exec(ctx, "online"))
	require.Eventually(t, func() bool { return f.shell.engine.QueueLen() == 0 }, time.Second, 10*time.Millisecond)
	require.Equal(t, int32(3), f.serverCart(t).ItemCount)
	require.Contains(t, f.output(), "online")
}

func TestShell_ClearAndJSONOutput(t *testing.T) {
	f := newShellFixture(t, true, "json")
	ctx := context.Background()

	require.NoError(t, f.shell.exec(ctx, "add sku-kettle"))
	require.Contains(t, f.output(), `"totalAmount":3490`)

	f.reset()
	require.NoError(t, f.shell.exec(ctx, "clear"))
	require.Contains(t, f.output(), `"items":[]`)
	require.Empty(t, f.serverCart(t).Items)
}

func TestShell_InputErrors(t *testing.T) {
	f := newShellFixture(t, true, "text")
	ctx := context.Background()

	require.NoError(t, f.shell.exec(ctx, "   "))
	require.ErrorContains(t, f.shell.exec(ctx, "add"), "usage")
	require.ErrorContains(t, f.shell.exec(ctx, "add sku-tea many"), "invalid quantity")
	require.ErrorContains(t, f.shell.exec(ctx, "fly"), "unknown command")
	require.ErrorIs(t, f.shell.exec(ctx, "add sku-tea 0"), domain.ErrInvalidQuantity)
	require.ErrorIs(t, f.shell.exec(ctx, "quit"), errQuit)
}

func TestShell_RunStopsOnQuit(t *testing.T) {
	f := newShellFixture(t, true, "text")

	input := strings.NewReader("help\nshow\nbogus\nquit\nadd sku-tea\n")
	require.NoError(t, f.shell.run(context.Background(), input))

	out := f.output()
	require.Contains(t, out, "commands:")
	require.Contains(t, out, "(cart is empty)")
	require.Contains(t, out, `error: unknown command "bogus"`)
	require.Empty(t, f.serverCart(t).Items, "commands after quit must not run")
}
