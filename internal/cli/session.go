package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cartsync/internal/remote/httpcart"
	"github.com/vladislavdragonenkov/cartsync/internal/service/cartsync"
	"github.com/vladislavdragonenkov/cartsync/internal/service/relay"
)

// SessionOptions хранит флаги команды session.
type SessionOptions struct {
	*RootOptions
	URL           string
	Token         string
	User          string
	Offline       bool
	Debounce      time.Duration
	QueueCapacity int
	Brokers       []string
	SyncTopic     string
}

// NewSessionCommand создаёт интерактивную сессию корзины.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open an interactive cart session",
		Long: `Open an interactive cart session against the cart service.

Mutations are applied locally first and synchronized in the background.
While offline they are queued and replayed once the session goes online.

Commands:
  show                     print the local cart
  add <productId> [qty]    add a product (qty defaults to 1)
  update <itemId> <qty>    change quantity (debounced, 0 removes)
  remove <itemId>          remove an item
  clear                    remove every item
  retry                    reload the cart and replay the queue
  offline | online         simulate a network transition
  queue                    list queued operations
  quit                     end the session

Examples:
  cartsync session --token alice
  cartsync session --url http://localhost:8080 --token tok-a --offline`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "http://localhost:8080", "cart service base URL")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token (required)")
	_ = cmd.MarkFlagRequired("token")
	cmd.Flags().StringVar(&opts.User, "user", "", "user id for sync events (defaults to token)")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "start offline")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 0, "quantity edit debounce (0 uses the engine default)")
	cmd.Flags().IntVar(&opts.QueueCapacity, "queue-capacity", 0, "offline queue capacity (0 uses the engine default)")
	cmd.Flags().StringSliceVar(&opts.Brokers, "brokers", nil, "kafka brokers for sync events")
	cmd.Flags().StringVar(&opts.SyncTopic, "sync-topic", kafka.TopicSyncEvents, "kafka topic for sync events")

	return cmd
}

func runSession(ctx context.Context, opts *SessionOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	factory, err := httpcart.NewFactory(opts.URL, httpcart.WithLogger(log.WithField("component", "cart-client")))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid cart service url", err)
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	engineOpts := []cartsync.Option{
		cartsync.WithNotifier(noticePrinter{out: out}),
		cartsync.WithDebounce(opts.Debounce),
		cartsync.WithQueueCapacity(opts.QueueCapacity),
	}

	if len(opts.Brokers) > 0 {
		producer, err := kafka.NewProducer(opts.Brokers, "cartsync-cli")
		if err != nil {
			return WrapExitError(ExitCommandError, "connect kafka", err)
		}
		defer func() { _ = producer.Close() }()

		events := relay.New(kafka.NewEventPublisher(producer, opts.SyncTopic, ""))
		relayDone := make(chan struct{})
		go func() {
			defer close(relayDone)
			events.Run(ctx)
		}()
		defer func() {
			cancel()
			<-relayDone
		}()
		engineOpts = append(engineOpts, cartsync.WithEventPublisher(events))
	}

	conn := cartsync.NewManualConnectivity(!opts.Offline)
	engine := cartsync.NewEngine(factory, conn, engineOpts...)

	user := opts.User
	if user == "" {
		user = opts.Token
	}
	if err := engine.Start(ctx, domain.Session{UserID: user, Token: opts.Token}); err != nil {
		return WrapExitError(ExitCommandError, "start session", err)
	}
	defer engine.Stop()

	sh := &shell{engine: engine, conn: conn, out: out, format: opts.Format}
	out.printf("cart session for %s, type help for commands\n", user)
	return sh.run(ctx, cmd.InOrStdin())
}

// shell выполняет команды сессии построчно.
type shell struct {
	engine *cartsync.Engine
	conn   *cartsync.ManualConnectivity
	out    *lockedWriter
	format string
}

var errQuit = errors.New("quit")

func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		err := s.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			s.out.printf("error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	command, args := strings.ToLower(fields[0]), fields[1:]

	switch command {
	case "help", "?":
		s.out.printf("commands: show, add <productId> [qty], update <itemId> <qty>, remove <itemId>, clear, retry, online, offline, queue, quit\n")
		return nil
	case "quit", "exit":
		return errQuit
	case "show", "cart":
		return s.show()
	case "queue":
		for _, op := range s.engine.QueuedOperations() {
			s.out.printf("  %s %s %s qty=%d retries=%d\n", op.ID, op.Kind, op.Payload.ProductID, op.Payload.Quantity, op.RetryCount)
		}
		s.out.printf("  queued=%d\n", s.engine.QueueLen())
		return nil
	case "online":
		s.conn.SetOnline(true)
		return nil
	case "offline":
		s.conn.SetOnline(false)
		return nil
	}

	var err error
	switch command {
	case "add":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: add <productId> [qty]")
		}
		quantity := int32(1)
		if len(args) == 2 {
			if quantity, err = parseQuantity(args[1]); err != nil {
				return err
			}
		}
		err = s.engine.Add(ctx, args[0], quantity, nil)
	case "update":
		if len(args) != 2 {
			return fmt.Errorf("usage: update <itemId> <qty>")
		}
		var quantity int32
		if quantity, err = parseQuantity(args[1]); err != nil {
			return err
		}
		err = s.engine.Update(ctx, args[0], quantity)
	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: remove <itemId>")
		}
		err = s.engine.Remove(ctx, args[0])
	case "clear":
		err = s.engine.Clear(ctx)
	case "retry":
		err = s.engine.Retry(ctx)
	default:
		return fmt.Errorf("unknown command %q, type help", command)
	}
	if err != nil {
		return err
	}
	return s.show()
}

func (s *shell) show() error {
	state := s.engine.State()
	if s.format == "json" {
		return writeCartJSON(s.out, state.Cart, state.Status, state.Online, state.QueueLen)
	}
	writeCartText(s.out, state.Cart, state.Status, state.Online, state.QueueLen)
	return nil
}

func parseQuantity(raw string) (int32, error) {
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", raw)
	}
	return int32(n), nil
}

// noticePrinter выводит уведомления движка в консоль сессии.
type noticePrinter struct {
	out *lockedWriter
}

func (p noticePrinter) Notify(notice domain.Notice) {
	p.out.printf("! [%s] %s: %s\n", notice.Level, notice.Code, notice.Message)
}
