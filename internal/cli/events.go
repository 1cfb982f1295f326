package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
)

// EventsOptions хранит флаги команды events.
type EventsOptions struct {
	*RootOptions
	Brokers    []string
	GroupID    string
	Topics     []string
	FromOldest bool
}

// NewEventsCommand печатает события корзины из Kafka.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail cart sync events and cart changes from Kafka",
		Long: `Tail cart events published by sync sessions and the cart service.

Examples:
  cartsync events --brokers localhost:9092
  cartsync events --brokers localhost:9092 --topic cart.changes --from-oldest --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Brokers, "brokers", []string{"localhost:9092"}, "kafka brokers")
	cmd.Flags().StringVar(&opts.GroupID, "group", "cartsync-events-tail", "consumer group id")
	cmd.Flags().StringSliceVar(&opts.Topics, "topic", []string{kafka.TopicSyncEvents, kafka.TopicCartChanges}, "topics to read")
	cmd.Flags().BoolVar(&opts.FromOldest, "from-oldest", false, "start from the oldest offset")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    opts.Brokers,
		GroupID:    opts.GroupID,
		Topics:     opts.Topics,
		FromOldest: opts.FromOldest,
	}, func(_ context.Context, message *sarama.ConsumerMessage) error {
		return printEvent(out, message, opts.Format)
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "connect kafka", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "start consumer", err)
	}

	<-ctx.Done()
	return consumer.Stop()
}

// printEvent печатает одно сообщение; нераспознанные сообщения выводятся как есть.
func printEvent(w io.Writer, message *sarama.ConsumerMessage, format string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(map[string]any{
			"topic":     message.Topic,
			"partition": message.Partition,
			"offset":    message.Offset,
			"key":       string(message.Key),
			"type":      kafka.EventType(message),
			"payload":   json.RawMessage(validJSON(message.Value)),
		})
	}

	switch kafka.EventType(message) {
	case kafka.EventTypeCartChanged:
		change, err := kafka.ParseCartChange(message)
		if err != nil {
			return printRaw(w, message)
		}
		_, err = fmt.Fprintf(w, "%s %-16s owner=%s op=%s product=%s qty=%d revision=%d\n",
			change.Timestamp.Format("15:04:05.000"), change.EventType, change.OwnerID, change.Operation, change.ProductID, change.Quantity, change.Revision)
		return err
	case "":
		return printRaw(w, message)
	default:
		event, err := kafka.ParseSyncEvent(message)
		if err != nil {
			return printRaw(w, message)
		}
		_, err = fmt.Fprintf(w, "%s %-16s user=%s op=%s product=%s status=%s queued=%d retries=%d %s\n",
			event.Timestamp.Format("15:04:05.000"), event.EventType, event.UserID, event.Operation, event.ProductID, event.Status, event.QueueLen, event.RetryCount, event.Reason)
		return err
	}
}

func printRaw(w io.Writer, message *sarama.ConsumerMessage) error {
	_, err := fmt.Fprintf(w, "%s[%d]@%d key=%s %s\n", message.Topic, message.Partition, message.Offset, message.Key, message.Value)
	return err
}

func validJSON(raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
