package ingestion

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/observability"
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// TxStream is the JetStream stream carrying inbound transactions.
const TxStream = "NSWAP_TX"

// NATSSubscriber consumes transaction subjects from JetStream and hands raw
// messages to the engine loop, which parses and applies them in order.
type NATSSubscriber struct {
	js        jetstream.JetStream
	txChan    chan<- RawTx
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawTx is an unparsed transaction as received from NATS.
type RawTx struct {
	Subject   string
	Op        event.OpType
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the engine committed or deliberately rejected it
	NakFunc   func() // NAK to have JetStream redeliver
}

// SubjectConfig binds one subject filter to one operation type.
type SubjectConfig struct {
	Subject      string
	Op           event.OpType
	ConsumerName string
	StreamName   string
}

// DefaultSubjects maps every operation to nswap.tx.<op>.<token>.
func DefaultSubjects() []SubjectConfig {
	ops := []event.OpType{
		event.OpCreatePool, event.OpListLiquidity, event.OpReserve,
		event.OpSwap, event.OpCancelListing, event.OpRemoveLiquidity,
	}
	out := make([]SubjectConfig, 0, len(ops))
	for _, op := range ops {
		out = append(out, SubjectConfig{
			Subject:      TxSubject(op, "*"),
			Op:           op,
			ConsumerName: "nswap-" + subjectToken(op.String()),
			StreamName:   TxStream,
		})
	}
	return out
}

// TxSubject is the subject a producer publishes op for token on.
func TxSubject(op event.OpType, token string) string {
	return fmt.Sprintf("nswap.tx.%s.%s", subjectToken(op.String()), token)
}

func NewNATSSubscriber(js jetstream.JetStream, txChan chan<- RawTx) *NATSSubscriber {
	return &NATSSubscriber{
		js:     js,
		txChan: txChan,
		logger: observability.NewLogger("nats"),
	}
}

// Subscribe creates durable consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		op := cfg.Op
		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawTx{
				Subject:   msg.Subject(),
				Op:        op,
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { _ = msg.Ack() },
				NakFunc:   func() { _ = msg.Nak() },
			}
			select {
			case ns.txChan <- raw:
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, cc)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}
	return nil
}

// EnsureStreams creates the inbound transaction stream if missing.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      TxStream,
		Subjects:  []string{"nswap.tx.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", TxStream, err)
	}
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.Name("nativeswap"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
