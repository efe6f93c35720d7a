package ingestion

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/event"
	"NativeSwap/internal/observability"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// EventStream is the JetStream stream carrying outbound notices.
const EventStream = "NSWAP_EVENTS"

// OutboundPublisher publishes the notices of committed transactions to
// nswap.events.<type>.<token>.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// PublishedNotice is the outbound message body.
type PublishedNotice struct {
	Sequence   int64        `json:"sequence"`
	Index      int          `json:"index"`
	TxID       string       `json:"tx_id"`
	Token      string       `json:"token"`
	Block      uint64       `json:"block"`
	NoticeType string       `json:"notice_type"`
	Notice     event.Notice `json:"notice"`
	StateHash  string       `json:"state_hash"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan core.CoreOutput, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("publisher"),
	}
}

// Run publishes until ctx is cancelled or the channel closes. Failures are
// counted and skipped; consumers can catch up from the event log.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			for _, msg := range NoticeMessages(out) {
				if err := op.publish(ctx, msg); err != nil {
					op.logger.Warn().Err(err).Int64("seq", msg.Sequence).Str("notice", msg.NoticeType).Msg("outbound publish failed")
					if op.metrics != nil {
						op.metrics.PublishErrors.Inc()
					}
				}
			}
		}
	}
}

// NoticeMessages flattens one output into outbound messages.
func NoticeMessages(out core.CoreOutput) []PublishedNotice {
	env := out.Envelope
	msgs := make([]PublishedNotice, 0, len(out.Notices))
	for i, n := range out.Notices {
		msgs = append(msgs, PublishedNotice{
			Sequence:   env.Sequence,
			Index:      i,
			TxID:       env.TxID.String(),
			Token:      env.Token,
			Block:      env.Block,
			NoticeType: n.NoticeType(),
			Notice:     n,
			StateHash:  fmt.Sprintf("%x", env.StateHash),
		})
	}
	return msgs
}

// EventSubject is nswap.events.<type>.<token>.
func EventSubject(noticeType, token string) string {
	return fmt.Sprintf("nswap.events.%s.%s", subjectToken(noticeType), token)
}

func (op *OutboundPublisher) publish(ctx context.Context, msg PublishedNotice) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	// the message id lets JetStream drop republished duplicates
	id := fmt.Sprintf("%d:%d", msg.Sequence, msg.Index)
	_, err = op.js.Publish(ctx, EventSubject(msg.NoticeType, msg.Token), data, jetstream.WithMsgID(id))
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       EventStream,
		Subjects:   []string{"nswap.events.>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
