package ingestion

import (
	"NativeSwap/internal/event"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GRPCIngestService injects transactions by hand, for admin use and
// replays. High-throughput ingestion goes through NATS. Injected
// transactions join the same queue as NATS messages so ordering is shared.
type GRPCIngestService struct {
	txChan chan<- RawTx
}

func NewGRPCIngestService(txChan chan<- RawTx) *GRPCIngestService {
	return &GRPCIngestService{txChan: txChan}
}

// Submit validates a wire-format payload for op and queues it. It returns
// the transaction id once the payload is queued, not once it is applied.
func (s *GRPCIngestService) Submit(ctx context.Context, op event.OpType, payload []byte) (uuid.UUID, error) {
	if op == event.OpUnknown {
		return uuid.Nil, fmt.Errorf("unknown operation")
	}
	parsed, err := event.UnmarshalOperationAs(payload, op)
	if err != nil {
		return uuid.Nil, err
	}
	return parsed.TxID(), s.enqueue(ctx, op, parsed.Token(), payload)
}

// SubmitOperation encodes op and queues it.
func (s *GRPCIngestService) SubmitOperation(ctx context.Context, op event.Operation) error {
	payload, err := event.MarshalOperation(op)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, op.OpType(), op.Token(), payload)
}

func (s *GRPCIngestService) enqueue(ctx context.Context, op event.OpType, token string, payload []byte) error {
	raw := RawTx{
		Subject:   TxSubject(op, token),
		Op:        op,
		Data:      payload,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
	select {
	case s.txChan <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
