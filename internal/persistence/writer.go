package persistence

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/event"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventLogWriter writes transactions and journals to Postgres using
// multi-row INSERTs. Every statement is idempotent on its natural key so a
// retried batch never duplicates rows.
type EventLogWriter struct {
	db *sql.DB
}

// TxRow represents a row in event_log.transactions
type TxRow struct {
	Sequence  int64
	TxID      uuid.UUID
	OpType    string
	Token     string
	Block     uint64
	Payload   []byte // JSON-encoded operation
	Notices   []byte // JSON array of {type, data}
	StateHash []byte
	PrevHash  []byte
	CreatedAt time.Time
}

// JournalRow represents a row in event_log.journal. Amount is a decimal
// string so u256 values survive the NUMERIC column.
type JournalRow struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	TxRef         uuid.UUID
	Sequence      int64
	Block         uint64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        string
	JournalType   string
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

const txColumns = 10

// WriteTxBatch writes a batch of transactions to event_log.transactions.
func (w *EventLogWriter) WriteTxBatch(ctx context.Context, ex execer, rows []TxRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*txColumns)
	for i, r := range rows {
		values = append(values, placeholders(i*txColumns, txColumns))
		payload := r.Payload
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		notices := r.Notices
		if len(notices) == 0 {
			notices = []byte("[]")
		}
		args = append(args,
			r.Sequence, r.TxID, r.OpType, r.Token, int64(r.Block),
			payload, notices, r.StateHash, r.PrevHash, r.CreatedAt,
		)
	}

	query := `INSERT INTO event_log.transactions
		(sequence, tx_id, op_type, token, block, payload, notices, state_hash, prev_hash, created_at)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (sequence) DO NOTHING`
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

const journalColumns = 10

// WriteJournalBatch writes a batch of journal entries to event_log.journal.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, ex execer, rows []JournalRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*journalColumns)
	for i, j := range rows {
		values = append(values, placeholders(i*journalColumns, journalColumns))
		args = append(args,
			j.JournalID, j.BatchID, j.TxRef, j.Sequence, int64(j.Block),
			j.DebitAccount, j.CreditAccount, j.Asset, j.Amount, j.JournalType,
		)
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, tx_ref, sequence, block, debit_account, credit_account, asset, amount, journal_type)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (journal_id) DO NOTHING`
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for k := 1; k <= n; k++ {
		if k > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+k)
	}
	b.WriteByte(')')
	return b.String()
}

type noticeRecord struct {
	Type string       `json:"type"`
	Data event.Notice `json:"data"`
}

// MarshalNotices encodes notices as a JSON array tagged by notice type.
func MarshalNotices(notices []event.Notice) ([]byte, error) {
	out := make([]noticeRecord, 0, len(notices))
	for _, n := range notices {
		out = append(out, noticeRecord{Type: n.NoticeType(), Data: n})
	}
	return json.Marshal(out)
}

// RowsFromOutput flattens one engine output into event log rows.
func RowsFromOutput(out core.CoreOutput, now time.Time) (TxRow, []JournalRow, error) {
	env := out.Envelope
	notices, err := MarshalNotices(out.Notices)
	if err != nil {
		return TxRow{}, nil, fmt.Errorf("marshal notices at seq=%d: %w", env.Sequence, err)
	}
	tx := TxRow{
		Sequence:  env.Sequence,
		TxID:      env.TxID,
		OpType:    env.OpType.String(),
		Token:     env.Token,
		Block:     env.Block,
		Payload:   env.Payload,
		Notices:   notices,
		StateHash: env.StateHash[:],
		PrevHash:  env.PrevHash[:],
		CreatedAt: now,
	}

	if out.Batch == nil {
		return tx, nil, nil
	}
	journals := make([]JournalRow, 0, len(out.Batch.Journals))
	for _, j := range out.Batch.Journals {
		journals = append(journals, JournalRow{
			JournalID:     j.JournalID,
			BatchID:       j.BatchID,
			TxRef:         j.TxRef,
			Sequence:      j.Sequence,
			Block:         j.Block,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Asset:         j.DebitAccount.Asset,
			Amount:        j.Amount.Dec(),
			JournalType:   j.JournalType.String(),
		})
	}
	return tx, journals, nil
}
