package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// JournalType is the purpose of a journal entry
type JournalType int32

const (
	JournalTypeListing JournalType = iota
	JournalTypeProviderFill
	JournalTypeProviderPayment
	JournalTypeSwapDelivery
	JournalTypeSwapFee
	JournalTypeCancelRefund
	JournalTypeCancelPenalty
	JournalTypeDustBurn
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeListing:
		return "listing"
	case JournalTypeProviderFill:
		return "provider_fill"
	case JournalTypeProviderPayment:
		return "provider_payment"
	case JournalTypeSwapDelivery:
		return "swap_delivery"
	case JournalTypeSwapFee:
		return "swap_fee"
	case JournalTypeCancelRefund:
		return "cancel_refund"
	case JournalTypeCancelPenalty:
		return "cancel_penalty"
	case JournalTypeDustBurn:
		return "dust_burn"
	default:
		return "unknown"
	}
}

// Journal is a single double-entry transfer
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	TxRef         uuid.UUID // transaction that produced it
	Sequence      int64
	Block         uint64
	DebitAccount  AccountKey   // balance increases
	CreditAccount AccountKey   // balance decreases
	Amount        *uint256.Int // always positive
	JournalType   JournalType
}

// Batch is every journal of one committed transaction
type Batch struct {
	BatchID  uuid.UUID
	TxRef    uuid.UUID
	Sequence int64
	Block    uint64
	Journals []Journal
}

// Validate checks the batch is well-formed. Each entry moves one positive
// amount between two distinct accounts, so every entry balances on its own.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount == nil || j.Amount.IsZero() {
			return fmt.Errorf("journal %s has non-positive amount", j.JournalID)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
		if j.DebitAccount.Asset != j.CreditAccount.Asset {
			return fmt.Errorf("journal %s moves %s into %s", j.JournalID, j.CreditAccount.Asset, j.DebitAccount.Asset)
		}
	}
	return nil
}
