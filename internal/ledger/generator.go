package ledger

import (
	"NativeSwap/internal/event"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// JournalGenerator turns the notices of one committed transaction into a
// balanced journal batch. Ids are derived from the tx id so a replay
// produces the same batch.
type JournalGenerator struct {
	sequence int64
}

func NewJournalGenerator(startSequence int64) *JournalGenerator {
	return &JournalGenerator{sequence: startSequence}
}

// Sequence is the sequence the next batch will carry.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// TxInfo identifies the transaction a batch belongs to.
type TxInfo struct {
	TxID     uuid.UUID
	Sequence int64
	Block    uint64
	Token    string // asset name of the pool token
	Owner    string // sender of the transaction
}

// Generate builds the batch for tx. Notices that move no balance are
// skipped. An empty batch is returned when nothing moved.
func (jg *JournalGenerator) Generate(tx TxInfo, notices []event.Notice) (*Batch, error) {
	b := &batchBuilder{
		batch: &Batch{
			BatchID:  uuid.NewSHA1(tx.TxID, []byte("batch")),
			TxRef:    tx.TxID,
			Sequence: tx.Sequence,
			Block:    tx.Block,
		},
	}
	token := tx.Token

	for _, n := range notices {
		switch e := n.(type) {
		case *event.PoolCreated:
			// external:deposits → provider:inventory
			b.add(NewProviderAccountKey(e.InitialProvider, SubTypeInventory, token),
				NewExternalAccountKey(SubTypeDeposits, token), e.InitialLiquidity, JournalTypeListing)

		case *event.LiquidityListed:
			b.add(NewProviderAccountKey(e.ProviderID, SubTypeInventory, token),
				NewExternalAccountKey(SubTypeDeposits, token), e.Amount, JournalTypeListing)

		case *event.ProviderConsumed:
			// provider:inventory → pool:settlement, buyer sats → provider:proceeds
			b.add(NewPoolAccountKey(SubTypeSettlement, token),
				NewProviderAccountKey(e.ProviderID, SubTypeInventory, token), e.Amount, JournalTypeProviderFill)
			if e.Satoshis > 0 {
				b.add(NewProviderAccountKey(e.ProviderID, SubTypeProceeds, SatoshiAsset),
					NewExternalAccountKey(SubTypePayments, SatoshiAsset), uint256.NewInt(e.Satoshis), JournalTypeProviderPayment)
			}

		case *event.SwapExecuted:
			b.add(NewUserAccountKey(e.Owner, SubTypeWallet, token),
				NewPoolAccountKey(SubTypeSettlement, token), e.TokensOut, JournalTypeSwapDelivery)
			b.add(NewSystemAccountKey(SubTypeStaking, token),
				NewPoolAccountKey(SubTypeSettlement, token), e.FeeTokens, JournalTypeSwapFee)

		case *event.ListingCanceled:
			b.add(NewUserAccountKey(tx.Owner, SubTypeWallet, token),
				NewProviderAccountKey(e.ProviderID, SubTypeInventory, token), e.Refunded, JournalTypeCancelRefund)
			b.add(NewSystemAccountKey(SubTypeStaking, token),
				NewProviderAccountKey(e.ProviderID, SubTypeInventory, token), e.Penalty, JournalTypeCancelPenalty)

		case *event.ProviderFulfilled:
			// a canceled listing is already covered by ListingCanceled
			if e.Canceled {
				continue
			}
			b.add(NewExternalAccountKey(SubTypeBurn, token),
				NewProviderAccountKey(e.ProviderID, SubTypeInventory, token), e.Burned, JournalTypeDustBurn)
		}
	}

	if b.err != nil {
		return nil, b.err
	}
	if err := b.batch.Validate(); err != nil {
		return nil, fmt.Errorf("generated batch invalid: %w", err)
	}
	jg.sequence = tx.Sequence + 1
	return b.batch, nil
}

type batchBuilder struct {
	batch *Batch
	err   error
}

// add appends one journal. Nil or zero amounts are skipped.
func (b *batchBuilder) add(debit, credit AccountKey, amount *uint256.Int, jt JournalType) {
	if b.err != nil || amount == nil || amount.IsZero() {
		return
	}
	if debit.Entity == "" && (debit.Scope == AccountScopeProvider || debit.Scope == AccountScopeUser) {
		b.err = fmt.Errorf("%s journal debits an account with no entity", jt)
		return
	}
	idx := len(b.batch.Journals)
	b.batch.Journals = append(b.batch.Journals, Journal{
		JournalID:     uuid.NewSHA1(b.batch.BatchID, []byte(strconv.Itoa(idx))),
		BatchID:       b.batch.BatchID,
		TxRef:         b.batch.TxRef,
		Sequence:      b.batch.Sequence,
		Block:         b.batch.Block,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount.Clone(),
		JournalType:   jt,
	})
}
