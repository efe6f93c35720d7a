package ledger_test

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/ledger"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_ProviderPath(t *testing.T) {
	key := ledger.NewProviderAccountKey("ab12", ledger.SubTypeInventory, "MOTO")

	path := key.AccountPath()
	if path != "provider:ab12:inventory:MOTO" {
		t.Errorf("got %q, want %q", path, "provider:ab12:inventory:MOTO")
	}
}

func TestAccountKey_PoolPath(t *testing.T) {
	key := ledger.NewPoolAccountKey(ledger.SubTypeSettlement, "MOTO")
	if key.AccountPath() != "pool:settlement:MOTO" {
		t.Errorf("got %q", key.AccountPath())
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.NewExternalAccountKey(ledger.SubTypePayments, ledger.SatoshiAsset)
	if key.AccountPath() != "external:payments:BTC" {
		t.Errorf("got %q", key.AccountPath())
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func swapNotices() []event.Notice {
	return []event.Notice{
		&event.ProviderConsumed{ProviderID: "p1", Amount: uint256.NewInt(600), Satoshis: 6_000},
		&event.ProviderConsumed{ProviderID: "p2", Amount: uint256.NewInt(400), Satoshis: 4_000},
		&event.SwapExecuted{
			Owner:     "buyer",
			TokensOut: uint256.NewInt(997),
			FeeTokens: uint256.NewInt(3),
		},
	}
}

func TestGenerate_SwapBalancesSettlement(t *testing.T) {
	jg := ledger.NewJournalGenerator(1)
	tx := ledger.TxInfo{TxID: uuid.New(), Sequence: 7, Block: 100, Token: "MOTO", Owner: "buyer"}

	batch, err := jg.Generate(tx, swapNotices())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// two fills, two payments, delivery, fee
	if len(batch.Journals) != 6 {
		t.Fatalf("expected 6 journals, got %d", len(batch.Journals))
	}
	if err := ledger.NewInvariantValidator().ValidateBatch(batch); err != nil {
		t.Errorf("batch should validate: %v", err)
	}
	if jg.Sequence() != 8 {
		t.Errorf("next sequence: got %d, want 8", jg.Sequence())
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	tx := ledger.TxInfo{TxID: uuid.New(), Sequence: 1, Token: "MOTO", Owner: "buyer"}

	a, err := ledger.NewJournalGenerator(1).Generate(tx, swapNotices())
	if err != nil {
		t.Fatal(err)
	}
	b, err := ledger.NewJournalGenerator(1).Generate(tx, swapNotices())
	if err != nil {
		t.Fatal(err)
	}
	if a.BatchID != b.BatchID {
		t.Error("batch ids differ across replays")
	}
	for i := range a.Journals {
		if a.Journals[i].JournalID != b.Journals[i].JournalID {
			t.Errorf("journal %d id differs across replays", i)
		}
	}
}

func TestGenerate_SkipsZeroAmounts(t *testing.T) {
	tx := ledger.TxInfo{TxID: uuid.New(), Sequence: 1, Token: "MOTO", Owner: "seller"}
	notices := []event.Notice{
		&event.ListingCanceled{ProviderID: "p1", Refunded: uint256.NewInt(950), Penalty: new(uint256.Int)},
		&event.ProviderFulfilled{ProviderID: "p1", Canceled: true, Burned: uint256.NewInt(950)},
	}

	batch, err := ledger.NewJournalGenerator(1).Generate(tx, notices)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Journals) != 1 {
		t.Fatalf("expected only the refund journal, got %d", len(batch.Journals))
	}
	if batch.Journals[0].JournalType != ledger.JournalTypeCancelRefund {
		t.Errorf("got %s", batch.Journals[0].JournalType)
	}
}

func TestGenerate_DustBurn(t *testing.T) {
	tx := ledger.TxInfo{TxID: uuid.New(), Sequence: 1, Token: "MOTO"}
	notices := []event.Notice{
		&event.ProviderFulfilled{ProviderID: "p1", Burned: uint256.NewInt(5)},
	}

	batch, err := ledger.NewJournalGenerator(1).Generate(tx, notices)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Journals) != 1 || batch.Journals[0].DebitAccount.SubType != ledger.SubTypeBurn {
		t.Errorf("expected a single burn journal, got %+v", batch.Journals)
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestValidator_SettlementImbalance(t *testing.T) {
	tx := ledger.TxInfo{TxID: uuid.New(), Sequence: 1, Token: "MOTO", Owner: "buyer"}
	notices := []event.Notice{
		&event.ProviderConsumed{ProviderID: "p1", Amount: uint256.NewInt(1000)},
		&event.SwapExecuted{Owner: "buyer", TokensOut: uint256.NewInt(990), FeeTokens: uint256.NewInt(3)},
	}

	batch, err := ledger.NewJournalGenerator(1).Generate(tx, notices)
	if err != nil {
		t.Fatal(err)
	}
	if err := ledger.NewInvariantValidator().ValidateBatch(batch); err == nil {
		t.Error("expected settlement imbalance to fail validation")
	}
}

func TestBatch_ValidateRejectsSameAccount(t *testing.T) {
	id := uuid.New()
	key := ledger.NewPoolAccountKey(ledger.SubTypeSettlement, "MOTO")
	batch := &ledger.Batch{
		BatchID: id,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       id,
			DebitAccount:  key,
			CreditAccount: key,
			Amount:        uint256.NewInt(1),
		}},
	}
	if err := batch.Validate(); err == nil {
		t.Error("expected same-account journal to be rejected")
	}
}

func TestBatch_ValidateRejectsAssetMismatch(t *testing.T) {
	id := uuid.New()
	batch := &ledger.Batch{
		BatchID: id,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       id,
			DebitAccount:  ledger.NewPoolAccountKey(ledger.SubTypeSettlement, "MOTO"),
			CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypePayments, ledger.SatoshiAsset),
			Amount:        uint256.NewInt(1),
		}},
	}
	if err := batch.Validate(); err == nil {
		t.Error("expected cross-asset journal to be rejected")
	}
}
