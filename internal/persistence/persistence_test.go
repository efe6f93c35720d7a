package persistence

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/event"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"
	"NativeSwap/internal/testutil"
	"NativeSwap/migrations"
	"context"
	"encoding/json"
	"testing"
	"testing/fstest"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPoolOutput(t *testing.T) core.CoreOutput {
	t.Helper()
	e, err := core.NewEngine(core.EngineConfig{Store: storage.NewMemStore(), Params: state.DefaultParams()})
	require.NoError(t, err)
	out, err := e.ProcessTransaction(&event.CreatePool{
		Meta:               testutil.Meta("MOTO", testutil.Ctx(100, "alice")),
		FloorPrice:         uint256.NewInt(100),
		InitialLiquidity:   uint256.NewInt(1_000_000_000),
		Receiver:           "alice-btc",
		MaxReservesPercent: 50,
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	return *out
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "($1, $2, $3)", placeholders(0, 3))
	assert.Equal(t, "($11, $12)", placeholders(10, 2))
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, "000001", extractVersion("000001_event_log.up.sql"))
	assert.Equal(t, "noversion", extractVersion("noversion"))
}

func TestMigrator_ListsFilesInOrder(t *testing.T) {
	m := NewMigrator(nil, fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("SELECT 2")},
		"000001_a.up.sql":   {Data: []byte("SELECT 1")},
		"000001_a.down.sql": {Data: []byte("SELECT 0")},
		"README":            {Data: []byte("x")},
	})
	files, err := m.listMigrationFiles(".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, files)
}

func TestEmbeddedMigrationsPairUpAndDown(t *testing.T) {
	m := NewMigrator(nil, migrations.FS)
	ups, err := m.listMigrationFiles(".up.sql")
	require.NoError(t, err)
	downs, err := m.listMigrationFiles(".down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestRowsFromOutput(t *testing.T) {
	out := createPoolOutput(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	tx, journals, err := RowsFromOutput(out, now)
	require.NoError(t, err)

	assert.Equal(t, int64(1), tx.Sequence)
	assert.Equal(t, out.Envelope.TxID, tx.TxID)
	assert.Equal(t, "CreatePool", tx.OpType)
	assert.Equal(t, "MOTO", tx.Token)
	assert.Equal(t, uint64(100), tx.Block)
	assert.Equal(t, out.Envelope.StateHash[:], tx.StateHash)
	assert.Equal(t, now, tx.CreatedAt)
	assert.True(t, json.Valid(tx.Payload))

	var notices []struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(tx.Notices, &notices))
	require.NotEmpty(t, notices)
	assert.Equal(t, "PoolCreated", notices[0].Type)

	require.Len(t, journals, 1)
	j := journals[0]
	assert.Equal(t, "listing", j.JournalType)
	assert.Equal(t, "1000000000", j.Amount)
	assert.Equal(t, "MOTO", j.Asset)
	assert.Equal(t, "external:deposits:MOTO", j.CreditAccount)
	assert.Contains(t, j.DebitAccount, ":inventory:MOTO")
	assert.Equal(t, int64(1), j.Sequence)
}

func TestMarshalNotices_Empty(t *testing.T) {
	b, err := MarshalNotices(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(b))
}

func TestCheckpointData_RoundTrip(t *testing.T) {
	snap := &core.SnapshotState{
		Sequence:        42,
		StateHash:       [32]byte{1, 2, 3},
		LastBlock:       900,
		IdempotencyKeys: []string{"Swap:abc"},
	}
	cp := FromSnapshotState(snap, time.Now())
	back, err := cp.SnapshotState()
	require.NoError(t, err)
	assert.Equal(t, snap, back)

	cp.StateHash = cp.StateHash[:5]
	_, err = cp.SnapshotState()
	assert.Error(t, err)
}

func TestPostgres_PersistDedupAndCheckpoint(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, NewMigrator(db, migrations.FS).Up(ctx))

	out := createPoolOutput(t)
	ch := make(chan core.CoreOutput, 1)
	ch <- out
	close(ch)
	require.NoError(t, NewPersistenceWorker(db, ch, 10, time.Second, nil).Run(ctx))

	dedup := NewPostgresIdempotencyChecker(db)
	dup, err := dedup.IsDuplicate("CreatePool", out.Envelope.TxID)
	require.NoError(t, err)
	assert.True(t, dup)
	dup, err = dedup.IsDuplicate("Swap", out.Envelope.TxID)
	require.NoError(t, err)
	assert.False(t, dup)

	keys, err := dedup.RecentKeys(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"CreatePool:" + out.Envelope.TxID.String()}, keys)

	cm := NewCheckpointManager(db)
	latest, err := cm.GetLatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest)

	rows, err := cm.LoadTransactionsFrom(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, out.Envelope.StateHash[:], rows[0].StateHash)

	cp := &CheckpointData{Sequence: 1, StateHash: out.Envelope.StateHash[:], LastBlock: 100, CreatedAt: time.Now().UTC()}
	require.NoError(t, cm.SaveCheckpoint(ctx, cp))
	got, err := cm.LoadLatestCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(100), got.LastBlock)
	require.NoError(t, cm.MarkVerified(ctx, 1))
}
