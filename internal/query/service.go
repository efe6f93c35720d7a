package query

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	// ErrPoolNotFound is returned for tokens without a created pool.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrUnavailable is returned by history queries when no database is wired.
	ErrUnavailable = errors.New("projection database not configured")
	// ErrInvalidArgument wraps malformed request parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

var quoteScale = decimal.NewFromUint64(fpmath.QuoteScale)

// BlockSource reports the newest applied block.
type BlockSource interface {
	LastBlock() uint64
}

// QueryService answers read-only questions. Pool, provider and reservation
// state is read from a store snapshot; history comes from the Postgres
// projections.
type QueryService struct {
	store  storage.KVStore
	params state.Params
	blocks BlockSource
	db     *sql.DB
}

func NewQueryService(store storage.KVStore, params state.Params, blocks BlockSource, db *sql.DB) *QueryService {
	return &QueryService{store: store, params: params, blocks: blocks, db: db}
}

// open reads token at block, or at the newest applied block when block is 0.
func (qs *QueryService) open(token string, block uint64) (*core.ReadOnlyQueue, func(), error) {
	if token == "" {
		return nil, nil, fmt.Errorf("%w: token is required", ErrInvalidArgument)
	}
	if block == 0 && qs.blocks != nil {
		block = qs.blocks.LastBlock()
	}
	snap, err := qs.store.Snapshot()
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	q, err := core.OpenReadOnly(snap, qs.params, token, block)
	if err != nil {
		snap.Release()
		return nil, nil, err
	}
	return q, func() {
		q.Close()
		snap.Release()
	}, nil
}

// GetPool returns the pool view of token.
func (qs *QueryService) GetPool(ctx context.Context, token string, block uint64) (*PoolResponse, error) {
	q, done, err := qs.open(token, block)
	if err != nil {
		return nil, err
	}
	defer done()

	view, err := q.View(token)
	if err != nil {
		return nil, err
	}
	if !view.Created {
		return nil, ErrPoolNotFound
	}
	available, err := q.Reserve().AvailableLiquidity()
	if err != nil {
		return nil, err
	}
	left, err := q.GetMaximumTokensLeftBeforeCap()
	if err != nil {
		return nil, err
	}
	perSat, perToken := renderPrice(view.Quote)
	return &PoolResponse{
		Token:                  view.Token,
		TokenID:                view.TokenID,
		Block:                  view.Block,
		Quote:                  view.Quote.Dec(),
		TokensPerSatoshi:       perSat,
		SatoshisPerToken:       perToken,
		Liquidity:              view.Liquidity.Dec(),
		ReservedLiquidity:      view.ReservedLiquidity.Dec(),
		AvailableLiquidity:     available.Dec(),
		VirtualTokenReserve:    view.VirtualTokenReserve.Dec(),
		VirtualSatoshisReserve: view.VirtualSatoshisReserve,
		UtilizationPercent:     view.UtilizationPercent,
		Volatility:             view.Volatility.Dec(),
		MaxReservesPercent:     view.MaxReservesPercent,
		TokensLeftBeforeCap:    left.Dec(),
		LastPurgedBlock:        view.LastPurgedBlock,
		PriorityQueueLen:       view.PriorityQueueLen,
		NormalQueueLen:         view.NormalQueueLen,
		RemovalQueueLen:        view.RemovalQueueLen,
	}, nil
}

// GetQuote estimates what satoshis would buy at the current quote,
// including the dynamic fee and the reservation cap.
func (qs *QueryService) GetQuote(ctx context.Context, token string, satoshis uint64) (*QuoteResponse, error) {
	if satoshis == 0 {
		return nil, fmt.Errorf("%w: satoshis must be positive", ErrInvalidArgument)
	}
	q, done, err := qs.open(token, 0)
	if err != nil {
		return nil, err
	}
	defer done()

	if !q.Pool().Created() {
		return nil, ErrPoolNotFound
	}
	quote, err := q.Quote()
	if err != nil {
		return nil, err
	}
	gross, err := fpmath.SatoshisToTokens(satoshis, quote)
	if err != nil {
		return nil, err
	}
	left, err := q.GetMaximumTokensLeftBeforeCap()
	if err != nil {
		return nil, err
	}
	capped := gross.Gt(left)
	if capped {
		gross = left
	}
	fee, bp, err := q.ComputeFees(gross, satoshis)
	if err != nil {
		return nil, err
	}
	net := new(uint256.Int)
	if fee.Lt(gross) {
		net.Sub(gross, fee)
	}

	effective := "0"
	if !net.IsZero() {
		effective = decimal.NewFromUint64(satoshis).
			DivRound(decimal.NewFromBigInt(net.ToBig(), 0), 18).String()
	}
	return &QuoteResponse{
		Token:            token,
		Block:            q.Block(),
		Satoshis:         satoshis,
		Quote:            quote.Dec(),
		TokensGross:      gross.Dec(),
		FeeTokens:        fee.Dec(),
		FeeBP:            bp,
		TokensNet:        net.Dec(),
		EffectivePrice:   effective,
		CapLimited:       capped,
		AvailableForSale: left.Dec(),
	}, nil
}

// GetProvider returns owner's listing on token.
func (qs *QueryService) GetProvider(ctx context.Context, token, owner string) (*ProviderResponse, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}
	q, done, err := qs.open(token, 0)
	if err != nil {
		return nil, err
	}
	defer done()

	if !q.Pool().Created() {
		return nil, ErrPoolNotFound
	}
	id := state.NewProviderID(owner, token)
	p, err := q.Repo.Get(id)
	if err != nil {
		return nil, err
	}
	owed := state.NewOwedLedger(q.Overlay)

	resp := &ProviderResponse{
		Token:                     token,
		Owner:                     owner,
		ProviderID:                id.String(),
		Receiver:                  p.Receiver,
		Liquidity:                 p.Liquidity().Dec(),
		Reserved:                  p.Reserved().Dec(),
		Provided:                  p.Provided().Dec(),
		PendingCredit:             p.PendingCredit.Dec(),
		Active:                    p.Active,
		Priority:                  p.Priority,
		PendingRemoval:            p.PendingRemoval,
		LiquidityProvider:         p.LiquidityProvider,
		LiquidityProvisionAllowed: p.LiquidityProvisionAllowed,
		InitialProvider:           p.InitialProvider,
		Queue:                     p.Membership.Kind().String(),
		OwedSatoshis:              owed.Owed(id),
		ReservedSatoshis:          owed.Reserved(id),
	}
	if idx, ok := p.Membership.Index(); ok {
		resp.QueueIndex = &idx
	}
	return resp, nil
}

// GetReservation returns owner's reservation on token.
func (qs *QueryService) GetReservation(ctx context.Context, token, owner string) (*ReservationResponse, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}
	q, done, err := qs.open(token, 0)
	if err != nil {
		return nil, err
	}
	defer done()

	id := state.NewReservationID(token, owner)
	r, err := state.LoadReservation(q.Overlay, id)
	if err != nil {
		return nil, err
	}
	block := q.Block()
	resp := &ReservationResponse{
		Token:            token,
		Owner:            owner,
		ReservationID:    id.String(),
		Exists:           r.Exists(),
		CreationBlock:    r.CreationBlock,
		ExpirationBlock:  r.ExpirationBlock,
		ActivationDelay:  r.ActivationDelay,
		ForLiquidityPool: r.ForLiquidityPool,
		Purged:           r.Purged,
		Valid:            r.IsValid(block),
		TotalReserved:    r.TotalReserved().Dec(),
		Entries:          make([]ReservationEntryResponse, 0, len(r.Entries)),
		AsOfBlock:        block,
	}
	// consumable in the next block
	resp.Consumable = r.Exists() && r.EnsureCanBeConsumed(block+1) == nil
	for _, e := range r.Entries {
		resp.Entries = append(resp.Entries, ReservationEntryResponse{
			ProviderIndex:   e.ProviderIndex,
			InitialProvider: e.ProviderIndex == state.InitialProviderIndex,
			ProvidedAmount:  e.ProvidedAmount.Dec(),
			ProviderType:    e.ProviderType.String(),
			CreationBlock:   e.CreationBlock,
		})
	}
	return resp, nil
}

// GetQuoteHistory returns the newest limit quotes of token.
func (qs *QueryService) GetQuoteHistory(ctx context.Context, token string, limit int) (*QuoteHistoryResponse, error) {
	if qs.db == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, block, quote::TEXT, volatility, fee_bp
		FROM projections.quote_history
		WHERE token = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, token, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &QuoteHistoryResponse{Token: token, Points: []QuotePoint{}, AsOfSequence: asOf}
	for rows.Next() {
		var p QuotePoint
		var block, vol int64
		var fee sql.NullInt64
		if err := rows.Scan(&p.Sequence, &block, &p.Quote, &vol, &fee); err != nil {
			return nil, err
		}
		p.Block, p.Volatility = uint64(block), uint64(vol)
		if fee.Valid {
			bp := uint64(fee.Int64)
			p.FeeBP = &bp
		}
		if quote, err := uint256.FromDecimal(p.Quote); err == nil {
			p.TokensPerSatoshi, _ = renderPrice(quote)
		}
		resp.Points = append(resp.Points, p)
	}
	return resp, rows.Err()
}

// GetJournalHistory returns journal rows touching any account of entity,
// newest first. afterSequence pages backwards.
func (qs *QueryService) GetJournalHistory(ctx context.Context, entity string, limit int, afterSequence *int64) ([]JournalHistoryEntry, error) {
	if qs.db == nil {
		return nil, ErrUnavailable
	}
	if entity == "" {
		return nil, fmt.Errorf("%w: entity is required", ErrInvalidArgument)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT journal_id, batch_id, tx_ref, sequence, block,
		       debit_account, credit_account, asset, amount::TEXT, journal_type
		FROM event_log.journal
		WHERE (split_part(debit_account, ':', 2) = $1 OR split_part(credit_account, ':', 2) = $1)
	`
	args := []any{entity}
	if afterSequence != nil {
		query += " AND sequence < $2 ORDER BY sequence DESC LIMIT $3"
		args = append(args, *afterSequence, limit)
	} else {
		query += " ORDER BY sequence DESC LIMIT $2"
		args = append(args, limit)
	}

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []JournalHistoryEntry{}
	for rows.Next() {
		var e JournalHistoryEntry
		var block int64
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.TxRef, &e.Sequence, &block,
			&e.DebitAccount, &e.CreditAccount, &e.Asset, &e.Amount, &e.JournalType,
		); err != nil {
			return nil, err
		}
		e.Block = uint64(block)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity in the event log and that
// every pool settlement account nets to zero.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	if qs.db == nil {
		return nil, ErrUnavailable
	}
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT t1.sequence
		FROM event_log.transactions t1
		JOIN event_log.transactions t2 ON t2.sequence = t1.sequence - 1
		WHERE t1.prev_hash != t2.state_hash
		ORDER BY t1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			rows.Close()
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balances, err := qs.db.QueryContext(ctx, `
		SELECT account, SUM(delta)::TEXT FROM (
			SELECT debit_account AS account, amount AS delta FROM event_log.journal
			WHERE debit_account LIKE 'pool:settlement:%'
			UNION ALL
			SELECT credit_account, -amount FROM event_log.journal
			WHERE credit_account LIKE 'pool:settlement:%'
		) moves
		GROUP BY account
		HAVING SUM(delta) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balances.Close()
	for balances.Next() {
		var u UnbalancedAsset
		if err := balances.Scan(&u.Account, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedAccounts = append(report.UnbalancedAccounts, u)
	}
	if err := balances.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAccounts) == 0
	return report, nil
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

// renderPrice turns a scaled quote into tokens per satoshi and satoshis
// per token.
func renderPrice(quote *uint256.Int) (perSatoshi, perToken string) {
	if quote == nil || quote.IsZero() {
		return "0", "0"
	}
	tokens := decimal.NewFromBigInt(quote.ToBig(), 0).DivRound(quoteScale, 18)
	return tokens.String(), decimal.NewFromInt(1).DivRound(tokens, 18).String()
}

// IsNotFound reports whether err means the requested object is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPoolNotFound)
}

// IsInvalid reports whether err was caused by the request itself.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || failure.KindOf(err) == failure.KindPrecondition
}

// LastBlock is the newest block the engine has applied.
func (qs *QueryService) LastBlock() uint64 {
	if qs.blocks == nil {
		return 0
	}
	return qs.blocks.LastBlock()
}
