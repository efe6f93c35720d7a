package query

// PoolResponse describes one pool as of a block. Token amounts are decimal
// strings; prices are rendered with shopspring/decimal.
type PoolResponse struct {
	Token                  string `json:"token"`
	TokenID                string `json:"token_id"`
	Block                  uint64 `json:"block"`
	Quote                  string `json:"quote"`
	TokensPerSatoshi       string `json:"tokens_per_satoshi"`
	SatoshisPerToken       string `json:"satoshis_per_token"`
	Liquidity              string `json:"liquidity"`
	ReservedLiquidity      string `json:"reserved_liquidity"`
	AvailableLiquidity     string `json:"available_liquidity"`
	VirtualTokenReserve    string `json:"virtual_token_reserve"`
	VirtualSatoshisReserve uint64 `json:"virtual_satoshis_reserve"`
	UtilizationPercent     uint64 `json:"utilization_percent"`
	Volatility             string `json:"volatility"`
	MaxReservesPercent     uint64 `json:"max_reserves_percent"`
	TokensLeftBeforeCap    string `json:"tokens_left_before_cap"`
	LastPurgedBlock        uint64 `json:"last_purged_block"`
	PriorityQueueLen       uint64 `json:"priority_queue_len"`
	NormalQueueLen         uint64 `json:"normal_queue_len"`
	RemovalQueueLen        uint64 `json:"removal_queue_len"`
}

// QuoteResponse estimates a purchase of Satoshis at the current quote.
type QuoteResponse struct {
	Token            string `json:"token"`
	Block            uint64 `json:"block"`
	Satoshis         uint64 `json:"satoshis"`
	Quote            string `json:"quote"`
	TokensGross      string `json:"tokens_gross"`
	FeeTokens        string `json:"fee_tokens"`
	FeeBP            uint64 `json:"fee_bp"`
	TokensNet        string `json:"tokens_net"`
	EffectivePrice   string `json:"effective_satoshis_per_token"`
	CapLimited       bool   `json:"cap_limited"`
	AvailableForSale string `json:"available_for_sale"`
}

// ProviderResponse describes one owner's listing on a pool.
type ProviderResponse struct {
	Token                     string  `json:"token"`
	Owner                     string  `json:"owner"`
	ProviderID                string  `json:"provider_id"`
	Receiver                  string  `json:"receiver"`
	Liquidity                 string  `json:"liquidity"`
	Reserved                  string  `json:"reserved"`
	Provided                  string  `json:"provided"`
	PendingCredit             string  `json:"pending_credit"`
	Active                    bool    `json:"active"`
	Priority                  bool    `json:"priority"`
	PendingRemoval            bool    `json:"pending_removal"`
	LiquidityProvider         bool    `json:"liquidity_provider"`
	LiquidityProvisionAllowed bool    `json:"liquidity_provision_allowed"`
	InitialProvider           bool    `json:"initial_provider"`
	Queue                     string  `json:"queue"`
	QueueIndex                *uint32 `json:"queue_index,omitempty"`
	OwedSatoshis              uint64  `json:"owed_satoshis"`
	ReservedSatoshis          uint64  `json:"reserved_satoshis"`
}

// ReservationEntryResponse is one provider's share of a reservation.
type ReservationEntryResponse struct {
	ProviderIndex   uint32 `json:"provider_index"`
	InitialProvider bool   `json:"initial_provider"`
	ProvidedAmount  string `json:"provided_amount"`
	ProviderType    string `json:"provider_type"`
	CreationBlock   uint64 `json:"creation_block"`
}

// ReservationResponse describes an owner's reservation on a pool.
type ReservationResponse struct {
	Token            string                     `json:"token"`
	Owner            string                     `json:"owner"`
	ReservationID    string                     `json:"reservation_id"`
	Exists           bool                       `json:"exists"`
	CreationBlock    uint64                     `json:"creation_block"`
	ExpirationBlock  uint64                     `json:"expiration_block"`
	ActivationDelay  uint8                      `json:"activation_delay"`
	ForLiquidityPool bool                       `json:"for_liquidity_pool"`
	Purged           bool                       `json:"purged"`
	Valid            bool                       `json:"valid"`
	Consumable       bool                       `json:"consumable"`
	TotalReserved    string                     `json:"total_reserved"`
	Entries          []ReservationEntryResponse `json:"entries"`
	AsOfBlock        uint64                     `json:"as_of_block"`
}

// QuotePoint is one entry of the projected quote history.
type QuotePoint struct {
	Sequence         int64   `json:"sequence"`
	Block            uint64  `json:"block"`
	Quote            string  `json:"quote"`
	TokensPerSatoshi string  `json:"tokens_per_satoshi"`
	Volatility       uint64  `json:"volatility"`
	FeeBP            *uint64 `json:"fee_bp,omitempty"`
}

// QuoteHistoryResponse lists recent quotes, newest first.
type QuoteHistoryResponse struct {
	Token        string       `json:"token"`
	Points       []QuotePoint `json:"points"`
	AsOfSequence int64        `json:"as_of_sequence"`
}

// JournalHistoryEntry is one journal row touching an account.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	TxRef         string `json:"tx_ref"`
	Sequence      int64  `json:"sequence"`
	Block         uint64 `json:"block"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	JournalType   string `json:"journal_type"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy          bool              `json:"is_healthy"`
	HashChainBreaks    []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAccounts []UnbalancedAsset `json:"unbalanced_accounts,omitempty"`
}

// UnbalancedAsset is a clearing account whose journal sum is not zero.
type UnbalancedAsset struct {
	Account   string `json:"account"`
	Imbalance string `json:"imbalance"`
}
