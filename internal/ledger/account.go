package ledger

import "fmt"

// AccountScope is the top-level account namespace
type AccountScope uint8

const (
	AccountScopeProvider AccountScope = iota
	AccountScopeUser
	AccountScopePool
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType is the account purpose
type AccountSubType uint8

const (
	// Provider sub-types
	SubTypeInventory AccountSubType = iota
	SubTypeProceeds

	// User sub-types
	SubTypeWallet

	// Pool sub-types
	SubTypeSettlement

	// System sub-types
	SubTypeStaking

	// External sub-types
	SubTypeDeposits
	SubTypeWithdrawals
	SubTypePayments
	SubTypeBurn
)

// SatoshiAsset names the base currency in journals.
const SatoshiAsset = "BTC"

// AccountKey identifies one balance. Entity is a provider id, an owner
// address or empty for pool, system and external accounts.
type AccountKey struct {
	Scope   AccountScope
	Entity  string
	SubType AccountSubType
	Asset   string
}

func NewProviderAccountKey(providerID string, subType AccountSubType, asset string) AccountKey {
	return AccountKey{Scope: AccountScopeProvider, Entity: providerID, SubType: subType, Asset: asset}
}

func NewUserAccountKey(owner string, subType AccountSubType, asset string) AccountKey {
	return AccountKey{Scope: AccountScopeUser, Entity: owner, SubType: subType, Asset: asset}
}

func NewPoolAccountKey(subType AccountSubType, asset string) AccountKey {
	return AccountKey{Scope: AccountScopePool, SubType: subType, Asset: asset}
}

func NewSystemAccountKey(subType AccountSubType, asset string) AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: subType, Asset: asset}
}

func NewExternalAccountKey(subType AccountSubType, asset string) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: subType, Asset: asset}
}

// AccountPath is the string form used in storage and logs.
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeProvider:
		return fmt.Sprintf("provider:%s:%s:%s", k.Entity, k.subTypeName(), k.Asset)
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s:%s", k.Entity, k.subTypeName(), k.Asset)
	case AccountScopePool:
		return fmt.Sprintf("pool:%s:%s", k.subTypeName(), k.Asset)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), k.Asset)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), k.Asset)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeInventory:
		return "inventory"
	case SubTypeProceeds:
		return "proceeds"
	case SubTypeWallet:
		return "wallet"
	case SubTypeSettlement:
		return "settlement"
	case SubTypeStaking:
		return "staking"
	case SubTypeDeposits:
		return "deposits"
	case SubTypeWithdrawals:
		return "withdrawals"
	case SubTypePayments:
		return "payments"
	case SubTypeBurn:
		return "burn"
	default:
		return "unknown"
	}
}
