package core

import (
	"NativeSwap/internal/state"

	"github.com/holiman/uint256"
)

// ProviderManager is the provider-queue surface reservation and settlement
// depend on. *state.ProviderManager implements it.
type ProviderManager interface {
	GetProvider(id state.ProviderID) (*state.Provider, error)
	InitialProvider() (*state.Provider, error)
	GetProviderFromQueue(index uint32, kind state.QueueKind) (*state.Provider, error)
	GetNextProviderWithLiquidity(quote *uint256.Int) (*state.Provider, error)
	GetNextRemovalProvider(quote *uint256.Int) (*state.Provider, error)
	SkipRemovalProvider(p *state.Provider) error
	AddToQueue(p *state.Provider, kind state.QueueKind) (uint32, error)
	RemoveFromQueue(p *state.Provider) error
	AddToPurgeQueue(p *state.Provider) error
	RewindToProvider(p *state.Provider)
	ResetProvider(p *state.Provider, burnRemainingFunds, canceled bool) error
	ResetDustProvider(p *state.Provider, quote *uint256.Int) (bool, error)
	CleanUpQueues() error
	RestoreCurrentIndex()
	ResetStartingIndex()
	Owed() *state.OwedLedger
	Save()
}

var _ ProviderManager = (*state.ProviderManager)(nil)
