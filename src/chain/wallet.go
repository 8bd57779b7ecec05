package chain

import (
	"context"
	"slices"
	"sync"

	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/oops"
)

type Wallet interface {
	Address() string
	Connected() bool
	ChainID() int64
	SwitchChain(ctx context.Context, chainID int64) error
}

// StaticWallet is the engine's backend wallet. Its address comes from config
// and it can only be pointed at chains the engine is configured for.
type StaticWallet struct {
	address string
	allowed []int64

	mu      sync.Mutex
	chainID int64
}

var _ Wallet = &StaticWallet{}

func NewStaticWallet(cfg config.ChainConfig) *StaticWallet {
	allowed := cfg.AllowedChainIDs
	if len(allowed) == 0 {
		allowed = []int64{cfg.ChainID}
	}
	return &StaticWallet{
		address: cfg.WalletAddress,
		allowed: allowed,
		chainID: cfg.ChainID,
	}
}

func (w *StaticWallet) Address() string {
	return w.address
}

func (w *StaticWallet) Connected() bool {
	return w.address != ""
}

func (w *StaticWallet) ChainID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID
}

func (w *StaticWallet) SwitchChain(ctx context.Context, chainID int64) error {
	if !w.Connected() {
		return ErrNotConnected
	}
	if !slices.Contains(w.allowed, chainID) {
		return oops.New(ErrChainNotAllowed, "cannot switch to chain %d", chainID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.chainID != chainID {
		logging.ExtractLogger(ctx).Info().Int64("from", w.chainID).Int64("to", chainID).Msg("switching chain")
		w.chainID = chainID
	}
	return nil
}
