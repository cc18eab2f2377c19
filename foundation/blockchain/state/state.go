// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/events"
	"go.uber.org/atomic"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Publisher defines a function that receives the ledger events produced
// when a transaction is admitted or a block is committed.
type Publisher func(e events.Event)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	BeneficiaryID string
	Genesis       genesis.Genesis
	Storage       database.Storage
	EvHandler     EventHandler
	Publisher     Publisher
}

// State manages the blockchain database. Admission and mining change the
// ledger and the mempool under the write lock, queries take the read lock.
type State struct {
	mu sync.RWMutex

	beneficiaryID string
	evHandler     EventHandler
	publish       Publisher
	attempts      *atomic.Uint64

	genesis genesis.Genesis
	mempool *mempool.Mempool
	db      *database.Database

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	publish := func(e events.Event) {
		if cfg.Publisher != nil {
			cfg.Publisher(e)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	// Access the storage for the blockchain. Every block is validated and
	// replayed into the ledger.
	db, err := database.New(cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	state := State{
		beneficiaryID: cfg.BeneficiaryID,
		evHandler:     ev,
		publish:       publish,
		attempts:      atomic.NewUint64(0),

		genesis: cfg.Genesis,
		mempool: mempool.New(),
		db:      db,

		Worker: noopWorker{},
	}

	if err := state.loadMempool(); err != nil {
		return nil, err
	}

	// The Worker is set to a no-op here. The call to worker.Run will assign
	// itself and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	return nil
}

// loadMempool restores the pending transactions from storage. Any that no
// longer pass admission against the ledger are dropped.
func (s *State) loadMempool() error {
	txs, err := s.db.LoadMempool()
	if err != nil {
		return err
	}

	var dropped int
	for _, tx := range txs {
		if err := s.validateTransaction(tx.Tx); err != nil {
			s.evHandler("state: loadMempool: dropped: tx[%s]: %s", tx.TxID, err)
			dropped++
			continue
		}

		if _, err := s.mempool.Upsert(database.NewBlockTx(tx.Tx)); err != nil {
			return err
		}
	}

	if dropped > 0 {
		if err := s.db.SaveMempool(s.mempool.Copy()); err != nil {
			return err
		}
	}

	s.evHandler("state: loadMempool: pending[%d]: dropped[%d]", s.mempool.Count(), dropped)

	return nil
}

// =============================================================================

// noopWorker is used until a worker registers itself.
type noopWorker struct{}

func (noopWorker) Shutdown()           {}
func (noopWorker) SignalStartMining()  {}
func (noopWorker) SignalCancelMining() {}
