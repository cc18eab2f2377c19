package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/events"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// ErrChainMoved is returned when a new block was added to the chain while
// a block was being mined on the old tip.
var ErrChainMoved = errors.New("chain tip moved while mining")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. The block holds a coinbase paying the amount
// to the owner followed by the pending transactions in acceptance order.
// Mining runs until a solution is found or the context is cancelled.
func (s *State) MineNewBlock(ctx context.Context, owner string, amount uint64) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: build candidate")

	latest, txs, dropped := s.candidate(owner, amount)
	for _, tx := range dropped {
		s.evHandler("state: MineNewBlock: MINING: WARNING: tx[%s] conflicts with an earlier transaction, dropped", tx.TxID)
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: txs[%d]", len(txs))

	// Attempt to create a new block by solving the POW puzzle. This can be
	// cancelled. No lock is held while the search runs.
	block, err := database.POW(ctx, database.POWArgs{
		PrevBlock:  latest,
		Difficulty: s.genesis.Difficulty,
		Txs:        txs,
		Workers:    s.genesis.Workers,
		Attempts:   s.attempts,
		EvHandler:  s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, fmt.Errorf("%w: %s", database.ErrMiningCancelled, ctx.Err())
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	if err := s.validateUpdateDatabase(block, dropped); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// MineBeneficiary mines a new block paying the genesis mining reward to the
// configured beneficiary. There must be pending transactions.
func (s *State) MineBeneficiary(ctx context.Context) (database.Block, error) {
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	return s.MineNewBlock(ctx, s.beneficiaryID, s.genesis.MiningReward)
}

// =============================================================================

// candidate takes a consistent snapshot of the tip and the mempool and
// builds the transactions for the next block. Pending transactions that
// spend an output already claimed by an earlier pending transaction, or no
// longer unspent, are left out and returned as dropped.
func (s *State) candidate(owner string, amount uint64) (database.Block, []database.BlockTx, []database.BlockTx) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.db.LatestBlock()
	selected, dropped := s.db.Ledger().SelectSpendable(s.mempool.Copy())

	coinbase := database.NewBlockTx(database.NewCoinbaseTx(owner, amount, latest.Number+1))

	txs := make([]database.BlockTx, 0, len(selected)+1)
	txs = append(txs, coinbase)
	txs = append(txs, selected...)

	return latest, txs, dropped
}

// validateUpdateDatabase takes the block and validates the block against the
// chain. If the block passes, the block is written to storage, the ledger
// advances and the mined transactions leave the mempool as one unit.
func (s *State) validateUpdateDatabase(block database.Block, dropped []database.BlockTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if latest := s.db.LatestBlock(); block.Header.PrevBlockHash != latest.Hash() {
		return fmt.Errorf("%w: block %d built on %s, tip is %s", ErrChainMoved, block.Number, block.Header.PrevBlockHash, latest.Hash())
	}

	s.evHandler("state: validateUpdateDatabase: validate, write to storage, update ledger")

	if err := s.db.Commit(block); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: remove from mempool")

	for _, tx := range block.Txs() {
		s.mempool.Delete(tx)
	}

	for _, tx := range dropped {
		s.mempool.Delete(tx)
	}

	// Anything accepted while the block was being mined is checked again
	// against the new ledger.
	if s.mempool.Count() > 0 {
		_, stale := s.db.Ledger().SelectSpendable(s.mempool.Copy())
		for _, tx := range stale {
			s.evHandler("state: validateUpdateDatabase: WARNING: tx[%s] no longer spendable, dropped", tx.TxID)
			s.mempool.Delete(tx)
		}
	}

	if err := s.db.SaveMempool(s.mempool.Copy()); err != nil {
		s.evHandler("state: validateUpdateDatabase: WARNING: saving mempool: %s", err)
	}

	// Send an event about this new block.
	s.blockEvent(block)

	return nil
}

// blockEvent publishes the committed block with the ids of the
// transactions it holds.
func (s *State) blockEvent(block database.Block) {
	txs := block.Txs()

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.TxID
	}

	s.publish(events.Event{
		Kind:   events.KindBlock,
		Number: block.Number,
		Hash:   block.Hash(),
		TxIDs:  ids,
	})
}
