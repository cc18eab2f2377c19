package state

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/events"
)

// SubmitTransaction validates the transaction against the current ledger
// and adds it to the mempool. The mempool is written to storage before the
// id is returned. A rejected transaction leaves the mempool unchanged.
func (s *State) SubmitTransaction(tx database.Tx) (string, error) {
	btx := database.NewBlockTx(tx)

	if err := s.admit(btx); err != nil {
		return "", err
	}

	s.publish(events.Event{Kind: events.KindTx, TxID: btx.TxID})

	if s.genesis.AutoMine {
		s.Worker.SignalStartMining()
	}

	return btx.TxID, nil
}

// admit performs the admission under the write lock.
func (s *State) admit(btx database.BlockTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: SubmitTransaction: started: tx[%s]", btx)
	defer s.evHandler("state: SubmitTransaction: completed: tx[%s]", btx.TxID)

	if err := s.validateTransaction(btx.Tx); err != nil {
		return err
	}

	// Two pending transactions can spend the same output. The first one to
	// be mined wins and the other is dropped at that time.
	if conflicts := s.mempool.Conflicts(btx.Tx); len(conflicts) > 0 {
		for _, c := range conflicts {
			if c.TxID != btx.TxID {
				s.evHandler("state: SubmitTransaction: WARNING: tx[%s] spends the same output as pending tx[%s]", btx.TxID, c.TxID)
			}
		}
	}

	existed := s.mempool.Contains(btx.TxID)

	if _, err := s.mempool.Upsert(btx); err != nil {
		return err
	}

	if err := s.db.SaveMempool(s.mempool.Copy()); err != nil {
		if !existed {
			s.mempool.Delete(btx)
		}
		return fmt.Errorf("saving mempool: %w", err)
	}

	return nil
}

// validateTransaction takes the transaction and validates it has proper
// signatures and spends unspent outputs worth at least its outputs.
func (s *State) validateTransaction(tx database.Tx) error {
	if tx.IsCoinbase() {
		return database.ErrNoInputs
	}

	if err := tx.Validate(); err != nil {
		return err
	}

	return s.db.Ledger().CheckTransaction(tx)
}
