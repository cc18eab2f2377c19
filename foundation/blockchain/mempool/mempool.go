// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// entry is a pending transaction with the sequence it was accepted in.
type entry struct {
	tx  database.BlockTx
	seq uint64
}

// Mempool represents a cache of pending transactions keyed by transaction
// id. The order transactions were accepted in is preserved.
type Mempool struct {
	mu   sync.RWMutex
	pool map[string]entry
	seq  uint64
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]entry),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. A replaced
// transaction keeps its place in the acceptance order.
func (mp *Mempool) Upsert(tx database.BlockTx) (int, error) {
	if id := tx.ID(); tx.TxID != id {
		return 0, fmt.Errorf("recorded txid %s does not match computed %s", tx.TxID, id)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if e, exists := mp.pool[tx.TxID]; exists {
		e.tx = tx
		mp.pool[tx.TxID] = e
		return len(mp.pool), nil
	}

	mp.seq++
	mp.pool[tx.TxID] = entry{tx: tx, seq: mp.seq}

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.TxID)
}

// Contains reports whether the transaction id is pending.
func (mp *Mempool) Contains(txID string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[txID]
	return exists
}

// Copy returns a list of the pending transactions in acceptance order.
func (mp *Mempool) Copy() []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entries := make([]entry, 0, len(mp.pool))
	for _, e := range mp.pool {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	txs := make([]database.BlockTx, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}

	return txs
}

// Conflicts returns the pending transactions that spend an output the
// specified transaction also spends, in acceptance order.
func (mp *Mempool) Conflicts(tx database.Tx) []database.BlockTx {
	spends := make(map[database.UTXOKey]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		spends[in.Key()] = struct{}{}
	}

	var conflicts []database.BlockTx
	for _, pending := range mp.Copy() {
		for _, in := range pending.Inputs {
			if _, exists := spends[in.Key()]; exists {
				conflicts = append(conflicts, pending)
				break
			}
		}
	}

	return conflicts
}
