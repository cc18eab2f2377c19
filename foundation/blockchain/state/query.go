package state

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// Balance returns the sum of the unspent outputs owned by the owner.
func (s *State) Balance(owner string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Ledger().Balance(owner)
}

// Balances returns the balance of every owner holding unspent outputs.
func (s *State) Balances() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Ledger().Balances()
}

// SpendableFor selects the unspent outputs of the owner that cover the
// amount, first fit in ledger order.
func (s *State) SpendableFor(owner string, amount uint64) (uint64, []database.UTXOKey) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Ledger().SpendableFor(owner, amount)
}

// LookupUTXO returns the unspent output for the key.
func (s *State) LookupUTXO(txID string, index uint32) (database.TxOut, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Ledger().Lookup(txID, index)
}

// UTXOs returns the unspent outputs owned by the owner. An empty owner
// returns every unspent output.
func (s *State) UTXOs(owner string) []database.UTXO {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Ledger().UTXOs(owner)
}

// Mempool returns a copy of the pending transactions in acceptance order.
func (s *State) Mempool() []database.BlockTx {
	return s.mempool.Copy()
}

// MempoolLength returns the current length of the mempool.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}

// LatestBlock returns a copy the current latest block.
func (s *State) LatestBlock() database.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.LatestBlock()
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// MiningAttempts returns the number of hashes tried since the node started.
func (s *State) MiningAttempts() uint64 {
	return s.attempts.Load()
}

// QueryBlocksByNumber returns the set of blocks based on block numbers. This
// function reads the blockchain from storage first.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	latest := s.LatestBlock().Number

	if from == QueryLatest {
		from = latest
		to = from
	}
	if to == QueryLatest || to > latest {
		to = latest
	}

	var out []database.Block
	for i := max(from, 1); i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: getblock: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// QueryBlocksByAccount returns the set of blocks holding a transaction that
// pays the owner or spends with the owner's key. If the owner is empty, all
// blocks are returned. This function reads the blockchain from storage first.
func (s *State) QueryBlocksByAccount(owner string) ([]database.Block, error) {
	var out []database.Block

	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if owner == "" || involves(block, owner) {
			out = append(out, block)
		}
	}

	return out, nil
}

// ValidateChain reads the chain from storage and validates the linkage,
// the proof of work and the merkle commitment of every block. An audit also
// replays the transactions checking signatures and conservation of value.
func (s *State) ValidateChain(audit bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.ValidateChain(database.ValidateOptions{Audit: audit})
}

// =============================================================================

// MerkleProof is the inclusion proof of a transaction in a block.
type MerkleProof struct {
	BlockNumber uint64   `json:"block"`
	TxID        string   `json:"txid"`
	MerkleRoot  string   `json:"merkle_root"`
	Proof       []string `json:"proof"`
	Order       []int64  `json:"order"`
}

// Verify walks the proof and reports whether it produces the merkle root.
func (mp MerkleProof) Verify() bool {
	leaf, err := signature.ToHashBytes(mp.TxID)
	if err != nil {
		return false
	}

	root, err := signature.ToHashBytes(mp.MerkleRoot)
	if err != nil {
		return false
	}

	proof := make([][]byte, len(mp.Proof))
	for i, p := range mp.Proof {
		if proof[i], err = signature.ToHashBytes(p); err != nil {
			return false
		}
	}

	return merkle.VerifyProof(leaf, proof, mp.Order, root, signature.NewDoubleSHA256)
}

// MerkleProof returns the proof the transaction is committed to by
// the merkle root of the block.
func (s *State) MerkleProof(blockNumber uint64, txID string) (MerkleProof, error) {
	block, err := s.db.GetBlock(blockNumber)
	if err != nil {
		return MerkleProof{}, err
	}

	for _, tx := range block.Txs() {
		if tx.TxID != txID {
			continue
		}

		proof, order, err := block.MerkleTree.Proof(tx)
		if err != nil {
			return MerkleProof{}, err
		}

		mp := MerkleProof{
			BlockNumber: blockNumber,
			TxID:        txID,
			MerkleRoot:  block.Header.MerkleRoot,
			Proof:       make([]string, len(proof)),
			Order:       order,
		}
		for i, p := range proof {
			mp.Proof[i] = hexutil.Encode(p)
		}

		return mp, nil
	}

	return MerkleProof{}, fmt.Errorf("tx %s in block %d: %w", txID, blockNumber, database.ErrNotFound)
}

// =============================================================================

// involves reports whether the block pays the owner or spends with a key
// that derives the owner's address.
func involves(block database.Block, owner string) bool {
	for _, tx := range block.Txs() {
		for _, out := range tx.Outputs {
			if out.Owner == owner {
				return true
			}
		}

		for _, in := range tx.Inputs {
			pubKey, err := hexutil.Decode(in.PubKey)
			if err != nil {
				continue
			}

			if address, err := signature.DeriveAddress(pubKey); err == nil && address == owner {
				return true
			}
		}
	}

	return false
}
