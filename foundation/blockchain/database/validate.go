package database

import (
	"fmt"
)

// ValidateOptions controls how much of a chain is checked.
type ValidateOptions struct {

	// Audit also replays every transaction through a scratch ledger checking
	// signatures and conservation of value. Without it only the linkage, the
	// proof of work, and the merkle commitments are checked.
	Audit bool

	EvHandler func(v string, args ...any)
}

// ChainValidator checks a chain one block at a time starting from the
// first block.
type ChainValidator struct {
	opts   ValidateOptions
	prev   Block
	ledger *Ledger
}

// NewChainValidator constructs a validator positioned before the first block.
func NewChainValidator(opts ValidateOptions) *ChainValidator {
	if opts.EvHandler == nil {
		opts.EvHandler = func(string, ...any) {}
	}

	return &ChainValidator{
		opts:   opts,
		ledger: NewLedger(),
	}
}

// Next validates the block follows the previously validated block.
func (cv *ChainValidator) Next(block Block) error {
	if err := block.ValidateBlock(cv.prev, cv.opts.EvHandler); err != nil {
		return &BlockError{Number: block.Number, Err: err}
	}

	if cv.opts.Audit {
		if err := cv.audit(block); err != nil {
			return &BlockError{Number: block.Number, Err: err}
		}
	}

	cv.prev = block
	return nil
}

// Latest returns the last block that passed validation.
func (cv *ChainValidator) Latest() Block {
	return cv.prev
}

// audit checks the transactions of the block the way admission would have
// and applies them to the scratch ledger.
func (cv *ChainValidator) audit(block Block) error {
	txs := block.Txs()

	for i, tx := range txs {
		if tx.IsCoinbase() != (i == 0) {
			return &TxError{TxID: tx.TxID, Err: fmt.Errorf("%w: coinbase must be the first and only the first transaction", ErrInvalidCommitment)}
		}

		if err := tx.Validate(); err != nil {
			return &TxError{TxID: tx.TxID, Err: err}
		}

		if !tx.IsCoinbase() {
			if err := cv.ledger.CheckTransaction(tx.Tx); err != nil {
				return &TxError{TxID: tx.TxID, Err: err}
			}
		}

		if err := cv.ledger.ApplyTransaction(tx); err != nil {
			return &TxError{TxID: tx.TxID, Err: err}
		}
	}

	return nil
}

// ValidateChain checks the ordered sequence of blocks from genesis. A nil
// error means the chain is valid.
func ValidateChain(blocks []Block, opts ValidateOptions) error {
	cv := NewChainValidator(opts)

	for _, block := range blocks {
		if err := cv.Next(block); err != nil {
			return err
		}
	}

	return nil
}
