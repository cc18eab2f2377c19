package database

import (
	"errors"
	"fmt"
)

// Set of errors a transaction can be rejected with during admission.
var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrMissingUTXO         = errors.New("input spends missing utxo")
	ErrOutputsExceedInputs = errors.New("outputs exceed inputs")
	ErrDuplicateOutput     = errors.New("transaction outputs already exist")
)

// Set of errors a chain can fail validation with. A chain failing with any
// of these can't be trusted for mining or balance queries.
var (
	ErrInvalidLinkage     = errors.New("invalid block linkage")
	ErrInvalidProofOfWork = errors.New("invalid proof of work")
	ErrInvalidCommitment  = errors.New("invalid merkle commitment")
)

// ErrMiningCancelled is returned when the proof of work search is stopped
// before a solution is found.
var ErrMiningCancelled = errors.New("mining cancelled")

// ErrMalformed is returned when a persisted record or request can't be
// decoded into its expected shape.
var ErrMalformed = errors.New("malformed encoding")

// ErrNoInputs is returned when a submitted transaction spends nothing. Only
// mining creates value, so it also matches ErrOutputsExceedInputs.
var ErrNoInputs error = noInputsError{}

type noInputsError struct{}

// Error implements the error interface.
func (noInputsError) Error() string {
	return "transaction has no inputs: only mining creates value"
}

// Is allows errors.Is to match this error against ErrOutputsExceedInputs.
func (noInputsError) Is(target error) bool {
	return target == ErrOutputsExceedInputs
}

// =============================================================================

// MissingUTXOError identifies the input that names an output which is not
// currently unspent.
type MissingUTXOError struct {
	Key UTXOKey
}

// Error implements the error interface.
func (e *MissingUTXOError) Error() string {
	return fmt.Sprintf("%s %s", ErrMissingUTXO, e.Key)
}

// Is allows errors.Is to match this error against ErrMissingUTXO.
func (e *MissingUTXOError) Is(target error) bool {
	return target == ErrMissingUTXO
}

// =============================================================================

// TxError represents an error on a transaction in a block.
type TxError struct {
	TxID string
	Err  error
}

// Error implements the error interface.
func (txe *TxError) Error() string {
	return fmt.Sprintf("tx[%s]: %s", txe.TxID, txe.Err)
}

// Unwrap provides access to the underlying error.
func (txe *TxError) Unwrap() error {
	return txe.Err
}

// BlockError represents a validation failure of a block in the chain.
type BlockError struct {
	Number uint64
	Err    error
}

// Error implements the error interface.
func (be *BlockError) Error() string {
	return fmt.Sprintf("blk[%d]: %s", be.Number, be.Err)
}

// Unwrap provides access to the underlying error.
func (be *BlockError) Unwrap() error {
	return be.Err
}
