package database

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// coinbaseNote is the note carried by every block reward transaction.
const coinbaseNote = "block-reward"

// =============================================================================

// TxOut is an amount of value owned by an address.
type TxOut struct {
	Value uint64 `json:"value"`   // Number of units.
	Owner string `json:"address"` // Address allowed to spend the output.
}

// TxIn references an output of a previous transaction being spent.
type TxIn struct {
	PrevTxID  string `json:"txid"`          // Hex id of the transaction holding the output.
	PrevIndex uint32 `json:"index"`         // Index of the output in that transaction.
	PubKey    string `json:"pubkey"`        // Hex compressed public key of the owner.
	Sig       string `json:"sig,omitempty"` // Hex signature over the signing digest.
}

// Key returns the utxo key this input spends.
func (in TxIn) Key() UTXOKey {
	return UTXOKey{TxID: in.PrevTxID, Index: in.PrevIndex}
}

// Tx is a transfer of value from a set of unspent outputs to a set of new
// outputs. A transaction with no inputs is a coinbase.
type Tx struct {
	Inputs  []TxIn  `json:"inputs"`
	Outputs []TxOut `json:"outputs"`
	Note    string  `json:"note"`
}

// NewTx constructs a new unsigned transaction.
func NewTx(inputs []TxIn, outputs []TxOut, note string) (Tx, error) {
	if len(outputs) == 0 {
		return Tx{}, errors.New("transaction must have at least one output")
	}

	for i, out := range outputs {
		if out.Owner == "" {
			return Tx{}, fmt.Errorf("output %d has no owner", i)
		}
	}

	tx := Tx{
		Inputs:  inputs,
		Outputs: outputs,
		Note:    note,
	}

	return tx, nil
}

// NewCoinbaseTx constructs the transaction minting the block reward. The
// block height is part of the note so no two coinbase ids are the same.
func NewCoinbaseTx(owner string, amount uint64, height uint64) Tx {
	return Tx{
		Inputs:  []TxIn{},
		Outputs: []TxOut{{Value: amount, Owner: owner}},
		Note:    fmt.Sprintf("%s:%d", coinbaseNote, height),
	}
}

// IsCoinbase reports whether the transaction mints new value.
func (tx Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// Serialize returns the canonical encoding of the transaction. Field order
// is fixed by the struct layout. Input signatures are not part of the
// encoding so the digest being signed is the same before and after signing.
func (tx Tx) Serialize() []byte {
	type input struct {
		TxID   string `json:"txid"`
		Index  uint32 `json:"index"`
		PubKey string `json:"pubkey"`
	}

	type canonical struct {
		Inputs  []input `json:"inputs"`
		Outputs []TxOut `json:"outputs"`
		Note    string  `json:"note"`
	}

	c := canonical{
		Inputs:  make([]input, len(tx.Inputs)),
		Outputs: tx.Outputs,
		Note:    tx.Note,
	}
	if c.Outputs == nil {
		c.Outputs = []TxOut{}
	}

	for i, in := range tx.Inputs {
		c.Inputs[i] = input{
			TxID:   in.PrevTxID,
			Index:  in.PrevIndex,
			PubKey: in.PubKey,
		}
	}

	// Marshaling strings and integers can't fail.
	data, _ := json.Marshal(c)
	return data
}

// SigningDigest returns the message every input owner signs. It is the
// same digest the id is derived from, so each signature commits to the
// final shape of the whole transaction.
func (tx Tx) SigningDigest() []byte {
	return signature.DoubleSHA256(tx.Serialize())
}

// ID returns the hex encoded identifier of the transaction.
func (tx Tx) ID() string {
	return hexutil.Encode(tx.SigningDigest())
}

// Sign uses the specified private key to sign every input that belongs to
// the key. Inputs with no public key are assigned this key. All public keys
// must be in place before the first signature is produced since they are
// part of the digest.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	pubKey := hexutil.Encode(signature.PublicKeyBytes(privateKey.PublicKey))

	signed := tx
	signed.Inputs = make([]TxIn, len(tx.Inputs))
	copy(signed.Inputs, tx.Inputs)

	for i := range signed.Inputs {
		if signed.Inputs[i].PubKey == "" {
			signed.Inputs[i].PubKey = pubKey
		}
	}

	sig, err := signature.Sign(signed.SigningDigest(), privateKey)
	if err != nil {
		return Tx{}, err
	}

	var n int
	for i := range signed.Inputs {
		if signed.Inputs[i].PubKey == pubKey {
			signed.Inputs[i].Sig = hexutil.Encode(sig)
			n++
		}
	}

	if n == 0 {
		return Tx{}, errors.New("no input belongs to the private key")
	}

	return signed, nil
}

// Validate checks every input carries a valid signature by its declared
// public key over the signing digest. Any malformed encoding fails the
// validation. A coinbase has nothing to verify.
func (tx Tx) Validate() error {
	if tx.IsCoinbase() {
		return nil
	}

	digest := tx.SigningDigest()

	for i, in := range tx.Inputs {
		if in.Sig == "" {
			return fmt.Errorf("%w: input %d is not signed", ErrInvalidSignature, i)
		}

		pubKey, err := hexutil.Decode(in.PubKey)
		if err != nil {
			return fmt.Errorf("%w: input %d public key: %s", ErrInvalidSignature, i, err)
		}

		sig, err := hexutil.Decode(in.Sig)
		if err != nil {
			return fmt.Errorf("%w: input %d signature: %s", ErrInvalidSignature, i, err)
		}

		if !signature.Verify(pubKey, digest, sig) {
			return fmt.Errorf("%w: input %d", ErrInvalidSignature, i)
		}
	}

	return nil
}

// Verify reports whether the transaction signatures are valid.
func (tx Tx) Verify() bool {
	return tx.Validate() == nil
}

// TotalOutput sums the value of the outputs. An overflow is reported as
// the outputs exceeding any possible input.
func (tx Tx) TotalOutput() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		sum, carry := bits.Add64(total, out.Value, 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: output total overflows", ErrOutputsExceedInputs)
		}
		total = sum
	}

	return total, nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s:in[%d]:out[%d]", tx.ID(), len(tx.Inputs), len(tx.Outputs))
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block and in
// the mempool. It carries the transaction id with it.
type BlockTx struct {
	Tx
	TxID string `json:"txid"`
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(tx Tx) BlockTx {
	return BlockTx{
		Tx:   tx,
		TxID: tx.ID(),
	}
}

// Hash implements the merkle Hashable interface. The leaf is the id of the
// transaction computed from its content, not the recorded id.
func (tx BlockTx) Hash() ([]byte, error) {
	return tx.SigningDigest(), nil
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two block transactions.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	return tx.ID() == otherTx.ID()
}
