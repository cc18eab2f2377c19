package database

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UTXOKey uniquely identifies a transaction output.
type UTXOKey struct {
	TxID  string `json:"txid"`
	Index uint32 `json:"index"`
}

// String implements the fmt.Stringer interface for logging.
func (k UTXOKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.Index)
}

// UTXO is an unspent output along with its key.
type UTXO struct {
	Key    UTXOKey `json:"key"`
	Output TxOut   `json:"output"`
}

// =============================================================================

// entry is an unspent output with the sequence it was added in. The
// sequence keeps iteration in insertion order.
type entry struct {
	out TxOut
	seq uint64
}

// undo records how to reverse the changes of applied transactions.
type undo struct {
	spent map[UTXOKey]entry
	added []UTXOKey
}

// Ledger is the authoritative set of unspent transaction outputs. A key is
// present while the output is unspent and absent once spent or if it never
// existed. The ledger is derived from the chain and only changes by applying
// transactions from blocks.
type Ledger struct {
	mu    sync.RWMutex
	seq   uint64
	utxos map[UTXOKey]entry
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		utxos: make(map[UTXOKey]entry),
	}
}

// Lookup returns the unspent output for the key.
func (l *Ledger) Lookup(txID string, index uint32) (TxOut, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, exists := l.utxos[UTXOKey{TxID: txID, Index: index}]
	return e.out, exists
}

// Count returns the number of unspent outputs.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.utxos)
}

// SpendableFor selects outputs owned by the owner in ledger order until the
// running total meets or exceeds the amount. This is a first fit selection
// and does not look for the smallest set or exact change.
func (l *Ledger) SpendableFor(owner string, amount uint64) (uint64, []UTXOKey) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	var selected []UTXOKey

	for _, utxo := range l.ordered() {
		if utxo.Output.Owner != owner {
			continue
		}

		total = saturatingAdd(total, utxo.Output.Value)
		selected = append(selected, utxo.Key)
		if total >= amount {
			break
		}
	}

	return total, selected
}

// Balance sums the value of all unspent outputs owned by the owner.
func (l *Ledger) Balance(owner string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var balance uint64
	for _, e := range l.utxos {
		if e.out.Owner == owner {
			balance = saturatingAdd(balance, e.out.Value)
		}
	}

	return balance
}

// UTXOs returns the unspent outputs owned by the owner in ledger order. An
// empty owner returns every unspent output.
func (l *Ledger) UTXOs(owner string) []UTXO {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var utxos []UTXO
	for _, utxo := range l.ordered() {
		if owner == "" || utxo.Output.Owner == owner {
			utxos = append(utxos, utxo)
		}
	}

	return utxos
}

// Balances returns the balance of every owner holding unspent outputs.
func (l *Ledger) Balances() map[string]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balances := make(map[string]uint64)
	for _, e := range l.utxos {
		balances[e.out.Owner] = saturatingAdd(balances[e.out.Owner], e.out.Value)
	}

	return balances
}

// CheckTransaction performs the economic checks for admitting the
// transaction against the current unspent outputs. Every input must name an
// unspent output owned by the input's public key and an output can only be
// named once. The outputs can't be worth more than the inputs.
func (l *Ledger) CheckTransaction(tx Tx) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.check(tx, nil)
}

// SelectSpendable walks the transactions in order and returns those whose
// inputs are all unspent and not already claimed by an earlier transaction
// in the list, followed by those that were rejected.
func (l *Ledger) SelectSpendable(txs []BlockTx) (selected []BlockTx, rejected []BlockTx) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	claimed := make(map[UTXOKey]struct{})

next:
	for _, tx := range txs {
		if err := l.check(tx.Tx, claimed); err != nil {
			rejected = append(rejected, tx)
			continue next
		}

		for _, in := range tx.Inputs {
			claimed[in.Key()] = struct{}{}
		}
		selected = append(selected, tx)
	}

	return selected, rejected
}

// ApplyTransaction spends the inputs of the transaction and adds its
// outputs. An input naming an output that isn't unspent is rejected.
func (l *Ledger) ApplyTransaction(tx BlockTx) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var u undo
	if err := l.apply(tx, &u); err != nil {
		l.revert(&u)
		return err
	}

	return nil
}

// ApplyBlock applies the transactions of the block in order. Either every
// transaction is applied or the ledger is left untouched. A transaction can
// spend the outputs of an earlier transaction in the same block.
func (l *Ledger) ApplyBlock(txs []BlockTx) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var u undo
	for _, tx := range txs {
		if err := l.apply(tx, &u); err != nil {
			l.revert(&u)
			return &TxError{TxID: tx.TxID, Err: err}
		}
	}

	return nil
}

// Rebuild replaces the contents of the ledger with the result of replaying
// the specified blocks from genesis. On failure the ledger is left as is.
func (l *Ledger) Rebuild(blocks [][]BlockTx) error {
	replay := NewLedger()
	for i, txs := range blocks {
		if err := replay.ApplyBlock(txs); err != nil {
			return &BlockError{Number: uint64(i + 1), Err: err}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq = replay.seq
	l.utxos = replay.utxos

	return nil
}

// Copy returns a copy of the unspent outputs in ledger order.
func (l *Ledger) Copy() []UTXO {
	return l.UTXOs("")
}

// =============================================================================

// check performs the admission checks. Keys in claimed are treated as spent.
func (l *Ledger) check(tx Tx, claimed map[UTXOKey]struct{}) error {
	seen := make(map[UTXOKey]struct{}, len(tx.Inputs))

	var totalIn uint64
	for _, in := range tx.Inputs {
		key := in.Key()

		e, exists := l.utxos[key]
		if !exists {
			return &MissingUTXOError{Key: key}
		}

		if _, dup := seen[key]; dup {
			return &MissingUTXOError{Key: key}
		}
		seen[key] = struct{}{}

		if _, spent := claimed[key]; spent {
			return &MissingUTXOError{Key: key}
		}

		if err := authorized(in, e.out); err != nil {
			return err
		}

		sum, carry := bits.Add64(totalIn, e.out.Value, 0)
		if carry != 0 {
			return fmt.Errorf("input total overflows: %w", ErrOutputsExceedInputs)
		}
		totalIn = sum
	}

	totalOut, err := tx.TotalOutput()
	if err != nil {
		return err
	}

	if totalOut > totalIn {
		return fmt.Errorf("%w: in %d, out %d", ErrOutputsExceedInputs, totalIn, totalOut)
	}

	return nil
}

// authorized checks the public key of the input derives the address that
// owns the output being spent.
func authorized(in TxIn, out TxOut) error {
	pubKey, err := hexutil.Decode(in.PubKey)
	if err != nil {
		return fmt.Errorf("%w: input %s public key: %s", ErrInvalidSignature, in.Key(), err)
	}

	address, err := signature.DeriveAddress(pubKey)
	if err != nil {
		return fmt.Errorf("%w: input %s public key: %s", ErrInvalidSignature, in.Key(), err)
	}

	if address != out.Owner {
		return fmt.Errorf("%w: input %s is owned by %s, not %s", ErrInvalidSignature, in.Key(), out.Owner, address)
	}

	return nil
}

// apply spends the inputs and adds the outputs recording the changes so
// they can be reverted.
func (l *Ledger) apply(tx BlockTx, u *undo) error {
	if u.spent == nil {
		u.spent = make(map[UTXOKey]entry)
	}

	for _, in := range tx.Inputs {
		key := in.Key()

		e, exists := l.utxos[key]
		if !exists {
			return &MissingUTXOError{Key: key}
		}

		delete(l.utxos, key)
		u.spent[key] = e
	}

	txID := tx.ID()
	for i, out := range tx.Outputs {
		key := UTXOKey{TxID: txID, Index: uint32(i)}
		if _, exists := l.utxos[key]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateOutput, key)
		}

		l.seq++
		l.utxos[key] = entry{out: out, seq: l.seq}
		u.added = append(u.added, key)
	}

	return nil
}

// revert undoes the changes recorded by apply. Spent outputs are restored
// before added outputs are removed so an output created and spent inside the
// same block doesn't survive the revert.
func (l *Ledger) revert(u *undo) {
	for key, e := range u.spent {
		l.utxos[key] = e
	}

	for _, key := range u.added {
		delete(l.utxos, key)
	}
}

// saturatingAdd adds the values and caps the result at the largest uint64.
func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}

	return sum
}

// ordered returns the unspent outputs sorted by insertion sequence. The
// caller must hold a lock.
func (l *Ledger) ordered() []UTXO {
	type seqUTXO struct {
		seq  uint64
		utxo UTXO
	}

	list := make([]seqUTXO, 0, len(l.utxos))
	for key, e := range l.utxos {
		list = append(list, seqUTXO{seq: e.seq, utxo: UTXO{Key: key, Output: e.out}})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].seq < list[j].seq
	})

	utxos := make([]UTXO, len(list))
	for i, su := range list {
		utxos[i] = su.utxo
	}

	return utxos
}
