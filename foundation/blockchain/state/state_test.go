package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	keyA     = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	keyB     = "aed31b6b5a2b0d4e8a3e0c3f8a5b1f1a7a1c2f4b0e6d3c8b9a7f5e4d3c2b1a09"
	keyMiner = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

func ifErrFailNow(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

func privateKey(t *testing.T, hexKey string) *ecdsa.PrivateKey {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	ifErrFailNow(t, err)

	return pk
}

func newState(t *testing.T, storage database.Storage, beneficiary string) *state.State {
	t.Helper()

	s, err := state.New(state.Config{
		BeneficiaryID: beneficiary,
		Genesis:       genesis.Genesis{Difficulty: 4, MiningReward: 50, Workers: 2},
		Storage:       storage,
		EvHandler:     func(v string, args ...any) { t.Logf(v, args...) },
	})
	ifErrFailNow(t, err)

	return s
}

func mine(t *testing.T, s *state.State, owner string) database.Block {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	block, err := s.MineNewBlock(ctx, owner, 50)
	ifErrFailNow(t, err)

	return block
}

// send builds a signed transaction paying the amount to the recipient from
// the specified outputs, with any change going back to the sender.
func send(t *testing.T, pk *ecdsa.PrivateKey, keys []database.UTXOKey, total uint64, to string, amount uint64) database.Tx {
	t.Helper()

	inputs := make([]database.TxIn, len(keys))
	for i, key := range keys {
		inputs[i] = database.TxIn{PrevTxID: key.TxID, PrevIndex: key.Index}
	}

	outputs := []database.TxOut{{Value: amount, Owner: to}}
	if total > amount {
		outputs = append(outputs, database.TxOut{Value: total - amount, Owner: signature.PublicKeyToAddress(pk.PublicKey)})
	}

	tx, err := database.NewTx(inputs, outputs, "send")
	ifErrFailNow(t, err)

	signed, err := tx.Sign(pk)
	ifErrFailNow(t, err)

	return signed
}

// =============================================================================

func Test_EndToEnd(t *testing.T) {
	pkA := privateKey(t, keyA)
	pkB := privateKey(t, keyB)
	pkM := privateKey(t, keyMiner)

	addrA := signature.PublicKeyToAddress(pkA.PublicKey)
	addrB := signature.PublicKeyToAddress(pkB.PublicKey)
	addrM := signature.PublicKeyToAddress(pkM.PublicKey)

	t.Log("Given the need to admit, mine and query transactions.")
	{
		storage := memory.New()
		s := newState(t, storage, addrM)

		mine(t, s, addrA)
		if bal := s.Balance(addrA); bal != 50 {
			t.Fatalf("\t%s\tShould give A the block reward, got %d.", failed, bal)
		}
		t.Logf("\t%s\tShould give A the block reward.", success)

		total, keys := s.SpendableFor(addrA, 10)
		if total != 50 || len(keys) != 1 {
			t.Fatalf("\t%s\tShould find the 50 unit output, got %d %v.", failed, total, keys)
		}
		spent := keys[0]

		t1 := send(t, pkA, keys, total, addrB, 10)
		txID, err := s.SubmitTransaction(t1)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to admit the transaction: %s", failed, err)
		}
		if txID != t1.ID() || s.MempoolLength() != 1 {
			t.Fatalf("\t%s\tShould hold the transaction in the mempool.", failed)
		}
		t.Logf("\t%s\tShould be able to admit the transaction.", success)

		saved, err := storage.LoadMempool()
		ifErrFailNow(t, err)
		if len(saved) != 1 || saved[0].TxID != txID {
			t.Fatalf("\t%s\tShould write the mempool to storage before returning.", failed)
		}
		t.Logf("\t%s\tShould write the mempool to storage before returning.", success)

		if s.Balance(addrA) != 50 {
			t.Fatalf("\t%s\tShould not change balances before the block is mined.", failed)
		}

		block := mine(t, s, addrM)
		txs := block.Txs()
		if len(txs) != 2 || !txs[0].IsCoinbase() || txs[1].TxID != txID {
			t.Fatalf("\t%s\tShould mine the coinbase followed by the transaction.", failed)
		}
		t.Logf("\t%s\tShould mine the coinbase followed by the transaction.", success)

		if s.Balance(addrA) != 40 || s.Balance(addrB) != 10 {
			t.Fatalf("\t%s\tShould have balances 40 and 10, got %d and %d.", failed, s.Balance(addrA), s.Balance(addrB))
		}
		t.Logf("\t%s\tShould have balances 40 and 10.", success)

		if _, exists := s.LookupUTXO(spent.TxID, spent.Index); exists {
			t.Fatalf("\t%s\tShould remove the spent output from the ledger.", failed)
		}
		t.Logf("\t%s\tShould remove the spent output from the ledger.", success)

		saved, err = storage.LoadMempool()
		ifErrFailNow(t, err)
		if s.MempoolLength() != 0 || len(saved) != 0 {
			t.Fatalf("\t%s\tShould clear the mempool after mining.", failed)
		}
		t.Logf("\t%s\tShould clear the mempool after mining.", success)

		again := send(t, pkA, []database.UTXOKey{spent}, 50, addrB, 20)
		if _, err := s.SubmitTransaction(again); !errors.Is(err, database.ErrMissingUTXO) {
			t.Fatalf("\t%s\tShould reject spending the consumed output: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject spending the consumed output.", success)

		if s.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould leave the mempool unchanged after a rejection.", failed)
		}

		proof, err := s.MerkleProof(block.Number, txID)
		ifErrFailNow(t, err)
		if !proof.Verify() {
			t.Fatalf("\t%s\tShould prove the transaction is in the block.", failed)
		}
		t.Logf("\t%s\tShould prove the transaction is in the block.", success)

		if _, err := s.MerkleProof(1, txID); !errors.Is(err, database.ErrNotFound) {
			t.Fatalf("\t%s\tShould not prove a transaction in the wrong block: %v", failed, err)
		}
		if _, err := s.MerkleProof(9, txID); !errors.Is(err, database.ErrNotFound) {
			t.Fatalf("\t%s\tShould not prove a transaction in a missing block: %v", failed, err)
		}
		t.Logf("\t%s\tShould not prove a transaction that isn't there.", success)

		blocks, err := s.QueryBlocksByAccount(addrB)
		ifErrFailNow(t, err)
		if len(blocks) != 1 || blocks[0].Number != block.Number {
			t.Fatalf("\t%s\tShould find the block paying B.", failed)
		}

		blocks, err = s.QueryBlocksByAccount(addrA)
		ifErrFailNow(t, err)
		if len(blocks) != 2 {
			t.Fatalf("\t%s\tShould find both blocks involving A, got %d.", failed, len(blocks))
		}
		t.Logf("\t%s\tShould find the blocks involving an owner.", success)

		if got := s.QueryBlocksByNumber(1, state.QueryLatest); len(got) != 2 {
			t.Fatalf("\t%s\tShould find every block by number, got %d.", failed, len(got))
		}

		if err := s.ValidateChain(true); err != nil {
			t.Fatalf("\t%s\tShould validate the chain: %s", failed, err)
		}
		t.Logf("\t%s\tShould validate the chain with a full audit.", success)

		reloaded := newState(t, storage, addrM)
		if reloaded.Balance(addrA) != 40 || reloaded.Balance(addrB) != 10 || reloaded.LatestBlock().Hash() != block.Hash() {
			t.Fatalf("\t%s\tShould reload the same chain and balances.", failed)
		}
		t.Logf("\t%s\tShould reload the same chain and balances.", success)
	}
}

func Test_Admission(t *testing.T) {
	pkA := privateKey(t, keyA)
	pkB := privateKey(t, keyB)

	addrA := signature.PublicKeyToAddress(pkA.PublicKey)
	addrB := signature.PublicKeyToAddress(pkB.PublicKey)

	t.Log("Given the need to reject transactions that are not sound.")
	{
		s := newState(t, memory.New(), addrA)
		mine(t, s, addrA)

		_, keys := s.SpendableFor(addrA, 50)

		forged := send(t, pkA, keys, 50, addrB, 10)
		forged.Outputs[0].Value = 20
		if _, err := s.SubmitTransaction(forged); !errors.Is(err, database.ErrInvalidSignature) {
			t.Fatalf("\t%s\tShould reject a transaction changed after signing: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a transaction changed after signing.", success)

		stolen := send(t, pkB, keys, 50, addrB, 50)
		if _, err := s.SubmitTransaction(stolen); !errors.Is(err, database.ErrInvalidSignature) {
			t.Fatalf("\t%s\tShould reject spending an output owned by another key: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject spending an output owned by another key.", success)

		over := send(t, pkA, keys, 50, addrB, 60)
		if _, err := s.SubmitTransaction(over); !errors.Is(err, database.ErrOutputsExceedInputs) {
			t.Fatalf("\t%s\tShould reject outputs that exceed the inputs: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject outputs that exceed the inputs.", success)

		mint := database.NewCoinbaseTx(addrB, 50, 99)
		if _, err := s.SubmitTransaction(mint); !errors.Is(err, database.ErrOutputsExceedInputs) {
			t.Fatalf("\t%s\tShould reject a coinbase from outside the miner: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a coinbase from outside the miner.", success)

		free, err := database.NewTx(nil, []database.TxOut{{Value: 0, Owner: addrB}}, "free")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the transaction: %s", failed, err)
		}
		_, err = s.SubmitTransaction(free)
		if !errors.Is(err, database.ErrNoInputs) || !errors.Is(err, database.ErrOutputsExceedInputs) {
			t.Fatalf("\t%s\tShould reject a zero value transaction without inputs: %v", failed, err)
		}
		if strings.Contains(err.Error(), database.ErrOutputsExceedInputs.Error()) {
			t.Fatalf("\t%s\tShould explain the missing inputs, got %q.", failed, err)
		}
		t.Logf("\t%s\tShould reject a zero value transaction without inputs.", success)

		if s.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould leave the mempool empty after rejections.", failed)
		}
	}
}

func Test_DoubleAdmission(t *testing.T) {
	pkA := privateKey(t, keyA)
	pkB := privateKey(t, keyB)
	pkM := privateKey(t, keyMiner)

	addrA := signature.PublicKeyToAddress(pkA.PublicKey)
	addrB := signature.PublicKeyToAddress(pkB.PublicKey)
	addrM := signature.PublicKeyToAddress(pkM.PublicKey)

	t.Log("Given the need to handle two pending transactions spending the same output.")
	{
		storage := memory.New()
		s := newState(t, storage, addrM)
		mine(t, s, addrA)

		_, keys := s.SpendableFor(addrA, 50)

		first := send(t, pkA, keys, 50, addrB, 10)
		second := send(t, pkA, keys, 50, addrB, 30)

		firstID, err := s.SubmitTransaction(first)
		ifErrFailNow(t, err)

		if _, err := s.SubmitTransaction(second); err != nil {
			t.Fatalf("\t%s\tShould admit both transactions: %s", failed, err)
		}
		t.Logf("\t%s\tShould admit both transactions.", success)

		reloaded := newState(t, storage, addrM)
		if reloaded.MempoolLength() != 2 {
			t.Fatalf("\t%s\tShould restore the pending transactions from storage.", failed)
		}
		t.Logf("\t%s\tShould restore the pending transactions from storage.", success)

		block, err := s.MineBeneficiary(context.Background())
		ifErrFailNow(t, err)

		txs := block.Txs()
		if len(txs) != 2 || txs[1].TxID != firstID {
			t.Fatalf("\t%s\tShould mine only the first transaction.", failed)
		}
		t.Logf("\t%s\tShould mine only the first transaction.", success)

		if s.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould drop the losing transaction from the mempool.", failed)
		}
		if s.Balance(addrA) != 40 || s.Balance(addrB) != 10 || s.Balance(addrM) != 50 {
			t.Fatalf("\t%s\tShould have balances 40, 10 and 50, got %d, %d and %d.", failed, s.Balance(addrA), s.Balance(addrB), s.Balance(addrM))
		}
		t.Logf("\t%s\tShould drop the losing transaction and keep the balances sound.", success)

		if _, err := s.MineBeneficiary(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
			t.Fatalf("\t%s\tShould not mine for the beneficiary without transactions: %v", failed, err)
		}
		t.Logf("\t%s\tShould not mine for the beneficiary without transactions.", success)
	}
}

func Test_Cancel(t *testing.T) {
	pkA := privateKey(t, keyA)
	addrA := signature.PublicKeyToAddress(pkA.PublicKey)

	t.Log("Given the need to cancel mining.")
	{
		s := newState(t, memory.New(), addrA)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := s.MineNewBlock(ctx, addrA, 50); !errors.Is(err, database.ErrMiningCancelled) {
			t.Fatalf("\t%s\tShould report the mining was cancelled: %v", failed, err)
		}

		if s.LatestBlock().Number != 0 || s.Balance(addrA) != 0 {
			t.Fatalf("\t%s\tShould leave the chain untouched.", failed)
		}
		t.Logf("\t%s\tShould report the mining was cancelled and leave the chain untouched.", success)
	}
}

func Test_Events(t *testing.T) {
	pkA := privateKey(t, keyA)
	pkB := privateKey(t, keyB)

	addrA := signature.PublicKeyToAddress(pkA.PublicKey)
	addrB := signature.PublicKeyToAddress(pkB.PublicKey)

	t.Log("Given the need to publish ledger events.")
	{
		evts := events.New()
		ch := evts.Acquire("test", events.KindBlock, events.KindTx)

		s, err := state.New(state.Config{
			BeneficiaryID: addrA,
			Genesis:       genesis.Genesis{Difficulty: 4, MiningReward: 50, Workers: 2},
			Storage:       memory.New(),
			EvHandler:     evts.Logf,
			Publisher:     evts.Send,
		})
		ifErrFailNow(t, err)

		block := mine(t, s, addrA)

		e := <-ch
		if e.Kind != events.KindBlock || e.Number != 1 || e.Hash != block.Hash() || len(e.TxIDs) != 1 || e.TxIDs[0] != block.Txs()[0].TxID {
			t.Fatalf("\t%s\tShould publish the committed block: %+v", failed, e)
		}
		t.Logf("\t%s\tShould publish the committed block.", success)

		total, keys := s.SpendableFor(addrA, 10)
		txID, err := s.SubmitTransaction(send(t, pkA, keys, total, addrB, 10))
		ifErrFailNow(t, err)

		if e := <-ch; e.Kind != events.KindTx || e.TxID != txID {
			t.Fatalf("\t%s\tShould publish the admitted transaction: %+v", failed, e)
		}
		t.Logf("\t%s\tShould publish the admitted transaction.", success)

		if _, err := s.SubmitTransaction(send(t, pkA, keys, total, addrB, 60)); err == nil {
			t.Fatalf("\t%s\tShould reject the overspend.", failed)
		}
		if len(ch) != 0 {
			t.Fatalf("\t%s\tShould not publish a rejected transaction.", failed)
		}
		t.Logf("\t%s\tShould not publish a rejected transaction.", success)
	}
}
