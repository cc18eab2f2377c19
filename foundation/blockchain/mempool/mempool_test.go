package mempool_test

import (
	"fmt"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func sign(prevTxID string, value uint64, to string) (database.BlockTx, error) {
	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		return database.BlockTx{}, err
	}

	tx, err := database.NewTx(
		[]database.TxIn{{PrevTxID: prevTxID, PrevIndex: 0}},
		[]database.TxOut{{Value: value, Owner: to}},
		fmt.Sprintf("send %d", value),
	)
	if err != nil {
		return database.BlockTx{}, err
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		return database.BlockTx{}, err
	}

	return database.NewBlockTx(signedTx), nil
}

func TestCRUD(t *testing.T) {
	type spend struct {
		prev  string
		value uint64
		to    string
	}

	type table struct {
		name      string
		spends    []spend
		conflicts int
	}

	tt := []table{
		{
			name: "basic",
			spends: []spend{
				{prev: "a", value: 10, to: "1F1tAaz5x1HUXrCNLbtMDqcw6o5GNn4xqX"},
				{prev: "b", value: 50, to: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"},
				{prev: "c", value: 100, to: "1JfbZRwdDHKZmuiZgYArJZhcuuzuw2HuMu"},
				{prev: "d", value: 10, to: "1GkQmKAmHtNfnD3LHhTkewJxKHVSta4m2a"},
			},
			conflicts: 1,
		},
		{
			name: "double",
			spends: []spend{
				{prev: "a", value: 10, to: "1F1tAaz5x1HUXrCNLbtMDqcw6o5GNn4xqX"},
				{prev: "a", value: 20, to: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"},
				{prev: "c", value: 100, to: "1JfbZRwdDHKZmuiZgYArJZhcuuzuw2HuMu"},
			},
			conflicts: 2,
		},
	}

	t.Log("Given the need to validate mempool api.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transaction.", testID)
			{
				f := func(t *testing.T) {
					mp := mempool.New()

					var txs []database.BlockTx
					for _, s := range tst.spends {
						tx, err := sign(signature.Hash(s.prev), s.value, s.to)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to sign transaction: %s", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould be able to sign transaction.", success, testID)

						if _, err := mp.Upsert(tx); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to add new transaction: %s", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould be able to add new transaction: %s", success, testID, tx.TxID)

						txs = append(txs, tx)
					}

					for i, tx := range mp.Copy() {
						if tx.TxID != txs[i].TxID {
							t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, tx.TxID)
							t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, txs[i].TxID)
							t.Fatalf("\t%s\tTest %d:\tShould get back transactions in acceptance order.", failed, testID)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould get back transactions in acceptance order.", success, testID)

					if n, _ := mp.Upsert(txs[0]); n != len(txs) || mp.Copy()[0].TxID != txs[0].TxID {
						t.Fatalf("\t%s\tTest %d:\tShould keep the place of a replaced transaction.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould keep the place of a replaced transaction.", success, testID)

					if got := len(mp.Conflicts(txs[0].Tx)); got != tst.conflicts {
						t.Fatalf("\t%s\tTest %d:\tShould find %d conflicts, got %d.", failed, testID, tst.conflicts, got)
					}
					t.Logf("\t%s\tTest %d:\tShould find the transactions spending the same output.", success, testID)

					bad := txs[0]
					bad.TxID = signature.ZeroHash
					if _, err := mp.Upsert(bad); err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould reject a transaction with the wrong id.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould reject a transaction with the wrong id.", success, testID)

					mp.Delete(mp.Copy()[1])
					if mp.Count() != len(txs)-1 || mp.Contains(txs[1].TxID) {
						t.Fatalf("\t%s\tTest %d:\tShould be able to remove a transaction.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to remove a transaction.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
