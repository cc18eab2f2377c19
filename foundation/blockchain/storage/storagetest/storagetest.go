// Package storagetest provides a shared set of checks every implementation
// of the database.Storage interface must pass.
package storagetest

import (
	"fmt"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/stretchr/testify/require"
)

// owner receives the coinbase of every generated block.
const owner = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"

// Blocks generates n linked blocks numbered from 1. The blocks are not
// mined, storage doesn't validate proof of work.
func Blocks(n int) []database.BlockData {
	blocks := make([]database.BlockData, n)

	prevHash := signature.ZeroHash
	for i := range n {
		number := uint64(i + 1)
		btx := database.NewBlockTx(database.NewCoinbaseTx(owner, 50, number))

		header := database.BlockHeader{
			PrevBlockHash: prevHash,
			MerkleRoot:    btx.TxID,
			TimeStamp:     1_700_000_000 + number,
			Difficulty:    1,
			Nonce:         number,
		}

		blocks[i] = database.BlockData{
			Number: number,
			Hash:   header.Hash(),
			Header: header,
			Txs:    []database.BlockTx{btx},
		}
		prevHash = blocks[i].Hash
	}

	return blocks
}

// Txs generates n pending transactions spending made up outputs.
func Txs(n int) []database.BlockTx {
	txs := make([]database.BlockTx, n)

	for i := range n {
		tx := database.Tx{
			Inputs: []database.TxIn{
				{PrevTxID: signature.Hash(i), PrevIndex: uint32(i), PubKey: "0x02", Sig: "0x01"},
			},
			Outputs: []database.TxOut{
				{Value: uint64(10 + i), Owner: owner},
			},
			Note: fmt.Sprintf("pending-%d", i),
		}
		txs[i] = database.NewBlockTx(tx)
	}

	return txs
}

// Run exercises the storage against the behavior the database expects.
// The storage must start out empty.
func Run(t *testing.T, storage database.Storage) {
	t.Helper()

	t.Log("Given the need to store and read back blocks and pending transactions.")

	iter := storage.ForEach()
	_, err := iter.Next()
	require.NoError(t, err)
	require.True(t, iter.Done(), "an empty chain should be done on the first read")

	_, err = storage.GetBlock(1)
	require.ErrorIs(t, err, database.ErrNotFound)

	txs, err := storage.LoadMempool()
	require.NoError(t, err)
	require.Len(t, txs, 0)

	blocks := Blocks(3)
	for _, bd := range blocks {
		require.NoError(t, storage.Write(bd))
	}

	skipped := Blocks(5)[4]
	require.Error(t, storage.Write(skipped), "a block out of order should be rejected")

	for _, exp := range blocks {
		got, err := storage.GetBlock(exp.Number)
		require.NoError(t, err)
		require.Equal(t, exp, got)
	}

	var read []database.BlockData
	iter = storage.ForEach()
	for bd, err := iter.Next(); !iter.Done(); bd, err = iter.Next() {
		require.NoError(t, err)
		read = append(read, bd)
	}
	require.Equal(t, blocks, read)

	pending := Txs(3)
	require.NoError(t, storage.SaveMempool(pending))

	txs, err = storage.LoadMempool()
	require.NoError(t, err)
	require.Equal(t, pending, txs)

	require.NoError(t, storage.SaveMempool(pending[1:]))

	txs, err = storage.LoadMempool()
	require.NoError(t, err)
	require.Equal(t, pending[1:], txs)

	require.NoError(t, storage.SaveMempool(nil))

	txs, err = storage.LoadMempool()
	require.NoError(t, err)
	require.Len(t, txs, 0)

	require.NoError(t, storage.SaveMempool(pending))
	require.NoError(t, storage.Reset())

	iter = storage.ForEach()
	_, err = iter.Next()
	require.NoError(t, err)
	require.True(t, iter.Done(), "a reset chain should be empty")

	txs, err = storage.LoadMempool()
	require.NoError(t, err)
	require.Len(t, txs, 0)

	require.NoError(t, storage.Write(blocks[0]), "a reset chain should start again at block 1")
}
