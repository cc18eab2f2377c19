package commands_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ardanlabs/utxochain/app/tooling/admin/commands"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
	"github.com/stretchr/testify/require"
)

const (
	kennedy = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	pavel   = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

func newDatabase(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(memory.New(), nil)
	require.NoError(t, err)

	for i, owner := range []string{kennedy, pavel, kennedy} {
		coinbase := database.NewBlockTx(database.NewCoinbaseTx(owner, 50, uint64(i+1)))

		block, err := database.POW(context.Background(), database.POWArgs{
			PrevBlock:  db.LatestBlock(),
			Difficulty: 4,
			Txs:        []database.BlockTx{coinbase},
		})
		require.NoError(t, err)
		require.NoError(t, db.Commit(block))
	}

	return db
}

func TestCommands(t *testing.T) {
	db := newDatabase(t)

	var out bytes.Buffer
	require.NoError(t, commands.Balances([]string{"admin", "bals"}, &out, db))
	require.Contains(t, out.String(), "Address: "+kennedy+"  Balance: 100")
	require.Contains(t, out.String(), "Address: "+pavel+"  Balance: 50")

	out.Reset()
	require.NoError(t, commands.Balances([]string{"admin", "bals", pavel}, &out, db))
	require.NotContains(t, out.String(), kennedy)

	out.Reset()
	require.NoError(t, commands.UTXOs([]string{"admin", "utxos", kennedy}, &out, db))
	require.Equal(t, 2, strings.Count(out.String(), "Address: "+kennedy))
	require.Contains(t, out.String(), "Total: 100")

	out.Reset()
	require.NoError(t, commands.Validate([]string{"admin", "validate", "audit"}, &out, db))
	require.Contains(t, out.String(), "blocks[3] audit[true]")

	out.Reset()
	require.NoError(t, commands.Rebuild([]string{"admin", "rebuild"}, &out, db))
	require.Contains(t, out.String(), "Rebuilt blocks[3] utxos[3] owners[2]")
	require.Equal(t, uint64(100), db.Ledger().Balance(kennedy))

	require.Error(t, commands.Reset([]string{"admin", "reset"}, &out, db))
	require.Equal(t, uint64(3), db.LatestBlock().Number)

	out.Reset()
	require.NoError(t, commands.Reset([]string{"admin", "reset", "confirm"}, &out, db))
	require.Equal(t, uint64(0), db.LatestBlock().Number)
	require.Empty(t, db.Ledger().Balances())
}
