package disk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func TestDisk_Storage(t *testing.T) {
	dir := t.TempDir()

	d, err := disk.New(dir, 2)
	require.NoError(t, err)

	storagetest.Run(t, d)
}

func TestDisk_Reopen(t *testing.T) {
	dir := t.TempDir()

	d, err := disk.New(dir, 0)
	require.NoError(t, err)

	blocks := storagetest.Blocks(3)
	for _, bd := range blocks {
		require.NoError(t, d.Write(bd))
	}

	txs := storagetest.Txs(2)
	require.NoError(t, d.SaveMempool(txs))
	require.NoError(t, d.Close())

	// A fresh value has an empty cache so everything comes off disk.
	d, err = disk.New(dir, 0)
	require.NoError(t, err)

	for _, exp := range blocks {
		got, err := d.GetBlock(exp.Number)
		require.NoError(t, err)
		require.Equal(t, exp, got)
	}

	got, err := d.LoadMempool()
	require.NoError(t, err)
	require.Equal(t, txs, got)

	matches, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	require.NoError(t, err)
	require.Empty(t, matches, "no temporary files should be left behind")
}

func TestDisk_Malformed(t *testing.T) {
	dir := t.TempDir()

	d, err := disk.New(dir, 0)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte("{not json"), 0600))

	_, err = d.GetBlock(1)
	require.ErrorIs(t, err, database.ErrMalformed)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "mempool.json"), []byte("[{"), 0600))

	_, err = d.LoadMempool()
	require.ErrorIs(t, err, database.ErrMalformed)
}
