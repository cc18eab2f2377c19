package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Rebuild replays every block in storage to reconstruct the unspent
// outputs and reports the size of the resulting ledger.
func Rebuild(args []string, w io.Writer, db *database.Database) error {
	if err := db.Rebuild(); err != nil {
		return err
	}

	ledger := db.Ledger()
	fmt.Fprintf(w, "Rebuilt blocks[%d] utxos[%d] owners[%d]\n", db.LatestBlock().Number, ledger.Count(), len(ledger.Balances()))

	return nil
}
