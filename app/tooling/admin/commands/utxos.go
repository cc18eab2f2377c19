package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// UTXOs writes the unspent outputs in ledger order. A single owner can be
// specified as the third argument.
func UTXOs(args []string, w io.Writer, db *database.Database) error {
	var owner string
	if len(args) > 2 {
		owner = args[2]
	}

	var total uint64
	for _, u := range db.Ledger().UTXOs(owner) {
		fmt.Fprintf(w, "%s  Address: %s  Value: %d\n", u.Key, u.Output.Owner, u.Output.Value)
		total += u.Output.Value
	}

	fmt.Fprintf(w, "\nTotal: %d\n", total)

	return nil
}
