// Package commands contains the functionality for the admin tool.
package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Balances writes the current set of balances. A single owner can be
// specified as the third argument.
func Balances(args []string, w io.Writer, db *database.Database) error {
	var onlyOwner string
	if len(args) > 2 {
		onlyOwner = args[2]
	}

	fmt.Fprintf(w, "LatestBlockHash: %s\n\n", db.LatestBlock().Hash())

	if onlyOwner != "" {
		fmt.Fprintf(w, "Address: %s  Balance: %d\n", onlyOwner, db.Ledger().Balance(onlyOwner))
		return nil
	}

	bals := db.Ledger().Balances()

	owners := make([]string, 0, len(bals))
	for owner := range bals {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		fmt.Fprintf(w, "Address: %s  Balance: %d\n", owner, bals[owner])
	}

	return nil
}
