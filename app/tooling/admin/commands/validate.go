package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Validate walks the chain in storage checking the linkage, proof of work
// and merkle commitment of every block. With "audit" as the third argument
// every transaction is replayed as well.
func Validate(args []string, w io.Writer, db *database.Database) error {
	opts := database.ValidateOptions{
		Audit: len(args) > 2 && args[2] == "audit",
	}

	if err := db.ValidateChain(opts); err != nil {
		return err
	}

	fmt.Fprintf(w, "Chain is valid: blocks[%d] audit[%t]\n", db.LatestBlock().Number, opts.Audit)

	return nil
}
