package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Reset removes every block and pending transaction from storage. The
// third argument must be "confirm".
func Reset(args []string, w io.Writer, db *database.Database) error {
	if len(args) < 3 || args[2] != "confirm" {
		return errors.New("reset removes the whole chain, run it as: reset confirm")
	}

	blocks := db.LatestBlock().Number

	if err := db.Reset(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Removed blocks[%d]\n", blocks)

	return nil
}
