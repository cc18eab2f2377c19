// This program performs administrative tasks against the blockchain
// storage of a stopped node.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/utxochain/app/tooling/admin/commands"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
	"github.com/ardanlabs/utxochain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN", "stderr")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args  conf.Args
		State struct {
			Storage string `conf:"default:disk"`
			DBPath  string `conf:"default:zblock/blocks/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "validate: check the chain [audit]\nbals: print balances [address]\nutxos: print unspent outputs [address]\nrebuild: replay the chain into the ledger\nreset: remove the chain confirm",
		},
	}

	const prefix = "ADMIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	strg, err := storage.Open(storage.Config{
		Kind: cfg.State.Storage,
		Path: cfg.State.DBPath,
	})
	if err != nil {
		return err
	}

	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...))
	}

	db, err := database.New(strg, ev)
	if err != nil {
		strg.Close()
		return err
	}
	defer db.Close()

	args := append([]string{os.Args[0]}, cfg.Args...)
	return processCommands(args, os.Stdout, db)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args []string, w io.Writer, db *database.Database) error {
	if len(args) < 2 {
		return errors.New("missing command: validate, bals, utxos, rebuild or reset")
	}

	switch args[1] {
	case "validate":
		if err := commands.Validate(args, w, db); err != nil {
			return fmt.Errorf("validating chain: %w", err)
		}
	case "bals":
		if err := commands.Balances(args, w, db); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}
	case "utxos":
		if err := commands.UTXOs(args, w, db); err != nil {
			return fmt.Errorf("getting utxos: %w", err)
		}
	case "rebuild":
		if err := commands.Rebuild(args, w, db); err != nil {
			return fmt.Errorf("rebuilding ledger: %w", err)
		}
	case "reset":
		if err := commands.Reset(args, w, db); err != nil {
			return fmt.Errorf("resetting chain: %w", err)
		}
	default:
		return fmt.Errorf("unknown command %q", args[1])
	}

	return nil
}
