package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"go.uber.org/atomic"
)

// outcome classifies how a mining run ended.
type outcome int

const (
	outcomeMined outcome = iota
	outcomeEmpty
	outcomeStale
	outcomeCancelled
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeMined:
		return "mined"
	case outcomeEmpty:
		return "empty"
	case outcomeStale:
		return "stale"
	case outcomeCancelled:
		return "cancelled"
	}
	return "failed"
}

// classify maps the result of a mining run to its outcome.
func classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return outcomeMined
	case errors.Is(err, state.ErrNoTransactions):
		return outcomeEmpty
	case errors.Is(err, state.ErrChainMoved):
		return outcomeStale
	case errors.Is(err, database.ErrMiningCancelled), ctx.Err() != nil:
		return outcomeCancelled
	}
	return outcomeFailed
}

// =============================================================================

// Stats reports the mining runs the worker has performed.
type Stats struct {
	Runs         uint64
	Mined        uint64
	Stale        uint64
	Cancelled    uint64
	Failed       uint64
	LastBlock    uint64
	LastDuration time.Duration
}

// counters holds the live values behind Stats.
type counters struct {
	runs         *atomic.Uint64
	mined        *atomic.Uint64
	stale        *atomic.Uint64
	cancelled    *atomic.Uint64
	failed       *atomic.Uint64
	lastBlock    *atomic.Uint64
	lastDuration *atomic.Duration
}

func newCounters() counters {
	return counters{
		runs:         atomic.NewUint64(0),
		mined:        atomic.NewUint64(0),
		stale:        atomic.NewUint64(0),
		cancelled:    atomic.NewUint64(0),
		failed:       atomic.NewUint64(0),
		lastBlock:    atomic.NewUint64(0),
		lastDuration: atomic.NewDuration(0),
	}
}

// Stats returns a snapshot of the mining runs performed so far.
func (w *Worker) Stats() Stats {
	return Stats{
		Runs:         w.counters.runs.Load(),
		Mined:        w.counters.mined.Load(),
		Stale:        w.counters.stale.Load(),
		Cancelled:    w.counters.cancelled.Load(),
		Failed:       w.counters.failed.Load(),
		LastBlock:    w.counters.lastBlock.Load(),
		LastDuration: w.counters.lastDuration.Load(),
	}
}

// =============================================================================

// miningOperations waits for mining signals until the worker shuts down.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if w.isShutdown() {
				continue
			}
			w.runMiningOperation()

		case <-w.shut:
			return
		}
	}
}

// runMiningOperation mines one block holding the pending transactions and
// paying the beneficiary. A run can be cancelled by a cancel signal or by
// shutdown. If transactions are still pending afterwards, another run is
// signaled.
func (w *Worker) runMiningOperation() {
	pending := w.state.MempoolLength()
	if pending == 0 {
		w.evHandler("worker: runMiningOperation: MINING: nothing pending")
		return
	}

	defer w.signalIfPending()

	// A cancel left over from an earlier run must not stop this one.
	select {
	case <-w.cancelMining:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	stop := w.watchCancel(ctx, cancel)
	defer stop()

	w.counters.runs.Inc()
	w.evHandler("worker: runMiningOperation: MINING: started: pending[%d]", pending)

	start := time.Now()
	block, err := w.state.MineBeneficiary(ctx)
	w.record(classify(ctx, err), block, err, time.Since(start))
}

// watchCancel cancels the context when a cancel is signaled or the worker
// shuts down. The returned function ends the watch and waits for it.
func (w *Worker) watchCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})

	go func() {
		defer close(done)

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
			cancel()
		case <-w.shut:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: shutdown")
			cancel()
		case <-ctx.Done():
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// record counts the outcome of a run and reports it.
func (w *Worker) record(o outcome, block database.Block, err error, duration time.Duration) {
	w.counters.lastDuration.Store(duration)

	switch o {
	case outcomeMined:
		w.counters.mined.Inc()
		w.counters.lastBlock.Store(block.Number)
		w.evHandler("worker: runMiningOperation: MINING: %s: blk[%d]: hash[%s]: txs[%d]: duration[%v]", o, block.Number, block.Hash(), len(block.Txs()), duration)
		return

	case outcomeStale:
		w.counters.stale.Inc()
	case outcomeCancelled:
		w.counters.cancelled.Inc()
	case outcomeFailed:
		w.counters.failed.Inc()
	}

	w.evHandler("worker: runMiningOperation: MINING: %s: duration[%v]: %v", o, duration, err)
}

// signalIfPending starts another run when transactions are still waiting.
func (w *Worker) signalIfPending() {
	if pending := w.state.MempoolLength(); pending > 0 && !w.isShutdown() {
		w.evHandler("worker: runMiningOperation: MINING: signal new run: pending[%d]", pending)
		w.SignalStartMining()
	}
}
