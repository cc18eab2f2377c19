// Package worker implements the background mining for the blockchain.
package worker

import (
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
)

// Worker mines blocks for the pending transactions in the background,
// paying the reward to the beneficiary of the state.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool
	evHandler    state.EventHandler
	counters     counters
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) *Worker {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	w := Worker{
		state:        st,
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		evHandler:    evHandler,
		counters:     newCounters(),
	}

	// Register this worker with the state package.
	st.Worker = &w

	w.wg.Add(1)

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.miningOperations()
	}()

	<-hasStarted

	// Pick up anything that was pending when the node stopped.
	if st.Genesis().AutoMine && st.MempoolLength() > 0 {
		w.SignalStartMining()
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown cancels any run in progress and waits for the mining goroutine
// to terminate.
func (w *Worker) Shutdown() {
	w.SignalCancelMining()

	close(w.shut)
	w.wg.Wait()

	st := w.Stats()
	w.evHandler("worker: shutdown: runs[%d]: mined[%d]: stale[%d]: cancelled[%d]: failed[%d]", st.Runs, st.Mined, st.Stale, st.Cancelled, st.Failed)
}

// SignalStartMining asks for a mining run. Signals coalesce: while one is
// waiting to be picked up another is not queued.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
}

// SignalCancelMining stops the run in progress. The pending transactions
// stay in the mempool.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
