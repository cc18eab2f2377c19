// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	v1 "github.com/ardanlabs/utxochain/business/web/v1"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events streams ledger events to a websocket client as JSON. The kind
// query parameter, repeated or comma separated, limits the kinds sent.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var kinds []events.Kind
	for _, param := range r.URL.Query()["kind"] {
		for _, s := range strings.Split(param, ",") {
			kind, err := events.ParseKind(strings.TrimSpace(s))
			if err != nil {
				return v1.NewRequestError(err, http.StatusBadRequest)
			}
			kinds = append(kinds, kind)
		}
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID, kinds...)
	defer h.Evts.Release(v.TraceID)

	h.Log.Infow("events", "traceid", v.TraceID, "status", "subscribed", "kinds", kinds)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, open := <-ch:
			if !open {
				return nil
			}

			if err := c.WriteJSON(e); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new signed transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var stx submitTx
	if err := web.Decode(r, &stx); err != nil {
		return v1.NewRequestError(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	tx := stx.toTx()

	h.Log.Infow("submit tx", "traceid", v.TraceID, "tx", tx)
	txID, err := h.State.SubmitTransaction(tx)
	if err != nil {
		return v1.NewLedgerError(err)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"txid"`
	}{
		Status: "transaction added to mempool",
		TxID:   txID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.Mempool()

	txs := make([]tx, len(mempool))
	for i, btx := range mempool {
		txs[i] = toTx(btx, h.NS)
	}

	return web.Respond(ctx, w, txs, http.StatusOK)
}

// Balances returns the current balance of the specified owner or of
// every owner holding an unspent output.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	owner := web.Param(r, "owner")

	var bals []balance
	switch owner {
	case "":
		for address, value := range h.State.Balances() {
			bals = append(bals, balance{Address: address, Name: h.NS.Lookup(address), Balance: value})
		}
		sort.Slice(bals, func(i, j int) bool {
			return bals[i].Address < bals[j].Address
		})

	default:
		if err := signature.ValidateAddress(owner); err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		bals = append(bals, balance{Address: owner, Name: h.NS.Lookup(owner), Balance: h.State.Balance(owner)})
	}

	resp := balances{
		LatestBlock: h.State.LatestBlock().Hash(),
		Uncommitted: h.State.MempoolLength(),
		Balances:    bals,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// UTXOs returns the unspent outputs of the owner. When an amount is
// provided, only the outputs selected to cover it are returned.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	owner := web.Param(r, "owner")
	if err := signature.ValidateAddress(owner); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := utxos{
		Address: owner,
		UTXOs:   []utxo{},
	}

	if amountStr := r.URL.Query().Get("amount"); amountStr != "" {
		amount, err := strconv.ParseUint(amountStr, 10, 64)
		if err != nil {
			return v1.NewRequestError(fmt.Errorf("invalid amount: %w", err), http.StatusBadRequest)
		}

		total, keys := h.State.SpendableFor(owner, amount)
		for _, key := range keys {
			if out, exists := h.State.LookupUTXO(key.TxID, key.Index); exists {
				resp.UTXOs = append(resp.UTXOs, utxo{TxID: key.TxID, Index: key.Index, Value: out.Value, Address: out.Owner})
			}
		}
		resp.Total = total

		return web.Respond(ctx, w, resp, http.StatusOK)
	}

	for _, u := range h.State.UTXOs(owner) {
		resp.UTXOs = append(resp.UTXOs, utxo{TxID: u.Key.TxID, Index: u.Key.Index, Value: u.Output.Value, Address: u.Output.Owner})
		resp.Total += u.Output.Value
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := blockNumber(web.Param(r, "from"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	to, err := blockNumber(web.Param(r, "to"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if from > to {
		return v1.NewRequestError(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByNumber(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, toBlocks(blocks, h.NS), http.StatusOK)
}

// BlocksByAccount returns the blocks holding transactions that pay or are
// spent by the owner.
func (h Handlers) BlocksByAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	owner := web.Param(r, "owner")
	if err := signature.ValidateAddress(owner); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	blocks, err := h.State.QueryBlocksByAccount(owner)
	if err != nil {
		return err
	}

	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, toBlocks(blocks, h.NS), http.StatusOK)
}

// MerkleProof returns the proof a transaction is committed to by a block.
func (h Handlers) MerkleProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	number, err := strconv.ParseUint(web.Param(r, "block"), 10, 64)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid block number: %w", err), http.StatusBadRequest)
	}

	proof, err := h.State.MerkleProof(number, web.Param(r, "txid"))
	if err != nil {
		return v1.NewLedgerError(err)
	}

	return web.Respond(ctx, w, proof, http.StatusOK)
}

// SignalMining signals the worker to mine the pending transactions.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.Worker.SignalStartMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signalled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// blockNumber parses a block number where "latest" or nothing means the
// latest block.
func blockNumber(s string) (uint64, error) {
	if s == "" || s == "latest" {
		return state.QueryLatest, nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", s, err)
	}

	return n, nil
}
