// Package private maintains the group of handlers for operator access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	v1 "github.com/ardanlabs/utxochain/business/web/v1"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// mineRequest names the owner of the block reward. A zero amount pays the
// genesis mining reward.
type mineRequest struct {
	Owner  string `json:"owner" validate:"required"`
	Amount uint64 `json:"amount"`
}

// MineBlock mines a new block holding the pending transactions and waits
// for it to be added to the chain.
func (h Handlers) MineBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req mineRequest
	if err := web.Decode(r, &req); err != nil {
		return v1.NewRequestError(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := signature.ValidateAddress(req.Owner); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if req.Amount == 0 {
		req.Amount = h.State.Genesis().MiningReward
	}

	h.Log.Infow("mine block", "traceid", v.TraceID, "owner", req.Owner, "amount", req.Amount)

	block, err := h.State.MineNewBlock(ctx, req.Owner, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrChainMoved):
			return v1.NewRequestError(err, http.StatusConflict)
		case errors.Is(err, database.ErrMiningCancelled):
			return v1.NewRequestError(err, http.StatusServiceUnavailable)
		}
		return err
	}

	resp := struct {
		Number uint64 `json:"number"`
		Hash   string `json:"hash"`
		Txs    int    `json:"txs"`
	}{
		Number: block.Number,
		Hash:   block.Hash(),
		Txs:    len(block.Txs()),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ValidateChain walks the chain from storage and reports whether it is
// valid. The audit query parameter replays every transaction as well.
func (h Handlers) ValidateChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var audit bool
	if s := r.URL.Query().Get("audit"); s != "" {
		var err error
		if audit, err = strconv.ParseBool(s); err != nil {
			return v1.NewRequestError(fmt.Errorf("invalid audit value: %w", err), http.StatusBadRequest)
		}
	}

	resp := struct {
		Valid bool   `json:"valid"`
		Audit bool   `json:"audit"`
		Error string `json:"error,omitempty"`
	}{
		Valid: true,
		Audit: audit,
	}

	if err := h.State.ValidateChain(audit); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.LatestBlock()

	status := struct {
		LatestBlockHash   string `json:"latest_block_hash"`
		LatestBlockNumber uint64 `json:"latest_block_number"`
		Uncommitted       int    `json:"uncommitted"`
		MiningAttempts    uint64 `json:"mining_attempts"`
		Subscribers       int    `json:"event_subscribers"`
		EventsDropped     uint64 `json:"events_dropped"`
	}{
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockNumber: latestBlock.Number,
		Uncommitted:       h.State.MempoolLength(),
		MiningAttempts:    h.State.MiningAttempts(),
	}

	if h.Evts != nil {
		status.Subscribers = h.Evts.Subscribers()
		status.EventsDropped = h.Evts.Dropped()
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}
