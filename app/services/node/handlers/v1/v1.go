// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/utxochain/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/utxochain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Version is the route group every v1 route is mounted under.
const Version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// Route binds a handler to a method and a path.
type Route struct {
	Method  string
	Path    string
	Handler web.Handler
}

// PublicRoutes returns the routes wallets use to query the ledger and
// submit transactions.
func PublicRoutes(cfg Config) []Route {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	return []Route{
		{http.MethodGet, "/events", pbl.Events},
		{http.MethodGet, "/genesis/list", pbl.Genesis},
		{http.MethodGet, "/balances/list", pbl.Balances},
		{http.MethodGet, "/balances/:owner", pbl.Balances},
		{http.MethodGet, "/utxos/:owner", pbl.UTXOs},
		{http.MethodGet, "/blocks/list/:from/:to", pbl.BlocksByNumber},
		{http.MethodGet, "/blocks/account/:owner", pbl.BlocksByAccount},
		{http.MethodGet, "/mining/signal", pbl.SignalMining},
		{http.MethodGet, "/tx/uncommitted/list", pbl.Mempool},
		{http.MethodGet, "/tx/proof/:block/:txid", pbl.MerkleProof},
		{http.MethodPost, "/tx/submit", pbl.SubmitTransaction},
	}
}

// PrivateRoutes returns the routes operators use to mine on request,
// audit the chain and watch the node.
func PrivateRoutes(cfg Config) []Route {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	return []Route{
		{http.MethodGet, "/node/status", prv.Status},
		{http.MethodPost, "/mining/mine", prv.MineBlock},
		{http.MethodGet, "/chain/validate", prv.ValidateChain},
	}
}
