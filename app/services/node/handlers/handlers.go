// Package handlers composes the muxes the node serves. Wallet facing routes
// are served on the public mux, operator routes on the private mux and
// profiling and health checks on the debug mux.
package handlers

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/ardanlabs/utxochain/app/services/node/handlers/debug/checkgrp"
	v1 "github.com/ardanlabs/utxochain/app/services/node/handlers/v1"
	"github.com/ardanlabs/utxochain/business/web/v1/mid"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/web"
	"go.uber.org/zap"
)

// Scope selects which set of routes a mux serves.
type Scope string

// Set of scopes a node serves.
const (
	Public  Scope = "public"
	Private Scope = "private"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown   chan os.Signal
	Log        *zap.SugaredLogger
	State      *state.State
	NS         *nameservice.NameService
	Evts       *events.Events
	CORSOrigin string
}

// APIMux constructs the mux serving the v1 routes of the scope. Only the
// public scope answers cross origin requests since browsers and wallets
// talk to it directly.
func APIMux(scope Scope, cfg MuxConfig) (http.Handler, error) {
	v1cfg := v1.Config{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	}

	mw := []web.Middleware{
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Metrics(),
	}

	var routes []v1.Route

	switch scope {
	case Public:
		origin := cfg.CORSOrigin
		if origin == "" {
			origin = "*"
		}
		mw = append(mw, mid.Cors(origin))
		routes = v1.PublicRoutes(v1cfg)

	case Private:
		routes = v1.PrivateRoutes(v1cfg)

	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	// Panics wraps the handler directly so a recovered panic flows through
	// the error and metrics middleware as an error.
	mw = append(mw, mid.Panics())

	app := web.NewApp(cfg.Shutdown, mw...)

	if scope == Public {
		preflight := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return nil
		}
		app.Handle(http.MethodOptions, "", "/*", preflight)
	}

	for _, rt := range routes {
		app.Handle(rt.Method, v1.Version, rt.Path, rt.Handler)
	}

	cfg.Log.Infow("startup", "status", "routes bound", "scope", scope, "routes", len(routes))

	return app, nil
}

// DebugMux registers the standard library profiling and expvar routes
// along with the health checks on a mux of its own, so nothing registered
// on the DefaultServeMux by a dependency is exposed.
func DebugMux(build string, log *zap.SugaredLogger, st *state.State) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	cgh := checkgrp.Handlers{
		Build: build,
		Log:   log,
		State: st,
	}
	mux.HandleFunc("/debug/readiness", cgh.Readiness)
	mux.HandleFunc("/debug/liveness", cgh.Liveness)

	return mux
}
