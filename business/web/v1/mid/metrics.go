package mid

import (
	"context"
	"expvar"
	"net/http"

	"github.com/ardanlabs/utxochain/foundation/web"
)

// m contains the global program counters for the application.
var m = struct {
	requests *expvar.Int
	errors   *expvar.Int
}{
	requests: expvar.NewInt("requests"),
	errors:   expvar.NewInt("errors"),
}

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	mw := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request counter.
			m.requests.Add(1)

			// Increment if there is an error flowing through the request.
			if err != nil {
				m.errors.Add(1)
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return mw
}
