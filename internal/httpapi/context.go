package httpapi

import (
	"context"
	"errors"
	"net/http"
)

// errShuttingDown is the cancel cause of in-flight predictions when the
// server base context ends.
var errShuttingDown = errors.New("server shutting down")

// serverBaseCtx ends when the process starts shutting down. Background until
// SetBaseContext is called.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context that bounds every prediction.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// predictContext derives the inference context from r: it keeps the request's
// values, ends with the client or with serverBaseCtx, and carries the
// configured predictTimeout. The cancel func must be called when the handler
// returns.
func predictContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancelCause := context.WithCancelCause(r.Context())
	stop := context.AfterFunc(serverBaseCtx, func() { cancelCause(errShuttingDown) })
	cancel := func() {
		stop()
		cancelCause(context.Canceled)
	}
	if predictTimeout <= 0 {
		return ctx, cancel
	}
	tctx, cancelTimeout := context.WithTimeout(ctx, predictTimeout)
	return tctx, func() {
		cancelTimeout()
		cancel()
	}
}
