package transport

import (
	"context"
	"time"
)

// nowFunc is indirected so tests can freeze time if ever needed; production
// code always uses time.Now.
var nowFunc = time.Now

// closeCtx adapts a close channel to a context.Context, for reuse of
// BoundedQueue's context-based Pop across a transport's lifetime signal.
func closeCtx(closeCh <-chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-closeCh
		cancel()
	}()
	return ctx
}
