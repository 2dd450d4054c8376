package httpapi

import (
	"context"
)

// serverBaseCtx ties handler work to the process lifetime: cmd/detectd
// cancels it on shutdown so in-flight runs stop promptly.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-level context. nil resets to
// Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context cancelled as soon as either parent is
// done, so a run aborts on client disconnect and on shutdown alike. The
// cancel func must run when the handler returns to free the watcher
// goroutine.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}
