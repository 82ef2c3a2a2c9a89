package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// timeoutWriter drops writes from the handler once the deadline has fired or
// the middleware has answered.
// The handler gets its own header map; it reaches the real writer only on
// the first write, under mu.
type timeoutWriter struct {
	http.ResponseWriter
	ctx      context.Context
	h        http.Header
	mu       sync.Mutex
	finished bool
	written  bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.h }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.written || tw.expiredLocked() {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.finished || (!tw.written && tw.expiredLocked()) {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.written {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

// expiredLocked reports a passed deadline even before the serving goroutine
// has noticed it.
func (tw *timeoutWriter) expiredLocked() bool {
	return tw.finished || tw.ctx.Err() != nil
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	dst := tw.ResponseWriter.Header()
	for k, vv := range tw.h {
		dst[k] = vv
	}
	tw.written = true
	tw.ResponseWriter.WriteHeader(code)
}

// RequestTimeout puts a deadline on the request context. Handlers that do not
// answer in time get a 503 written on their behalf.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)
			tw := &timeoutWriter{ResponseWriter: w, ctx: ctx, h: make(http.Header)}

			done := make(chan struct{})
			panicCh := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicCh <- p
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case <-done:
			case p := <-panicCh:
				// re-raise on the serving goroutine so Recovery sees it
				panic(p)
			case <-ctx.Done():
			}

			tw.mu.Lock()
			defer tw.mu.Unlock()
			switch {
			case tw.written:
			case ctx.Err() != nil:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"result":"Request timeout"}`))
			default:
				tw.writeHeaderLocked(http.StatusOK)
			}
			tw.finished = true
		})
	}
}
