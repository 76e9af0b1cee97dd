package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"mixtape/internal/shared"
)

// CodeRecorder stages an authorization code for a later token exchange.
// The state parameter must match the value minted for the authorize URL.
type CodeRecorder interface {
	RecordAuthorizationCode(code, state string) error
}

// CallbackHandler receives the provider's redirect after the user grants
// access. The code is staged through the recorder; the actual token
// exchange happens lazily on the next authenticated call. Only the first
// callback is processed to prevent replay.
type CallbackHandler struct {
	recorder    CodeRecorder
	resultChan  chan error
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

func NewCallbackHandler(recorder CodeRecorder) *CallbackHandler {
	return &CallbackHandler{
		recorder:   recorder,
		resultChan: make(chan error, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"/callback"}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		err := fmt.Errorf("authorization failed: %s - %s", errParam, query.Get("error_description"))
		h.send(err)
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if err := h.recorder.RecordAuthorizationCode(query.Get("code"), query.Get("state")); err != nil {
		h.send(err)
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	h.send(nil)

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Authorization Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`)
}

// send delivers the callback outcome exactly once.
func (h *CallbackHandler) send(err error) {
	h.once.Do(func() {
		h.resultChan <- err
		close(h.resultChan)
	})
}

// Result returns a channel that receives exactly one callback outcome
// and is then closed.
func (h *CallbackHandler) Result() <-chan error {
	return h.resultChan
}

// WaitForCallback serves the router on addr until the handler reports a
// result, the timeout elapses, or ctx is cancelled. The listener is shut
// down before returning.
func WaitForCallback(ctx context.Context, addr string, router Router, handler *CallbackHandler, timeout time.Duration) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	var result error
	select {
	case result = <-handler.Result():
	case err := <-serveErr:
		result = err
	case <-time.After(timeout):
		result = fmt.Errorf("%w: no authorization after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		result = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return result
}
