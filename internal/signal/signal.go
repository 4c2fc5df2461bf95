// Package signal ties the root context to SIGINT/SIGTERM and lets short
// critical sections, like writing the config file, finish before the
// cancellation is delivered.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// guard tracks deferred cancellation. Nested Hold calls are counted.
type guard struct {
	mu      sync.Mutex
	depth   int
	pending context.CancelFunc
}

var g guard

// WithSignalCancel returns a context that is cancelled when SIGINT or SIGTERM
// is received. If a critical section is open, cancellation waits for Release.
func WithSignalCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			g.deliver(cancel)
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func (g *guard) deliver(cancel context.CancelFunc) {
	g.mu.Lock()
	if g.depth > 0 {
		g.pending = cancel
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	cancel()
}

// Hold opens a critical section during which signals do not cancel the root
// context.
func Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depth++
}

// Release closes a critical section. A signal that arrived while held is
// delivered once the outermost section closes.
func Release() {
	g.mu.Lock()
	if g.depth > 0 {
		g.depth--
	}
	var cancel context.CancelFunc
	if g.depth == 0 && g.pending != nil {
		cancel = g.pending
		g.pending = nil
	}
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Critical runs fn inside a critical section.
func Critical(fn func() error) error {
	Hold()
	defer Release()
	return fn()
}
