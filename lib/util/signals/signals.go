// Package signals dispatches process signals to registered handlers:
// SIGHUP triggers reload hooks, SIGINT/SIGTERM trigger shutdown hooks.
package signals

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
)

// sigChan is buffered to avoid missing signals delivered while no receiver
// is ready.
var sigChan = make(chan os.Signal, 1)

// Handler is a function called when a signal is received.
type Handler func()

var (
	mu           sync.RWMutex
	reloaders    []Handler
	interrupters []Handler
	stopOnce     sync.Once
)

// RegisterReloadHandler registers a handler called on SIGHUP.
func RegisterReloadHandler(f Handler) {
	if f == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	reloaders = append(reloaders, f)
}

// RegisterInterruptHandler registers a handler called on SIGINT/SIGTERM.
func RegisterInterruptHandler(f Handler) {
	if f == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	interrupters = append(interrupters, f)
}

// StopHandle closes the signal channel, causing Handle to return. Safe to
// call multiple times.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}

func invoke(snapshot []Handler) {
	for _, f := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// no logger here; make panicking handlers visible anyway
					fmt.Fprintf(os.Stderr, "signals: panic in handler: %v\n", r)
				}
			}()
			f()
		}()
	}
}

func handleReload() {
	mu.RLock()
	snapshot := append([]Handler(nil), reloaders...)
	mu.RUnlock()
	invoke(snapshot)
}

func handleInterrupted() {
	mu.RLock()
	snapshot := append([]Handler(nil), interrupters...)
	mu.RUnlock()
	invoke(snapshot)
}
