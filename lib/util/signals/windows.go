//go:build windows

package signals

import (
	"os/signal"
	"syscall"
)

func init() {
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
}

// Handle blocks dispatching signals until StopHandle is called. Windows has
// no SIGHUP; reload handlers never fire.
func Handle() {
	for {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			handleInterrupted()
		}
	}
}
