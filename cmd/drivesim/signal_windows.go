//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals registers shutdown signals for the serve command.
// Windows only supports os.Interrupt (Ctrl+C); SIGTERM does not exist.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
