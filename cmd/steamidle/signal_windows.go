//go:build windows

package main

import "os"

// shutdownSignals are the signals that stop the daemon. Windows has no
// SIGTERM; the runtime maps console close and CTRL_BREAK to os.Interrupt.
var shutdownSignals = []os.Signal{os.Interrupt}
