// Command modemwatch monitors HNAP cable modems: it pings them, polls their
// telemetry to disk and reboots them on a schedule or when they keep
// failing.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
