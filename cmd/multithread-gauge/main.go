// Command multithread-gauge stresses a shared counter and gauge from several
// goroutines while a Manager reports every interval, then flushes a final
// report once the work completes.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
