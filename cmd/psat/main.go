// main.go — Entry point for the psat binary.
//
// Usage:
//
//	psat serve                 run the capture daemon
//	psat attach <url>...       run the daemon and drive a Chrome over CDP
//	psat tabs                  list tabs tracked by a running daemon
//	psat snapshot <tab-id>     print a tab's cookies and sandbox activity
//	psat settings [set]        read or change persisted settings
//
// Exit codes: 0 success, 1 error.
package main

import "os"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
