// Package httpserver builds the HTTP servers flowd and sandboxd listen
// on. Shutdown is the caller's job; both mains drain through
// Server.Shutdown on signal.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with conservative timeouts. The write timeout
// is generous because flow event handlers can hold a request open while an
// upstream call resolves; the per-route timeout middleware bounds those
// first.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
