// Package httpserver assembles the process's HTTP server. Workflow commands
// are short, so per-request deadlines come from the router's timeout
// middleware; the server itself only bounds connection-level reads so idle
// clients cannot pin connections.
package httpserver

import (
	"net/http"
	"time"
)

// New wraps handler in a server listening on addr.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
