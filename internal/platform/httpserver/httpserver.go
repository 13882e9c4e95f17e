// Package httpserver builds the process HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server with conservative timeouts. Write timeouts are left
// to the handler layer; explain traversals on deep provenance trees can
// legitimately take longer than a flat cap would allow.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
