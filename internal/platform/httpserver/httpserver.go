package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Header and idle timeouts are fixed; request
// bodies are small JSON documents, so no write timeout is applied.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
