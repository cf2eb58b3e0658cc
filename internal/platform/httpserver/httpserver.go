// Package httpserver builds the *http.Server from server configuration.
package httpserver

import (
	"net/http"
	"time"

	"contactlink/internal/platform/config"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	idleTimeout              = 120 * time.Second
	// writeSlack leaves room to write the timeout response after the
	// per-request deadline fires.
	writeSlack = 5 * time.Second
)

func New(cfg config.Server, handler http.Handler) *http.Server {
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = defaultReadHeaderTimeout
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
		IdleTimeout:       idleTimeout,
	}
	if cfg.RequestTimeout > 0 {
		srv.WriteTimeout = cfg.RequestTimeout + writeSlack
	}
	return srv
}
