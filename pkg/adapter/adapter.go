// Package adapter provides shared TCP server lifecycle management for
// protocol adapters: listener setup, connection tracking, concurrency
// limits and graceful shutdown. The notification adapter builds on
// BaseAdapter; a future switchboard adapter would embed it the same way.
package adapter

import (
	"context"
)

// Adapter represents a protocol-specific server that can be managed by the
// msnpd process.
//
// Lifecycle:
//  1. Creation: adapter is created with protocol-specific configuration
//  2. Startup: Serve() starts the server and blocks until shutdown
//  3. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use; Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the server and blocks until the context is cancelled or
	// an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	// stop accepting new connections, wait for active connections to drain
	// (with timeout), clean up resources.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Idempotent and safe to call
	// concurrently with Serve(). The context bounds the shutdown wait.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	Port() int
}
