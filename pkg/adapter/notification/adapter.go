package notification

import (
	"context"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/retroproto/msnpd/internal/logger"
	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/adapter"
	"github.com/retroproto/msnpd/pkg/metrics"
	"github.com/retroproto/msnpd/pkg/store"
)

// shutdownDrain is how long displaced-by-shutdown sessions get to flush
// their OUT SSD line before connections are hard-closed.
const shutdownDrain = 2 * time.Second

// Adapter is the notification protocol server. It owns the session
// registry, the presence router and the per-IP rate limiter, and delegates
// TCP lifecycle management to the shared BaseAdapter.
type Adapter struct {
	*adapter.BaseAdapter

	config   Config
	store    store.Store
	registry *Registry
	router   *Router
	metrics  *metrics.NotificationMetrics
	limiter  *IPRateLimiter

	// newNonce generates challenge nonces; tests override it to make the
	// auth exchange deterministic.
	newNonce func() string
}

var _ adapter.Adapter = (*Adapter)(nil)
var _ adapter.ConnectionFactory = (*Adapter)(nil)

// New creates a notification adapter over the given store.
func New(config Config, st store.Store, m *metrics.NotificationMetrics) *Adapter {
	config.ApplyDefaults()

	base := adapter.NewBaseAdapter(adapter.BaseConfig{
		BindAddress:     config.BindAddress,
		Port:            config.Port,
		MaxConnections:  config.MaxConnections,
		ShutdownTimeout: config.ShutdownTimeout,
	}, "MSNP")
	base.Metrics = m

	registry := NewRegistry()

	a := &Adapter{
		BaseAdapter: base,
		config:      config,
		store:       st,
		registry:    registry,
		router:      NewRouter(registry, st, m),
		metrics:     m,
		newNonce:    msnp.NewNonce,
	}

	if config.RateLimit.Enabled {
		a.limiter = NewIPRateLimiter(
			rate.Limit(config.RateLimit.Rate),
			config.RateLimit.Burst,
			config.RateLimit.TTL,
		)
	}

	return a
}

// Registry exposes the session registry (used by the ticket API for
// an online-users view and by tests).
func (a *Adapter) Registry() *Registry {
	return a.registry
}

// Serve runs the accept loop until the context is cancelled, then performs
// the protocol-level shutdown sequence: stop accepting, send every
// registered session "OUT SSD", give writers a short drain window, then
// close everything via the base adapter.
func (a *Adapter) Serve(ctx context.Context) error {
	// The base accept loop sees a derived context that is cancelled only
	// after OUT SSD has been broadcast, so the farewell line reaches
	// clients before their reads are interrupted.
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			a.shutdownSessions()
		case <-a.Shutdown:
			// Stop() already ran the session shutdown sequence.
		}
		cancel()
	}()

	return a.ServeWithFactory(baseCtx, a, a.preAccept, nil)
}

// Stop initiates graceful shutdown: broadcast OUT SSD, drain, then delegate
// to the base adapter.
func (a *Adapter) Stop(ctx context.Context) error {
	a.shutdownSessions()
	return a.BaseAdapter.Stop(ctx)
}

// shutdownSessions sends OUT SSD to every registered session and waits up
// to the drain window for their writers to flush.
func (a *Adapter) shutdownSessions() {
	sessions := a.registry.Snapshot()
	if len(sessions) == 0 {
		return
	}

	logger.Info("notifying sessions of shutdown", "sessions", len(sessions))
	for _, s := range sessions {
		s.CloseWith("OUT SSD\r\n")
	}

	deadline := time.NewTimer(shutdownDrain)
	defer deadline.Stop()
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-deadline.C:
			return
		}
	}
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return newConnection(a, conn)
}

// preAccept applies the per-IP rate limit before a connection is tracked.
func (a *Adapter) preAccept(conn net.Conn) bool {
	if a.limiter == nil {
		return true
	}

	ip, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		logger.Debug("failed to parse remote address", "address", conn.RemoteAddr(), "error", err)
		return true
	}
	if !a.limiter.Allow(ip) {
		logger.Warn("connection rate limited", "ip", ip)
		return false
	}
	return true
}
