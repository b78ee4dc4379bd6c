package notification

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/retroproto/msnpd/internal/logger"
	"github.com/retroproto/msnpd/internal/protocol/msnp"
)

const (
	// outboundQueueSize is the per-session bounded queue capacity.
	outboundQueueSize = 256

	// enqueueTimeout bounds how long a sender may block on a full queue
	// before the target session is declared stalled.
	enqueueTimeout = 5 * time.Second

	// writeTimeout bounds a single socket write by the session writer.
	writeTimeout = 30 * time.Second
)

var (
	// ErrSessionClosed is returned by Send after the session writer shut down.
	ErrSessionClosed = errors.New("notification: session closed")

	// ErrSessionStalled is returned by Send when the outbound queue stayed
	// full past the enqueue timeout. The caller must drop the session.
	ErrSessionStalled = errors.New("notification: outbound queue stalled")
)

// Session owns one client connection's outbound side plus the mutable state
// shared between the reader loop and the router: identity, presence, the
// per-connection list version counter.
//
// The socket is written by exactly one goroutine, the session writer, which
// drains the bounded outbound queue. Everything else (the session's own
// reader loop, the router during fan-out) enqueues via Send. Lines enqueued
// by a single sender are delivered in enqueue order.
type Session struct {
	conn  net.Conn
	epoch uint64

	queue chan string
	quit  chan struct{} // closed by Close; writer drains the queue then exits
	done  chan struct{} // closed when the writer goroutine has exited

	closeOnce sync.Once
	stalled   atomic.Bool

	listVersion atomic.Uint32

	mu          sync.RWMutex
	identity    string // normalized; empty until authenticated
	displayName string
	dialect     string
	status      msnp.Status
	clientID    string // capabilities integer, echoed on presence lines
	msnObj      string // display-picture reference, opaque
}

// NewSession wraps an accepted connection and starts its writer goroutine.
// The epoch is assigned by the registry at accept time and identifies this
// connection instance during fan-out.
func NewSession(conn net.Conn, epoch uint64) *Session {
	s := &Session{
		conn:   conn,
		epoch:  epoch,
		queue:  make(chan string, outboundQueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		status: msnp.StatusOffline,
	}
	go s.writeLoop()
	return s
}

// Epoch returns the connection epoch assigned at accept time.
func (s *Session) Epoch() uint64 {
	return s.epoch
}

// RemoteAddr returns the peer address for logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Send enqueues one outbound line (CRLF included by the caller).
//
// Blocks while the queue is full; after enqueueTimeout the session is marked
// stalled and ErrSessionStalled is returned. The caller is then responsible
// for removing the session from the registry and closing it.
func (s *Session) Send(line string) error {
	// Closed wins over a ready queue slot: check it alone first, so a
	// post-close Send never enqueues onto the drain path.
	select {
	case <-s.quit:
		return ErrSessionClosed
	default:
	}

	select {
	case <-s.quit:
		return ErrSessionClosed
	case s.queue <- line:
		return nil
	default:
	}

	timer := time.NewTimer(enqueueTimeout)
	defer timer.Stop()

	select {
	case <-s.quit:
		return ErrSessionClosed
	case s.queue <- line:
		return nil
	case <-timer.C:
		s.stalled.Store(true)
		return ErrSessionStalled
	}
}

// QueueDepth returns the current outbound queue length.
func (s *Session) QueueDepth() int {
	return len(s.queue)
}

// Stalled reports whether an enqueue ever timed out on this session.
func (s *Session) Stalled() bool {
	return s.stalled.Load()
}

// Close shuts the session down: the writer drains whatever is already
// queued, then closes the connection. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
}

// CloseWith enqueues a final line best-effort (dropped if the queue is
// full), then closes the session. Used for OUT OTH displacement and the
// OUT SSD shutdown broadcast.
func (s *Session) CloseWith(line string) {
	select {
	case s.queue <- line:
	default:
	}
	s.Close()
}

// Closed returns a channel that is closed once shutdown of this session has
// begun. Reader loops select on it to notice displacement.
func (s *Session) Closed() <-chan struct{} {
	return s.quit
}

// Done returns a channel closed after the writer has drained and the
// connection is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// writeLoop is the dedicated session writer. It is the only goroutine that
// touches the socket's write side.
func (s *Session) writeLoop() {
	defer close(s.done)
	defer func() { _ = s.conn.Close() }()

	w := bufio.NewWriter(s.conn)

	for {
		select {
		case line := <-s.queue:
			if !s.writeLine(w, line) {
				s.Close()
				return
			}
		case <-s.quit:
			// Drain what is already queued, then exit. New sends are
			// rejected with ErrSessionClosed.
			for {
				select {
				case line := <-s.queue:
					if !s.writeLine(w, line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) writeLine(w *bufio.Writer, line string) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return false
	}
	if _, err := w.WriteString(line); err != nil {
		logger.Debug("session write failed", "address", s.RemoteAddr(), "error", err)
		return false
	}
	if err := w.Flush(); err != nil {
		logger.Debug("session flush failed", "address", s.RemoteAddr(), "error", err)
		return false
	}
	return true
}

// SetAuthenticated records the identity, display name and dialect once the
// challenge response verifies. Presence starts at NLN.
func (s *Session) SetAuthenticated(identity, displayName, dialect string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.displayName = displayName
	s.dialect = dialect
	s.status = msnp.StatusOnline
	s.clientID = "0"
}

// Identity returns the authenticated identity, or "" before auth.
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// DisplayName returns the display name recorded at auth time.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// Dialect returns the negotiated protocol version tag.
func (s *Session) Dialect() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dialect
}

// Status returns the current presence state.
func (s *Session) Status() msnp.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus updates presence and the optional capability/display-picture
// fields, returning the previous state so the caller can decide whether the
// transition is observable to peers.
func (s *Session) SetStatus(status msnp.Status, clientID, msnObj string) msnp.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status
	s.status = status
	if clientID != "" {
		s.clientID = clientID
	}
	if msnObj != "" {
		s.msnObj = msnObj
	}
	return prev
}

// ClientID returns the capabilities integer as received, "0" by default.
func (s *Session) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clientID == "" {
		return "0"
	}
	return s.clientID
}

// MSNObj returns the display-picture reference, or "" when unset.
func (s *Session) MSNObj() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.msnObj
}

// NextListVersion increments and returns the per-connection contact-list
// version counter echoed on ADD/REM replies and RL notifications.
func (s *Session) NextListVersion() uint32 {
	return s.listVersion.Add(1)
}
