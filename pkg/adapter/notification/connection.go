package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/retroproto/msnpd/internal/logger"
	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/adapter"
	"github.com/retroproto/msnpd/pkg/store/models"
)

// connState tracks progression through the handshake. Transitions are
// strict: in states before authenticated, any command other than the
// expected one fails with 715, except OUT (always honored) and PNG
// (honored once a dialect is negotiated).
type connState int

const (
	stateGreeted connState = iota
	stateVersioned
	stateClientIdentified
	stateChallenged
	stateAuthenticated
	stateClosing
)

// Connection drives one client connection: it owns the read side (framer
// and dispatch loop) while the session owns the write side.
type Connection struct {
	adapter *Adapter
	conn    net.Conn
	session *Session
	framer  *msnp.Framer
	log     *slog.Logger

	state   connState
	dialect string

	// Auth handshake scratch state, valid between USR phases.
	pendingIdentity string
	pendingUser     *models.User
	nonce           string
	authFailures    int

	handshakeDeadline time.Time
	admitted          bool
}

var _ adapter.ConnectionHandler = (*Connection)(nil)

func newConnection(a *Adapter, conn net.Conn) *Connection {
	return &Connection{
		adapter: a,
		conn:    conn,
		session: NewSession(conn, a.registry.NextEpoch()),
		framer:  msnp.NewFramer(conn),
		log:     logger.With("protocol", "MSNP", "address", conn.RemoteAddr().String()),
		state:   stateGreeted,
	}
}

// Serve runs the dispatch loop until the connection closes, the session is
// displaced, or a fatal protocol error occurs. Panics are contained to this
// connection.
func (c *Connection) Serve(ctx context.Context) {
	defer c.cleanup()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in connection handler", "panic", r)
		}
	}()

	c.handshakeDeadline = time.Now().Add(c.adapter.config.HandshakeTimeout)

	for {
		select {
		case <-c.session.Closed():
			// Displaced or shut down; the farewell line is already queued.
			return
		default:
		}

		if err := c.conn.SetReadDeadline(c.readDeadline()); err != nil {
			return
		}

		cmd, err := c.framer.Next()
		if err != nil {
			c.handleReadError(err)
			return
		}

		c.adapter.metrics.RecordCommand(cmd.Verb)

		if !c.dispatch(ctx, cmd) {
			return
		}
	}
}

// readDeadline computes the next read deadline: the idle timer, tightened
// by the handshake deadline until authentication completes.
func (c *Connection) readDeadline() time.Time {
	deadline := time.Now().Add(c.adapter.config.effectiveIdleTimeout())
	if c.state < stateAuthenticated && c.handshakeDeadline.Before(deadline) {
		deadline = c.handshakeDeadline
	}
	return deadline
}

// handleReadError maps a framer error to its close behavior. Framing
// violations get a best-effort error line before the connection drops.
func (c *Connection) handleReadError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		c.log.Debug("client disconnected")

	case isTimeout(err):
		if c.state < stateAuthenticated && time.Now().After(c.handshakeDeadline) {
			c.log.Info("handshake timeout")
		} else {
			c.log.Info("idle timeout")
		}

	case errors.Is(err, msnp.ErrLineTooLong),
		errors.Is(err, msnp.ErrPayloadTooLarge),
		errors.Is(err, msnp.ErrBadVerb),
		errors.Is(err, msnp.ErrBadTransactionID),
		errors.Is(err, msnp.ErrEmptyLine):
		c.log.Info("fatal framing error", "error", err)
		c.sendError(msnp.ErrCodeInvalidParameter, 0)

	default:
		c.log.Debug("read error", "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// dispatch routes one command. Returns false when the connection should
// close.
func (c *Connection) dispatch(ctx context.Context, cmd msnp.Command) bool {
	// OUT is honored in every state; PNG once a dialect is negotiated.
	switch cmd.Verb {
	case "OUT":
		return c.handleOUT()
	case "PNG":
		if c.state >= stateVersioned {
			return c.handlePNG()
		}
		c.sendError(msnp.ErrCodeNotExpected, 0)
		return true
	}

	switch c.state {
	case stateGreeted:
		if cmd.Verb == "VER" {
			return c.handleVER(cmd)
		}
	case stateVersioned:
		if cmd.Verb == "CVR" {
			return c.handleCVR(cmd)
		}
	case stateClientIdentified:
		if cmd.Verb == "USR" {
			return c.handleUSRInitial(ctx, cmd)
		}
	case stateChallenged:
		if cmd.Verb == "USR" {
			return c.handleUSRResponse(ctx, cmd)
		}
	case stateAuthenticated:
		return c.dispatchAuthenticated(ctx, cmd)
	}

	c.sendError(msnp.ErrCodeNotExpected, cmd.TID)
	return true
}

// dispatchAuthenticated routes the full post-auth command set.
func (c *Connection) dispatchAuthenticated(ctx context.Context, cmd msnp.Command) bool {
	switch cmd.Verb {
	case "SYN":
		return c.handleSYN(ctx, cmd)
	case "CHG":
		return c.handleCHG(ctx, cmd)
	case "ADD":
		return c.handleADD(ctx, cmd)
	case "REM":
		return c.handleREM(ctx, cmd)
	case "MSG":
		return c.handleMSG(ctx, cmd)
	case "XFR", "CAL", "ANS":
		// Switchboard handoff is not implemented.
		c.sendError(msnp.ErrCodeNotAllowed, cmd.TID)
		return true
	default:
		c.sendError(msnp.ErrCodeNotExpected, cmd.TID)
		return true
	}
}

// send enqueues a line on the session, closing the connection path on a
// stalled queue.
func (c *Connection) send(line string) bool {
	err := c.session.Send(line)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrSessionStalled) {
		c.log.Warn("own outbound queue stalled, dropping connection")
		c.adapter.registry.Remove(c.session)
		c.session.Close()
		c.adapter.metrics.RecordStalledSession()
	}
	return false
}

func (c *Connection) sendError(code int, tid uint32) bool {
	c.adapter.metrics.RecordError(strconv.Itoa(code))
	return c.send(msnp.ErrorLine(code, tid))
}

// cleanup tears the connection down: deregister, notify peers the user went
// offline, and wait for the writer to drain.
func (c *Connection) cleanup() {
	wasCurrent := false
	if c.admitted {
		wasCurrent = c.adapter.registry.Remove(c.session)
		c.adapter.metrics.SessionOffline()
	}

	c.session.Close()

	if wasCurrent && c.session.Status().Visible() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.adapter.router.BroadcastOffline(ctx, c.session)
	}

	select {
	case <-c.session.Done():
	case <-time.After(shutdownDrain):
		_ = c.conn.Close()
	}
}
