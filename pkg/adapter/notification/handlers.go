package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store"
)

// handleVER negotiates the dialect: the reply carries the single greatest
// version present in both the client offer and the server's supported set,
// or 0 followed by connection close when the intersection is empty.
func (c *Connection) handleVER(cmd msnp.Command) bool {
	dialect, ok := msnp.Negotiate(c.adapter.config.SupportedVersions, cmd.Args)
	if !ok {
		c.send(fmt.Sprintf("VER %d 0\r\n", cmd.TID))
		c.log.Info("no common dialect", "offered", cmd.Args)
		return false
	}

	c.dialect = dialect
	c.state = stateVersioned
	c.log.Debug("dialect negotiated", "dialect", dialect)
	return c.send(fmt.Sprintf("VER %d %s\r\n", cmd.TID, dialect))
}

// handleCVR answers the client-version exchange with the static advisory:
// recommended build, minimum build, current build, upgrade URL, store URL.
// The client payload is informational only.
func (c *Connection) handleCVR(cmd msnp.Command) bool {
	cvr := c.adapter.config.CVR
	c.state = stateClientIdentified
	return c.send(fmt.Sprintf("CVR %d %s %s %s %s %s\r\n",
		cmd.TID, cvr.RecommendedVersion, cvr.RecommendedVersion, cvr.RecommendedVersion,
		cvr.DownloadURL, cvr.InfoURL))
}

// handleUSRInitial runs auth phase 1: look the identity up and issue a
// challenge nonce. The legacy MD5 scheme tag is accepted as an alias of
// AUTH.
func (c *Connection) handleUSRInitial(ctx context.Context, cmd msnp.Command) bool {
	if len(cmd.Args) != 3 || !validAuthScheme(cmd.Args[0]) || cmd.Args[1] != "I" {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	identity := msnp.NormalizeIdentity(cmd.Args[2])
	if !msnp.ValidIdentity(identity) {
		c.sendError(msnp.ErrCodeInvalidIdentity, cmd.TID)
		return true
	}

	user, err := c.adapter.store.GetUser(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.log.Info("auth attempt for unknown identity", "identity", identity)
			c.sendError(msnp.ErrCodeAuthFailed, cmd.TID)
			return true
		}
		c.log.Error("user lookup failed", "identity", identity, "tid", cmd.TID, "error", err)
		c.sendError(msnp.ErrCodeInternal, cmd.TID)
		return true
	}

	c.pendingIdentity = identity
	c.pendingUser = user
	c.nonce = c.adapter.newNonce()
	c.state = stateChallenged

	return c.send(fmt.Sprintf("USR %d %s S %s\r\n", cmd.TID, cmd.Args[0], c.nonce))
}

// handleUSRResponse runs auth phase 2: verify the challenge response
// against the stored credential and the issued nonce. On success the
// session is admitted to the registry, presence starts at NLN and the
// client receives its login-complete self-notification.
func (c *Connection) handleUSRResponse(ctx context.Context, cmd msnp.Command) bool {
	// Accepted shapes: "AUTH S <identity> <hash>" and the short
	// "AUTH S <hash>" some clients send.
	if len(cmd.Args) < 3 || len(cmd.Args) > 4 || !validAuthScheme(cmd.Args[0]) || cmd.Args[1] != "S" {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	hash := cmd.Args[len(cmd.Args)-1]
	if !msnp.ValidHashFormat(hash) {
		c.sendError(msnp.ErrCodeBadHashFormat, cmd.TID)
		return true
	}

	if !msnp.VerifyResponse(c.pendingUser.Credential, c.nonce, hash) {
		c.authFailures++
		c.adapter.metrics.RecordAuthFailure()
		c.log.Info("challenge response rejected",
			"identity", c.pendingIdentity, "failures", c.authFailures)
		c.sendError(msnp.ErrCodeAuthFailed, cmd.TID)
		// The client may burn the full retry budget and still gets one
		// more attempt; only a failure past the budget closes.
		return c.authFailures <= c.adapter.config.AuthRetries
	}

	identity := c.pendingIdentity
	displayName := c.pendingUser.GetDisplayName()

	c.session.SetAuthenticated(identity, displayName, c.dialect)
	if displaced := c.adapter.registry.Admit(identity, c.session); displaced != nil {
		c.adapter.metrics.RecordDisplacement()
	}
	c.admitted = true
	c.adapter.metrics.SessionOnline()

	c.nonce = ""
	c.pendingUser = nil
	c.state = stateAuthenticated
	c.log = c.log.With("identity", identity)
	c.log.Info("session authenticated", "dialect", c.dialect)

	// The OK reply must precede the self-presence line, which clients
	// treat as the login-complete signal.
	if !c.send(fmt.Sprintf("USR %d OK %s %s\r\n", cmd.TID, identity, displayName)) {
		return false
	}
	if !c.send(fmt.Sprintf("NLN NLN %s %s 0\r\n", identity, displayName)) {
		return false
	}

	c.adapter.router.BroadcastPresence(ctx, c.session)
	return true
}

func validAuthScheme(tag string) bool {
	return tag == msnp.AuthScheme || tag == msnp.AuthSchemeLegacy
}

// handleSYN replays the contact list: a header counting FL/AL/BL entries,
// then one LST line per distinct peer carrying the OR of its membership
// flags, peers ascending.
func (c *Connection) handleSYN(ctx context.Context, cmd msnp.Command) bool {
	contacts, err := c.adapter.store.ListContacts(ctx, c.session.Identity())
	if err != nil {
		c.log.Error("contact list read failed", "tid", cmd.TID, "error", err)
		c.sendError(msnp.ErrCodeInternal, cmd.TID)
		return true
	}

	type entry struct {
		bitmask  int
		nickname string
	}
	peers := make(map[string]*entry)
	reverseBits := make(map[string]int)
	total := 0

	for _, contact := range contacts {
		tag := msnp.ListTag(contact.ListTag)
		if tag == msnp.ListReverse {
			reverseBits[contact.Peer] = msnp.ListBitReverse
			continue
		}
		total++
		e := peers[contact.Peer]
		if e == nil {
			e = &entry{}
			peers[contact.Peer] = e
		}
		e.bitmask |= tag.Bit()
		// The forward-list nickname wins; otherwise keep the first one seen.
		if contact.Nickname != "" && (e.nickname == "" || tag == msnp.ListForward) {
			e.nickname = contact.Nickname
		}
	}

	if !c.send(fmt.Sprintf("SYN %d %d 0\r\n", cmd.TID, total)) {
		return false
	}

	ordered := make([]string, 0, len(peers))
	for peer := range peers {
		ordered = append(ordered, peer)
	}
	sort.Strings(ordered)

	for _, peer := range ordered {
		e := peers[peer]
		nickname := e.nickname
		if nickname == "" {
			nickname = peer
		}
		bitmask := e.bitmask | reverseBits[peer]
		if !c.send(fmt.Sprintf("LST %s %s %d 0\r\n", peer, nickname, bitmask)) {
			return false
		}
	}
	return true
}

// handleCHG updates presence. Observable transitions fan out to peers;
// entering hidden emits FLN, leaving hidden emits a fresh presence line.
func (c *Connection) handleCHG(ctx context.Context, cmd msnp.Command) bool {
	if len(cmd.Args) < 1 {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	status := msnp.Status(cmd.Args[0])
	if !status.Settable() {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	clientID := ""
	if len(cmd.Args) > 1 {
		clientID = cmd.Args[1]
	}
	msnObj := ""
	if len(cmd.Args) > 2 {
		msnObj = cmd.Args[2]
	}

	prev := c.session.SetStatus(status, clientID, msnObj)

	if !c.send(fmt.Sprintf("CHG %d %s %s\r\n", cmd.TID, status, c.session.ClientID())) {
		return false
	}

	switch {
	case status == msnp.StatusHidden && prev != msnp.StatusHidden:
		c.adapter.router.BroadcastOffline(ctx, c.session)
	case status != msnp.StatusHidden:
		c.adapter.router.BroadcastPresence(ctx, c.session)
	}
	return true
}

// handleADD adds a peer to one of the client-settable lists. A forward-list
// add also installs the reverse-list edge on the addee and notifies them if
// online.
func (c *Connection) handleADD(ctx context.Context, cmd msnp.Command) bool {
	if len(cmd.Args) < 2 {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	list := msnp.ListTag(cmd.Args[0])
	if !list.ClientSettable() {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	owner := c.session.Identity()
	peer := msnp.NormalizeIdentity(cmd.Args[1])
	if !msnp.ValidIdentity(peer) || peer == owner {
		c.sendError(msnp.ErrCodeInvalidIdentity, cmd.TID)
		return true
	}

	nickname := peer
	if len(cmd.Args) > 2 && cmd.Args[2] != "" {
		nickname = cmd.Args[2]
	}

	if _, err := c.adapter.store.GetUser(ctx, peer); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.sendError(msnp.ErrCodeInvalidIdentity, cmd.TID)
			return true
		}
		c.log.Error("addee lookup failed", "tid", cmd.TID, "peer", peer, "error", err)
		c.sendError(msnp.ErrCodeInternal, cmd.TID)
		return true
	}

	if err := c.adapter.store.AddContact(ctx, owner, peer, nickname, list); err != nil {
		if errors.Is(err, store.ErrDuplicateContact) {
			c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
			return true
		}
		c.log.Error("contact add failed", "tid", cmd.TID, "peer", peer, "error", err)
		c.sendError(msnp.ErrCodeInternal, cmd.TID)
		return true
	}

	version := c.session.NextListVersion()
	if !c.send(fmt.Sprintf("ADD %d %s %d %s %s\r\n", cmd.TID, list, version, peer, nickname)) {
		return false
	}

	if list == msnp.ListForward {
		c.installReverseEdge(ctx, owner, peer)
	}
	return true
}

// installReverseEdge records owner on peer's reverse list and, when the
// addee is online and not hidden, delivers the unsolicited RL notification.
func (c *Connection) installReverseEdge(ctx context.Context, owner, peer string) {
	err := c.adapter.store.AddContact(ctx, peer, owner, c.session.DisplayName(), msnp.ListReverse)
	if err != nil && !errors.Is(err, store.ErrDuplicateContact) {
		c.log.Error("reverse-list add failed", "peer", peer, "error", err)
		return
	}

	addee, ok := c.adapter.registry.Lookup(peer)
	if !ok || addee.Status() == msnp.StatusHidden {
		return
	}
	line := fmt.Sprintf("ADD 0 RL %d %s %s\r\n",
		addee.NextListVersion(), owner, c.session.DisplayName())
	c.adapter.router.Deliver(addee, line)
}

// handleREM removes a peer from one of the client-settable lists;
// symmetric to handleADD for the reverse-list edge.
func (c *Connection) handleREM(ctx context.Context, cmd msnp.Command) bool {
	if len(cmd.Args) < 2 {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	list := msnp.ListTag(cmd.Args[0])
	if !list.ClientSettable() {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	owner := c.session.Identity()
	peer := msnp.NormalizeIdentity(cmd.Args[1])
	if !msnp.ValidIdentity(peer) {
		c.sendError(msnp.ErrCodeInvalidIdentity, cmd.TID)
		return true
	}

	if err := c.adapter.store.RemoveContact(ctx, owner, peer, list); err != nil {
		c.log.Error("contact remove failed", "tid", cmd.TID, "peer", peer, "error", err)
		c.sendError(msnp.ErrCodeInternal, cmd.TID)
		return true
	}

	version := c.session.NextListVersion()
	if !c.send(fmt.Sprintf("REM %d %s %d %s\r\n", cmd.TID, list, version, peer)) {
		return false
	}

	if list == msnp.ListForward {
		c.removeReverseEdge(ctx, owner, peer)
	}
	return true
}

func (c *Connection) removeReverseEdge(ctx context.Context, owner, peer string) {
	if err := c.adapter.store.RemoveContact(ctx, peer, owner, msnp.ListReverse); err != nil {
		c.log.Error("reverse-list remove failed", "peer", peer, "error", err)
		return
	}

	addee, ok := c.adapter.registry.Lookup(peer)
	if !ok || addee.Status() == msnp.StatusHidden {
		return
	}
	line := fmt.Sprintf("REM 0 RL %d %s\r\n", addee.NextListVersion(), owner)
	c.adapter.router.Deliver(addee, line)
}

// handleMSG acknowledges a client message. Without a switchboard there is
// no peer delivery: acked modes get an ACK, no-ack payloads are dropped.
// The payload is persisted to history best-effort.
func (c *Connection) handleMSG(ctx context.Context, cmd msnp.Command) bool {
	if len(cmd.Args) < 2 {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	ack := cmd.Args[0]
	if ack != "U" && ack != "N" && ack != "A" {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	if len(cmd.Payload) > c.adapter.config.MaxMessageLength {
		c.sendError(msnp.ErrCodeInvalidParameter, cmd.TID)
		return true
	}

	// History is best-effort: failures are logged, never surfaced.
	err := c.adapter.store.AppendMessage(ctx, c.session.Identity(), "", string(cmd.Payload), time.Now())
	if err != nil {
		c.log.Warn("message history append failed", "tid", cmd.TID, "error", err)
	}

	if ack == "N" {
		return true
	}
	return c.send(fmt.Sprintf("ACK %d\r\n", cmd.TID))
}

// handlePNG answers the keepalive with the recommended next-ping interval.
// The read that delivered PNG already reset the idle timer.
func (c *Connection) handlePNG() bool {
	return c.send(fmt.Sprintf("QNG %d\r\n", int(c.adapter.config.PingInterval.Seconds())))
}

// handleOUT is the orderly goodbye: echo OUT, drain, close.
func (c *Connection) handleOUT() bool {
	c.send("OUT\r\n")
	c.state = stateClosing
	return false
}
