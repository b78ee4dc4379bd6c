package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/retroproto/msnpd/internal/logger"
	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/metrics"
	"github.com/retroproto/msnpd/pkg/store"
)

// Router delivers presence transitions and reverse-list notifications to
// interested peer sessions.
//
// A peer P is interested in user U's presence iff P has U on P's forward
// list (equivalently, P is on U's reverse list) and U's block list does not
// contain P and (U's allow list contains P, or U has no allow entries at
// all, treated as allow-all).
//
// Fan-out is best-effort: a stalled or closed target is dropped from the
// registry and delivery proceeds to the remaining peers. Lines delivered to
// any single peer are strictly FIFO; no cross-peer ordering is promised.
type Router struct {
	registry *Registry
	store    store.Store
	metrics  *metrics.NotificationMetrics
}

// NewRouter creates a router over the given registry and store.
func NewRouter(registry *Registry, st store.Store, m *metrics.NotificationMetrics) *Router {
	return &Router{registry: registry, store: st, metrics: m}
}

// presenceLine renders an online-presence notification about a user.
// The trailing display-picture reference is appended only when present.
func presenceLine(status msnp.Status, identity, displayName, clientID, msnObj string) string {
	if msnObj != "" {
		return fmt.Sprintf("%s NLN %s %s %s %s\r\n", status, identity, displayName, clientID, msnObj)
	}
	return fmt.Sprintf("%s NLN %s %s %s\r\n", status, identity, displayName, clientID)
}

// offlineLine renders the offline notification about a user.
func offlineLine(identity string) string {
	return fmt.Sprintf("FLN %s\r\n", identity)
}

// BroadcastPresence fans out the session's current presence to every
// interested online peer. Called after login, on visible CHG transitions
// and when leaving hidden state.
func (r *Router) BroadcastPresence(ctx context.Context, sess *Session) {
	status := sess.Status()
	if !status.Visible() {
		return
	}
	line := presenceLine(status, sess.Identity(), sess.DisplayName(), sess.ClientID(), sess.MSNObj())
	r.broadcast(ctx, sess, line)
}

// BroadcastOffline fans out an FLN line for the session's identity. Called
// on disconnect and when entering hidden state.
func (r *Router) BroadcastOffline(ctx context.Context, sess *Session) {
	r.broadcast(ctx, sess, offlineLine(sess.Identity()))
}

func (r *Router) broadcast(ctx context.Context, sess *Session, line string) {
	identity := sess.Identity()

	peers, err := r.subscribers(ctx, identity)
	if err != nil {
		logger.Warn("presence fan-out aborted: contact lookup failed",
			"identity", identity, "error", err)
		return
	}

	delivered := 0
	for _, peer := range peers {
		target, ok := r.registry.Lookup(peer)
		if !ok || target == sess {
			continue
		}
		if r.Deliver(target, line) {
			delivered++
		}
	}

	if delivered > 0 {
		r.metrics.RecordFanout(delivered)
		logger.Debug("presence fan-out", "identity", identity, "peers", delivered)
	}
}

// subscribers resolves the peers interested in identity's presence: the
// reverse list filtered by the allow/block decision. One contact-list read
// yields all four lists.
func (r *Router) subscribers(ctx context.Context, identity string) ([]string, error) {
	contacts, err := r.store.ListContacts(ctx, identity)
	if err != nil {
		return nil, err
	}

	reverse := make([]string, 0, len(contacts))
	allow := make(map[string]bool)
	block := make(map[string]bool)

	for _, c := range contacts {
		switch msnp.ListTag(c.ListTag) {
		case msnp.ListReverse:
			reverse = append(reverse, c.Peer)
		case msnp.ListAllow:
			allow[c.Peer] = true
		case msnp.ListBlock:
			block[c.Peer] = true
		}
	}

	// An empty allow list is treated as allow-all; otherwise the decision
	// is deny-unless-allowed, with the block list always winning.
	allowAll := len(allow) == 0

	peers := reverse[:0]
	for _, p := range reverse {
		if block[p] {
			continue
		}
		if !allowAll && !allow[p] {
			continue
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// Deliver enqueues one line to a target session, dropping the target from
// the registry if its queue has stalled or its writer is gone. A target
// already marked stalled is skipped outright so one slow peer cannot cost
// every subsequent sender the full enqueue timeout.
func (r *Router) Deliver(target *Session, line string) bool {
	if target.Stalled() {
		return false
	}

	r.metrics.ObserveQueueDepth(target.QueueDepth())

	err := target.Send(line)
	if err == nil {
		return true
	}

	if errors.Is(err, ErrSessionStalled) {
		logger.Warn("dropping stalled session",
			"identity", target.Identity(), "address", target.RemoteAddr())
		r.registry.Remove(target)
		target.Close()
		r.metrics.RecordStalledSession()
	}
	return false
}
