package notification

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store/memory"
)

func newTestSession(t *testing.T) (*Session, *bufio.Reader) {
	t.Helper()

	server, clientSide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })

	s := NewSession(server, 1)
	t.Cleanup(s.Close)
	return s, bufio.NewReader(clientSide)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestSessionDeliversInOrder(t *testing.T) {
	s, r := newTestSession(t)

	require.NoError(t, s.Send("first\r\n"))
	require.NoError(t, s.Send("second\r\n"))
	require.NoError(t, s.Send("third\r\n"))

	assert.Equal(t, "first\r\n", readLine(t, r))
	assert.Equal(t, "second\r\n", readLine(t, r))
	assert.Equal(t, "third\r\n", readLine(t, r))
}

func TestSessionSendAfterClose(t *testing.T) {
	s, _ := newTestSession(t)

	s.Close()
	err := s.Send("late\r\n")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionCloseWithDeliversFinalLine(t *testing.T) {
	s, r := newTestSession(t)

	s.CloseWith("OUT OTH\r\n")
	assert.Equal(t, "OUT OTH\r\n", readLine(t, r))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit")
	}

	// The connection is closed once the writer drains.
	_, err := r.ReadString('\n')
	assert.Error(t, err)
}

func TestSessionCloseIdempotent(t *testing.T) {
	s, _ := newTestSession(t)

	s.Close()
	s.Close()
	s.CloseWith("ignored\r\n")
}

func TestSessionStatusTransitions(t *testing.T) {
	s, _ := newTestSession(t)

	assert.Equal(t, msnp.StatusOffline, s.Status())

	s.SetAuthenticated("a@x", "Alice", "MSNP8")
	assert.Equal(t, msnp.StatusOnline, s.Status())
	assert.Equal(t, "a@x", s.Identity())
	assert.Equal(t, "Alice", s.DisplayName())
	assert.Equal(t, "MSNP8", s.Dialect())
	assert.Equal(t, "0", s.ClientID())

	prev := s.SetStatus(msnp.StatusBusy, "268435456", "")
	assert.Equal(t, msnp.StatusOnline, prev)
	assert.Equal(t, msnp.StatusBusy, s.Status())
	assert.Equal(t, "268435456", s.ClientID())

	// Empty clientID on a later change keeps the recorded one.
	s.SetStatus(msnp.StatusAway, "", "")
	assert.Equal(t, "268435456", s.ClientID())
}

func TestSessionListVersionMonotonic(t *testing.T) {
	s, _ := newTestSession(t)

	assert.Equal(t, uint32(1), s.NextListVersion())
	assert.Equal(t, uint32(2), s.NextListVersion())
	assert.Equal(t, uint32(3), s.NextListVersion())
}

func TestRegistryAdmitAndLookup(t *testing.T) {
	r := NewRegistry()
	s, _ := newTestSession(t)
	s.SetAuthenticated("a@x", "a@x", "MSNP8")

	assert.Nil(t, r.Admit("a@x", s))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup("a@x")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.Lookup("b@x")
	assert.False(t, ok)
}

func TestRegistryDisplacement(t *testing.T) {
	r := NewRegistry()
	first, firstReader := newTestSession(t)
	first.SetAuthenticated("a@x", "a@x", "MSNP8")
	second, _ := newTestSession(t)
	second.SetAuthenticated("a@x", "a@x", "MSNP8")

	require.Nil(t, r.Admit("a@x", first))
	displaced := r.Admit("a@x", second)
	require.Same(t, first, displaced)

	assert.Equal(t, "OUT OTH\r\n", readLine(t, firstReader))
	got, ok := r.Lookup("a@x")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())

	// The displaced session's removal is a no-op: it is no longer current.
	assert.False(t, r.Remove(first))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove(second))
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Remove(second))
}

func TestRouterEvictsStalledSession(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg, memory.New(), nil)

	// The peer never reads, so the writer blocks on its first line and the
	// queue fills behind it.
	s, _ := newTestSession(t)
	s.SetAuthenticated("a@x", "a@x", "MSNP8")
	require.Nil(t, reg.Admit("a@x", s))

	require.NoError(t, s.Send("first\r\n"))
	for i := 0; i < outboundQueueSize; i++ {
		require.NoError(t, s.Send("filler\r\n"))
	}

	// The enqueue times out, the session is marked stalled and evicted.
	assert.False(t, router.Deliver(s, "one more\r\n"))
	assert.True(t, s.Stalled())
	_, ok := reg.Lookup("a@x")
	assert.False(t, ok)

	// A stalled target is skipped outright, not waited on again.
	start := time.Now()
	assert.False(t, router.Deliver(s, "again\r\n"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRegistryRemoveUnauthenticated(t *testing.T) {
	r := NewRegistry()
	s, _ := newTestSession(t)

	assert.False(t, r.Remove(s))
}

func TestRegistryEpochsIncrease(t *testing.T) {
	r := NewRegistry()
	first := r.NextEpoch()
	second := r.NextEpoch()
	assert.Greater(t, second, first)
}

func TestRegistryPresences(t *testing.T) {
	r := NewRegistry()
	s, _ := newTestSession(t)
	s.SetAuthenticated("a@x", "Alice", "MSNP8")
	r.Admit("a@x", s)

	entries := r.Presences()
	require.Len(t, entries, 1)
	assert.Equal(t, "a@x", entries[0].Identity)
	assert.Equal(t, msnp.StatusOnline, entries[0].Status)
	assert.Equal(t, "Alice", entries[0].DisplayName)
}
