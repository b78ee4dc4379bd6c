package notification

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store/memory"
	"github.com/retroproto/msnpd/pkg/store/models"
)

const testNonce = "4f2f5a91bc0d4499a0d4ab0acd5dca4e"

func newTestAdapter(t *testing.T, cfg Config) (*Adapter, *memory.Store) {
	t.Helper()

	st := memory.New()
	a := New(cfg, st, nil)
	a.newNonce = func() string { return testNonce }
	return a, st
}

func addUser(t *testing.T, st *memory.Store, identity, credential string) {
	t.Helper()
	require.NoError(t, st.CreateUser(context.Background(), &models.User{
		Identity:   identity,
		Credential: credential,
	}))
}

// client is one side of an in-process connection with a served Connection
// on the other end.
type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, a *Adapter) *client {
	t.Helper()

	server, clientSide := net.Pipe()
	c := newConnection(a, server)
	go c.Serve(context.Background())

	t.Cleanup(func() { _ = clientSide.Close() })
	return &client{t: t, conn: clientSide, r: bufio.NewReader(clientSide)}
}

func (c *client) sendf(format string, args ...any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := fmt.Fprintf(c.conn, format, args...)
	require.NoError(c.t, err)
}

func (c *client) expect(want string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	assert.Equal(c.t, want, line)
}

func (c *client) expectEOF() {
	c.t.Helper()
	// The server may hard-close the pipe before the deadline is set, in
	// which case SetReadDeadline returns io.ErrClosedPipe; that is still
	// the EOF we are waiting for, so only unexpected errors fail here.
	if err := c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		require.ErrorIs(c.t, err, io.ErrClosedPipe)
		return
	}
	_, err := c.r.ReadString('\n')
	require.Error(c.t, err)
}

func (c *client) expectSilence(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	_, err := c.r.ReadByte()
	require.Error(c.t, err)
	netErr, ok := err.(net.Error)
	require.True(c.t, ok, "expected a timeout, got %v", err)
	assert.True(c.t, netErr.Timeout())
}

// login drives the full handshake for an existing user.
func (c *client) login(identity, credential string) {
	c.t.Helper()

	c.sendf("VER 1 MSNP8 CVR0\r\n")
	c.expect("VER 1 MSNP8\r\n")
	c.sendf("CVR 2 0x0409 winnt 5.1 i386 MSNMSGR 8.1.0178 MSMSGS %s\r\n", identity)
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.r.ReadString('\n') // CVR advisory, contents not under test here
	require.NoError(c.t, err)

	c.sendf("USR 3 AUTH I %s\r\n", identity)
	c.expect(fmt.Sprintf("USR 3 AUTH S %s\r\n", testNonce))
	c.sendf("USR 4 AUTH S %s %s\r\n", identity, msnp.ChallengeResponse(credential, testNonce))
	c.expect(fmt.Sprintf("USR 4 OK %s %s\r\n", identity, identity))
	c.expect(fmt.Sprintf("NLN NLN %s %s 0\r\n", identity, identity))
}

func TestVersionDowngrade(t *testing.T) {
	a, _ := newTestAdapter(t, Config{SupportedVersions: []string{"MSNP8"}})
	c := dial(t, a)

	c.sendf("VER 1 MSNP21 MSNP8\r\n")
	c.expect("VER 1 MSNP8\r\n")
}

func TestVersionNoOverlap(t *testing.T) {
	a, _ := newTestAdapter(t, Config{})
	c := dial(t, a)

	c.sendf("VER 1 MSNP99\r\n")
	c.expect("VER 1 0\r\n")
	c.expectEOF()
}

func TestCVRAdvisory(t *testing.T) {
	a, _ := newTestAdapter(t, Config{CVR: CVRInfo{
		RecommendedVersion: "8.1.0178",
		DownloadURL:        "http://example.com/dl",
		InfoURL:            "http://example.com",
	}})
	c := dial(t, a)

	c.sendf("VER 1 MSNP8\r\n")
	c.expect("VER 1 MSNP8\r\n")
	c.sendf("CVR 2 0x0409 winnt 5.1 i386 MSNMSGR 8.1.0178 MSMSGS a@x\r\n")
	c.expect("CVR 2 8.1.0178 8.1.0178 8.1.0178 http://example.com/dl http://example.com\r\n")
}

func TestAuthHappyPath(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	c := dial(t, a)

	c.sendf("VER 1 MSNP8\r\n")
	c.expect("VER 1 MSNP8\r\n")
	c.sendf("CVR 2 0x0409 winnt 5.1 i386 MSNMSGR 8.1.0178 MSMSGS a@x\r\n")
	_, err := c.r.ReadString('\n')
	require.NoError(t, err)

	c.sendf("USR 3 AUTH I a@x\r\n")
	c.expect("USR 3 AUTH S " + testNonce + "\r\n")

	hash := msnp.ChallengeResponse("p", testNonce)
	c.sendf("USR 4 AUTH S a@x %s\r\n", hash)
	c.expect("USR 4 OK a@x a@x\r\n")
	c.expect("NLN NLN a@x a@x 0\r\n")
}

func TestAuthUnknownIdentity(t *testing.T) {
	a, _ := newTestAdapter(t, Config{})
	c := dial(t, a)

	c.sendf("VER 1 MSNP8\r\n")
	c.expect("VER 1 MSNP8\r\n")
	c.sendf("CVR 2 a b c d e f g nobody@x\r\n")
	_, err := c.r.ReadString('\n')
	require.NoError(t, err)

	c.sendf("USR 3 AUTH I nobody@x\r\n")
	c.expect("911 3\r\n")
}

func TestAuthRetriesExhausted(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	c := dial(t, a)

	c.sendf("VER 1 MSNP8\r\n")
	c.expect("VER 1 MSNP8\r\n")
	c.sendf("CVR 2 a b c d e f g a@x\r\n")
	_, err := c.r.ReadString('\n')
	require.NoError(t, err)

	c.sendf("USR 3 AUTH I a@x\r\n")
	c.expect("USR 3 AUTH S " + testNonce + "\r\n")

	// Three failures are tolerated; the fourth closes the connection.
	wrong := msnp.ChallengeResponse("wrong", testNonce)
	c.sendf("USR 4 AUTH S a@x %s\r\n", wrong)
	c.expect("911 4\r\n")
	c.sendf("USR 5 AUTH S a@x %s\r\n", wrong)
	c.expect("911 5\r\n")
	c.sendf("USR 6 AUTH S a@x %s\r\n", wrong)
	c.expect("911 6\r\n")
	c.sendf("USR 7 AUTH S a@x %s\r\n", wrong)
	c.expect("911 7\r\n")
	c.expectEOF()
}

func TestAuthSucceedsOnFinalAttempt(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	c := dial(t, a)

	c.sendf("VER 1 MSNP8\r\n")
	c.expect("VER 1 MSNP8\r\n")
	c.sendf("CVR 2 a b c d e f g a@x\r\n")
	_, err := c.r.ReadString('\n')
	require.NoError(t, err)

	c.sendf("USR 3 AUTH I a@x\r\n")
	c.expect("USR 3 AUTH S " + testNonce + "\r\n")

	wrong := msnp.ChallengeResponse("wrong", testNonce)
	c.sendf("USR 4 AUTH S a@x %s\r\n", wrong)
	c.expect("911 4\r\n")
	c.sendf("USR 5 AUTH S a@x %s\r\n", wrong)
	c.expect("911 5\r\n")
	c.sendf("USR 6 AUTH S a@x %s\r\n", wrong)
	c.expect("911 6\r\n")

	// A correct response after burning the whole retry budget still logs in.
	c.sendf("USR 7 AUTH S a@x %s\r\n", msnp.ChallengeResponse("p", testNonce))
	c.expect("USR 7 OK a@x a@x\r\n")
	c.expect("NLN NLN a@x a@x 0\r\n")
}

func TestAuthBadHashFormat(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	c := dial(t, a)

	c.sendf("VER 1 MSNP8\r\n")
	c.expect("VER 1 MSNP8\r\n")
	c.sendf("CVR 2 a b c d e f g a@x\r\n")
	_, err := c.r.ReadString('\n')
	require.NoError(t, err)

	c.sendf("USR 3 AUTH I a@x\r\n")
	c.expect("USR 3 AUTH S " + testNonce + "\r\n")
	c.sendf("USR 4 AUTH S a@x nothex\r\n")
	c.expect("928 4\r\n")
}

func TestDisplacement(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")

	first := dial(t, a)
	first.login("a@x", "p")

	second := dial(t, a)
	second.login("a@x", "p")

	first.expect("OUT OTH\r\n")
	first.expectEOF()

	require.Equal(t, 1, a.Registry().Len())
}

func TestSYNOrdering(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	ctx := context.Background()
	require.NoError(t, st.AddContact(ctx, "a@x", "b@x", "b@x", msnp.ListForward))
	require.NoError(t, st.AddContact(ctx, "a@x", "b@x", "b@x", msnp.ListAllow))
	require.NoError(t, st.AddContact(ctx, "a@x", "c@x", "c@x", msnp.ListForward))

	c := dial(t, a)
	c.login("a@x", "p")

	c.sendf("SYN 9 0 0\r\n")
	c.expect("SYN 9 3 0\r\n")
	c.expect("LST b@x b@x 3 0\r\n")
	c.expect("LST c@x c@x 1 0\r\n")
}

func TestPresenceFanout(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	addUser(t, st, "b@x", "p")
	addUser(t, st, "c@x", "p")
	ctx := context.Background()

	// b@x watches a@x; a@x allows b@x.
	require.NoError(t, st.AddContact(ctx, "b@x", "a@x", "a@x", msnp.ListForward))
	require.NoError(t, st.AddContact(ctx, "a@x", "b@x", "b@x", msnp.ListAllow))
	require.NoError(t, st.AddContact(ctx, "a@x", "b@x", "b@x", msnp.ListReverse))

	b := dial(t, a)
	b.login("b@x", "p")
	third := dial(t, a)
	third.login("c@x", "p")
	alice := dial(t, a)
	alice.login("a@x", "p")

	// Login fan-out: b sees a come online.
	b.expect("NLN NLN a@x a@x 0\r\n")

	alice.sendf("CHG 7 BSY 0\r\n")
	alice.expect("CHG 7 BSY 0\r\n")

	b.expect("BSY NLN a@x a@x 0\r\n")
	third.expectSilence(200 * time.Millisecond)
}

func TestHiddenSuppressesFanout(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	addUser(t, st, "b@x", "p")
	ctx := context.Background()
	require.NoError(t, st.AddContact(ctx, "b@x", "a@x", "a@x", msnp.ListForward))
	require.NoError(t, st.AddContact(ctx, "a@x", "b@x", "b@x", msnp.ListReverse))

	b := dial(t, a)
	b.login("b@x", "p")
	alice := dial(t, a)
	alice.login("a@x", "p")
	b.expect("NLN NLN a@x a@x 0\r\n")

	// Going hidden looks like signing off to peers.
	alice.sendf("CHG 2 HDN 0\r\n")
	alice.expect("CHG 2 HDN 0\r\n")
	b.expect("FLN a@x\r\n")

	// Status churn while hidden is invisible.
	alice.sendf("CHG 3 HDN 0\r\n")
	alice.expect("CHG 3 HDN 0\r\n")
	b.expectSilence(200 * time.Millisecond)

	// Leaving hidden announces the new state.
	alice.sendf("CHG 4 AWY 0\r\n")
	alice.expect("CHG 4 AWY 0\r\n")
	b.expect("AWY NLN a@x a@x 0\r\n")
}

func TestBlockListSuppressesFanout(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	addUser(t, st, "b@x", "p")
	ctx := context.Background()
	require.NoError(t, st.AddContact(ctx, "b@x", "a@x", "a@x", msnp.ListForward))
	require.NoError(t, st.AddContact(ctx, "a@x", "b@x", "b@x", msnp.ListReverse))
	require.NoError(t, st.AddContact(ctx, "a@x", "b@x", "b@x", msnp.ListBlock))

	b := dial(t, a)
	b.login("b@x", "p")
	alice := dial(t, a)
	alice.login("a@x", "p")

	b.expectSilence(200 * time.Millisecond)
}

func TestAddForwardNotifiesAddee(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	addUser(t, st, "b@x", "p")

	b := dial(t, a)
	b.login("b@x", "p")
	alice := dial(t, a)
	alice.login("a@x", "p")

	alice.sendf("ADD 5 FL b@x Bob\r\n")
	alice.expect("ADD 5 FL 1 b@x Bob\r\n")
	b.expect("ADD 0 RL 1 a@x a@x\r\n")

	// The reverse edge is persisted on the addee's roster.
	contacts, err := st.ListContacts(context.Background(), "b@x")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, string(msnp.ListReverse), contacts[0].ListTag)

	alice.sendf("REM 6 FL b@x\r\n")
	alice.expect("REM 6 FL 2 b@x\r\n")
	b.expect("REM 0 RL 2 a@x\r\n")

	contacts, err = st.ListContacts(context.Background(), "b@x")
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestAddUnknownPeer(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")

	c := dial(t, a)
	c.login("a@x", "p")

	c.sendf("ADD 5 FL ghost@x ghost\r\n")
	c.expect("205 5\r\n")
}

func TestAddReverseListRejected(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")

	c := dial(t, a)
	c.login("a@x", "p")

	c.sendf("ADD 5 RL a@y nick\r\n")
	c.expect("201 5\r\n")
}

func TestMsgAckModes(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")

	c := dial(t, a)
	c.login("a@x", "p")

	body := "MIME-Version: 1.0\r\n\r\nhello"
	c.sendf("MSG 5 A %d\r\n%s", len(body), body)
	c.expect("ACK 5\r\n")

	c.sendf("MSG 6 N %d\r\n%s", len(body), body)
	c.expectSilence(200 * time.Millisecond)

	assert.Len(t, st.Messages(), 2)
}

func TestMsgTooLarge(t *testing.T) {
	a, st := newTestAdapter(t, Config{MaxMessageLength: 8})
	addUser(t, st, "a@x", "p")

	c := dial(t, a)
	c.login("a@x", "p")

	body := "way past the configured cap"
	c.sendf("MSG 5 A %d\r\n%s", len(body), body)
	c.expect("201 5\r\n")
}

func TestPing(t *testing.T) {
	a, _ := newTestAdapter(t, Config{})
	c := dial(t, a)

	c.sendf("VER 1 MSNP8\r\n")
	c.expect("VER 1 MSNP8\r\n")
	c.sendf("PNG\r\n")
	c.expect("QNG 60\r\n")
}

func TestOutAlwaysHonored(t *testing.T) {
	a, _ := newTestAdapter(t, Config{})
	c := dial(t, a)

	c.sendf("OUT\r\n")
	c.expect("OUT\r\n")
	c.expectEOF()
}

func TestCommandBeforeAuthRejected(t *testing.T) {
	a, _ := newTestAdapter(t, Config{})
	c := dial(t, a)

	c.sendf("CHG 1 NLN 0\r\n")
	c.expect("715 1\r\n")
}

func TestSwitchboardStubs(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")

	c := dial(t, a)
	c.login("a@x", "p")

	c.sendf("XFR 5 SB\r\n")
	c.expect("913 5\r\n")
	c.sendf("CAL 6 b@x\r\n")
	c.expect("913 6\r\n")
}

func TestShutdownBroadcastsToAllSessions(t *testing.T) {
	a, st := newTestAdapter(t, Config{})
	addUser(t, st, "a@x", "p")
	addUser(t, st, "b@x", "p")

	alice := dial(t, a)
	alice.login("a@x", "p")
	bob := dial(t, a)
	bob.login("b@x", "p")

	stopErr := make(chan error, 1)
	go func() { stopErr <- a.Stop(context.Background()) }()

	alice.expect("OUT SSD\r\n")
	bob.expect("OUT SSD\r\n")
	alice.expectEOF()
	bob.expectEOF()

	require.NoError(t, <-stopErr)
	assert.Eventually(t, func() bool { return a.Registry().Len() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestOversizedTransactionID(t *testing.T) {
	a, _ := newTestAdapter(t, Config{})
	c := dial(t, a)

	c.sendf("VER 4294967296 MSNP8\r\n")
	c.expect("201 0\r\n")
	c.expectEOF()
}
