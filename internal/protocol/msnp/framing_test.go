package msnp

import (
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerRoundTrip(t *testing.T) {
	// Byte stream framing must be independent of packet boundaries; feed the
	// canonical two-command stream through a one-byte-at-a-time reader.
	input := "VER 1 MSNP8\r\nOUT\r\n"
	f := NewFramer(iotest{r: strings.NewReader(input)})

	cmd, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, "VER", cmd.Verb)
	assert.Equal(t, uint32(1), cmd.TID)
	assert.Equal(t, []string{"MSNP8"}, cmd.Args)

	cmd, err = f.Next()
	require.NoError(t, err)
	assert.Equal(t, "OUT", cmd.Verb)

	_, err = f.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// iotest yields one byte per Read to exercise arbitrary packet boundaries.
type iotest struct{ r io.Reader }

func (s iotest) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return s.r.Read(p)
}

func TestFramerPayload(t *testing.T) {
	body := "MIME-Version: 1.0\r\n\r\nhi"
	input := "MSG 6 U " + strconv.Itoa(len(body)) + "\r\n" + body + "CHG 7 NLN 0\r\n"
	f := NewFramer(strings.NewReader(input))

	cmd, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, "MSG", cmd.Verb)
	assert.Equal(t, []byte(body), cmd.Payload)

	// Payload CRLFs must not desynchronize the line framing.
	cmd, err = f.Next()
	require.NoError(t, err)
	assert.Equal(t, "CHG", cmd.Verb)
	assert.Nil(t, cmd.Payload)
}

func TestFramerTruncatedPayload(t *testing.T) {
	f := NewFramer(strings.NewReader("MSG 6 U 50\r\nshort"))
	_, err := f.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFramerLineTooLong(t *testing.T) {
	line := "MSG 1 U " + strings.Repeat("a", MaxLineLength) + "\r\n"
	f := NewFramer(strings.NewReader(line))
	_, err := f.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestFramerPayloadTooLarge(t *testing.T) {
	f := NewFramer(strings.NewReader("MSG 1 U 70000\r\n"))
	_, err := f.Next()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestFramerErrorIsSticky(t *testing.T) {
	f := NewFramer(strings.NewReader("bogus line\r\nVER 1 MSNP8\r\n"))
	_, err := f.Next()
	require.Error(t, err)

	_, again := f.Next()
	assert.Equal(t, err, again)
}
