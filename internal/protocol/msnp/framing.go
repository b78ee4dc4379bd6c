package msnp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxLineLength is the cap on a single command line including CRLF.
	// Exceeding it is a fatal framing error.
	MaxLineLength = 4 * 1024

	// MaxPayloadLength is the cap on a declared payload body.
	MaxPayloadLength = 64 * 1024
)

var (
	// ErrLineTooLong indicates a command line exceeded MaxLineLength.
	ErrLineTooLong = errors.New("msnp: command line exceeds 4 KiB")

	// ErrPayloadTooLarge indicates a declared payload exceeded MaxPayloadLength.
	ErrPayloadTooLarge = errors.New("msnp: payload exceeds 64 KiB")
)

// Framer reads line-framed commands and their payload bodies from a byte
// stream. It yields one Command per call to Next until EOF or a framing
// error; a Framer is not restartable after an error.
//
// Payload bytes are opaque and may contain CRLF; when a command declares a
// byte count, exactly that many bytes are consumed before the next line is
// parsed.
type Framer struct {
	r   *bufio.Reader
	err error
}

// NewFramer wraps r in a Framer. The internal buffer is sized to the line
// cap so an overlong line surfaces as bufio.ErrBufferFull rather than
// unbounded memory growth.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReaderSize(r, MaxLineLength)}
}

// Next reads the next command from the stream. It returns io.EOF at a clean
// end of stream. Any error is sticky: subsequent calls return it again.
func (f *Framer) Next() (Command, error) {
	if f.err != nil {
		return Command{}, f.err
	}

	cmd, err := f.next()
	if err != nil {
		f.err = err
	}
	return cmd, err
}

func (f *Framer) next() (Command, error) {
	line, err := f.readLine()
	if err != nil {
		return Command{}, err
	}

	cmd, err := ParseLine(line)
	if err != nil {
		return Command{}, err
	}

	n, ok := cmd.PayloadLength()
	if !ok {
		return cmd, nil
	}
	if n > MaxPayloadLength {
		return Command{}, fmt.Errorf("%w: %d bytes declared", ErrPayloadTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(f.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Command{}, io.ErrUnexpectedEOF
		}
		return Command{}, fmt.Errorf("read payload: %w", err)
	}
	cmd.Payload = body
	return cmd, nil
}

// readLine reads one CRLF-terminated line and returns it without the
// terminator. A bare LF is tolerated for lenient clients.
func (f *Framer) readLine() (string, error) {
	raw, err := f.r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", ErrLineTooLong
		}
		if errors.Is(err, io.EOF) && len(raw) > 0 {
			// Stream ended mid-line.
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}

	line := string(raw)
	line = trimLineEnding(line)
	return line, nil
}

func trimLineEnding(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
