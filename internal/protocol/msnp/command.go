// Package msnp implements the MSNP notification-server wire protocol:
// line framing, command records, dialect negotiation, presence states and
// the numeric error taxonomy shared by the notification adapter.
//
// Commands are ASCII lines terminated by CRLF and tokenized on single
// spaces. The first token is a three-letter uppercase verb; the second,
// when present, is a client-assigned decimal transaction id echoed in the
// matching reply. Some commands carry a trailing byte count followed by an
// opaque payload body of exactly that many bytes.
package msnp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxTransactionID is the largest accepted transaction id. The wire format
// is unbounded decimal; anything above 2^32-1 is rejected with code 201.
const MaxTransactionID = 1<<32 - 1

var (
	// ErrBadTransactionID indicates a malformed or out-of-range transaction id.
	ErrBadTransactionID = errors.New("msnp: bad transaction id")

	// ErrBadVerb indicates the first token is not a three-letter uppercase verb.
	ErrBadVerb = errors.New("msnp: bad verb")

	// ErrEmptyLine indicates a command line with no tokens.
	ErrEmptyLine = errors.New("msnp: empty command line")
)

// Command is a single parsed client command.
//
// Args holds the tokens following the transaction id (or following the verb
// for commands that carry none). Payload is nil unless the command declared
// a trailing byte count, in which case it holds exactly that many bytes.
type Command struct {
	Verb    string
	TID     uint32
	HasTID  bool
	Args    []string
	Payload []byte
}

// verbsWithoutTID lists verbs that carry no transaction id on the wire.
var verbsWithoutTID = map[string]bool{
	"OUT": true,
	"PNG": true,
	"QNG": true,
}

// ParseLine parses one command line (CRLF already stripped) into a Command.
//
// The transaction id, when present, must be decimal and fit in 32 bits;
// larger values fail with ErrBadTransactionID so the session can answer 201.
func ParseLine(line string) (Command, error) {
	if line == "" {
		return Command{}, ErrEmptyLine
	}

	tokens := strings.Split(line, " ")
	verb := tokens[0]
	if !validVerb(verb) {
		return Command{}, fmt.Errorf("%w: %q", ErrBadVerb, verb)
	}

	cmd := Command{Verb: verb}

	if verbsWithoutTID[verb] {
		cmd.Args = tokens[1:]
		return cmd, nil
	}

	if len(tokens) < 2 {
		return Command{}, fmt.Errorf("%w: missing id for %s", ErrBadTransactionID, verb)
	}

	tid, err := strconv.ParseUint(tokens[1], 10, 64)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %q", ErrBadTransactionID, tokens[1])
	}
	if tid > MaxTransactionID {
		return Command{}, fmt.Errorf("%w: %d exceeds 2^32-1", ErrBadTransactionID, tid)
	}

	cmd.TID = uint32(tid)
	cmd.HasTID = true
	cmd.Args = tokens[2:]
	return cmd, nil
}

// validVerb reports whether v is a three-letter uppercase ASCII verb.
func validVerb(v string) bool {
	if len(v) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if v[i] < 'A' || v[i] > 'Z' {
			return false
		}
	}
	return true
}

// PayloadLength returns the declared payload byte count for commands that
// carry a body, or ok=false for commands that do not.
//
// MSG is the only client command with a body in this server:
//
//	MSG <tid> <ack> <length>
func (c Command) PayloadLength() (int, bool) {
	if c.Verb != "MSG" || len(c.Args) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(c.Args[len(c.Args)-1])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
