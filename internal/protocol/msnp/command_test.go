package msnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr error
	}{
		{
			name: "verb with tid and args",
			line: "USR 3 AUTH I a@x",
			want: Command{Verb: "USR", TID: 3, HasTID: true, Args: []string{"AUTH", "I", "a@x"}},
		},
		{
			name: "verb with tid only",
			line: "SYN 9 0 0",
			want: Command{Verb: "SYN", TID: 9, HasTID: true, Args: []string{"0", "0"}},
		},
		{
			name: "OUT carries no tid",
			line: "OUT",
			want: Command{Verb: "OUT", Args: []string{}},
		},
		{
			name: "PNG carries no tid",
			line: "PNG",
			want: Command{Verb: "PNG", Args: []string{}},
		},
		{
			name: "max 32-bit tid accepted",
			line: "CHG 4294967295 NLN 0",
			want: Command{Verb: "CHG", TID: 4294967295, HasTID: true, Args: []string{"NLN", "0"}},
		},
		{
			name:    "tid above 2^32 rejected",
			line:    "CHG 4294967296 NLN 0",
			wantErr: ErrBadTransactionID,
		},
		{
			name:    "non-decimal tid rejected",
			line:    "CHG abc NLN 0",
			wantErr: ErrBadTransactionID,
		},
		{
			name:    "lowercase verb rejected",
			line:    "ver 1 MSNP8",
			wantErr: ErrBadVerb,
		},
		{
			name:    "two-letter verb rejected",
			line:    "VE 1",
			wantErr: ErrBadVerb,
		},
		{
			name:    "empty line rejected",
			line:    "",
			wantErr: ErrEmptyLine,
		},
		{
			name:    "missing tid rejected",
			line:    "VER",
			wantErr: ErrBadTransactionID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandPayloadLength(t *testing.T) {
	cmd, err := ParseLine("MSG 6 U 52")
	require.NoError(t, err)
	n, ok := cmd.PayloadLength()
	assert.True(t, ok)
	assert.Equal(t, 52, n)

	cmd, err = ParseLine("CHG 7 BSY 0")
	require.NoError(t, err)
	_, ok = cmd.PayloadLength()
	assert.False(t, ok)

	// Negative or non-numeric lengths are not payload declarations.
	cmd, err = ParseLine("MSG 6 U x")
	require.NoError(t, err)
	_, ok = cmd.PayloadLength()
	assert.False(t, ok)
}
