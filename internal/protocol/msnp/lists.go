package msnp

// ListTag identifies one of the server-held contact lists.
type ListTag string

const (
	ListForward ListTag = "FL" // peers the owner subscribes to
	ListAllow   ListTag = "AL" // peers permitted to see the owner
	ListBlock   ListTag = "BL" // peers forbidden to see the owner
	ListReverse ListTag = "RL" // peers who have the owner on their FL; server-maintained
)

// List membership flags, OR-ed into the bitmask emitted on LST lines.
const (
	ListBitForward = 1
	ListBitAllow   = 2
	ListBitBlock   = 4
	ListBitReverse = 8
)

// Bit returns the membership flag for the tag, or 0 for an unknown tag.
func (t ListTag) Bit() int {
	switch t {
	case ListForward:
		return ListBitForward
	case ListAllow:
		return ListBitAllow
	case ListBlock:
		return ListBitBlock
	case ListReverse:
		return ListBitReverse
	}
	return 0
}

// ClientSettable reports whether a client may ADD/REM entries on this list.
// The reverse list is server-maintained and read-only to clients.
func (t ListTag) ClientSettable() bool {
	return t == ListForward || t == ListAllow || t == ListBlock
}
