package models

import "time"

// Contact is one membership entry on an owner's contact list.
//
// ListTag is FL, AL, BL or RL; (owner, peer, list) is unique. RL entries
// are server-maintained mirrors of peers' FL entries and are never written
// by client command directly.
type Contact struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Owner    string    `gorm:"index;not null;size:255;uniqueIndex:idx_owner_peer_list" json:"owner"`
	Peer     string    `gorm:"not null;size:255;uniqueIndex:idx_owner_peer_list" json:"peer"`
	Nickname string    `gorm:"size:255" json:"nickname,omitempty"`
	ListTag  string    `gorm:"not null;size:2;uniqueIndex:idx_owner_peer_list" json:"list_tag"`
	AddedAt  time.Time `gorm:"autoCreateTime" json:"added_at"`
}

// TableName returns the table name for Contact.
func (Contact) TableName() string {
	return "contacts"
}
