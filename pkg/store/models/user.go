package models

import "time"

// User is an account record for the messenger service.
//
// Identity is the email-shaped account name, stored normalized (lowercase)
// and unique. The credential is the password verifier consumed by the
// MD5 challenge/response handshake; the dialects this server speaks predate
// modern password hashing, so the verifier is held as configured and never
// sent on the wire.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Identity    string    `gorm:"uniqueIndex;not null;size:255" json:"identity"`
	Credential  string    `gorm:"not null" json:"-"`
	DisplayName string    `gorm:"size:255" json:"display_name,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// GetDisplayName returns the display name, or the identity if unset.
func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Identity
}
