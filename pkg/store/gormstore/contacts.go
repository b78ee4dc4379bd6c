package gormstore

import (
	"context"
	"fmt"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store"
	"github.com/retroproto/msnpd/pkg/store/models"
)

// ListContacts returns every contact entry owned by the identity.
func (s *GORMStore) ListContacts(ctx context.Context, owner string) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.db.WithContext(ctx).
		Where("owner = ?", msnp.NormalizeIdentity(owner)).
		Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// AddContact inserts (owner, peer, list).
func (s *GORMStore) AddContact(ctx context.Context, owner, peer, nickname string, list msnp.ListTag) error {
	contact := models.Contact{
		Owner:    msnp.NormalizeIdentity(owner),
		Peer:     msnp.NormalizeIdentity(peer),
		Nickname: nickname,
		ListTag:  string(list),
	}
	if err := s.db.WithContext(ctx).Create(&contact).Error; err != nil {
		if isUniqueConstraintError(err) {
			return store.ErrDuplicateContact
		}
		return fmt.Errorf("add contact: %w", err)
	}
	return nil
}

// RemoveContact deletes (owner, peer, list). Idempotent.
func (s *GORMStore) RemoveContact(ctx context.Context, owner, peer string, list msnp.ListTag) error {
	err := s.db.WithContext(ctx).
		Where("owner = ? AND peer = ? AND list_tag = ?",
			msnp.NormalizeIdentity(owner), msnp.NormalizeIdentity(peer), string(list)).
		Delete(&models.Contact{}).Error
	if err != nil {
		return fmt.Errorf("remove contact: %w", err)
	}
	return nil
}
