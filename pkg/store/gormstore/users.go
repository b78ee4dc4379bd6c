package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store"
	"github.com/retroproto/msnpd/pkg/store/models"
)

// GetUser looks up a user by identity.
func (s *GORMStore) GetUser(ctx context.Context, identity string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("identity = ?", msnp.NormalizeIdentity(identity)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a new user record.
func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Identity = msnp.NormalizeIdentity(user.Identity)
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return store.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// ListUsers returns all user records, identity ascending.
func (s *GORMStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("identity asc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes a user and their owned contact entries. Idempotent.
func (s *GORMStore) DeleteUser(ctx context.Context, identity string) error {
	identity = msnp.NormalizeIdentity(identity)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner = ?", identity).Delete(&models.Contact{}).Error; err != nil {
			return fmt.Errorf("delete contacts: %w", err)
		}
		if err := tx.Where("identity = ?", identity).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}
