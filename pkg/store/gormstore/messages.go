package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store/models"
)

// AppendMessage records a message in history.
func (s *GORMStore) AppendMessage(ctx context.Context, from, to, body string, sentAt time.Time) error {
	msg := models.Message{
		From:   msnp.NormalizeIdentity(from),
		To:     msnp.NormalizeIdentity(to),
		Body:   body,
		SentAt: sentAt,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}
