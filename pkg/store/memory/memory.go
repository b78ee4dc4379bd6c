// Package memory provides an in-memory store.Store implementation.
//
// It backs handler tests and zero-configuration trial runs; nothing
// survives a restart. All methods are safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store"
	"github.com/retroproto/msnpd/pkg/store/models"
)

type contactKey struct {
	owner, peer, list string
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User // identity -> user
	contacts map[contactKey]models.Contact
	messages []models.Message
	nextID   uint
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		contacts: make(map[contactKey]models.Contact),
		nextID:   1,
	}
}

var _ store.Store = (*Store)(nil)

// GetUser looks up a user by identity.
func (s *Store) GetUser(_ context.Context, identity string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[msnp.NormalizeIdentity(identity)]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &user, nil
}

// CreateUser inserts a new user record.
func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity := msnp.NormalizeIdentity(user.Identity)
	if _, ok := s.users[identity]; ok {
		return store.ErrUserExists
	}

	user.Identity = identity
	user.ID = s.nextID
	s.nextID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	s.users[identity] = *user
	return nil
}

// ListUsers returns all user records, identity ascending.
func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Identity < users[j].Identity })
	return users, nil
}

// DeleteUser removes a user and their owned contact entries. Idempotent.
func (s *Store) DeleteUser(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity = msnp.NormalizeIdentity(identity)
	delete(s.users, identity)
	for k := range s.contacts {
		if k.owner == identity {
			delete(s.contacts, k)
		}
	}
	return nil
}

// ListContacts returns every contact entry owned by the identity.
func (s *Store) ListContacts(_ context.Context, owner string) ([]models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner = msnp.NormalizeIdentity(owner)
	var contacts []models.Contact
	for k, c := range s.contacts {
		if k.owner == owner {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

// AddContact inserts (owner, peer, list).
func (s *Store) AddContact(_ context.Context, owner, peer, nickname string, list msnp.ListTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contactKey{
		owner: msnp.NormalizeIdentity(owner),
		peer:  msnp.NormalizeIdentity(peer),
		list:  string(list),
	}
	if _, ok := s.contacts[key]; ok {
		return store.ErrDuplicateContact
	}

	s.contacts[key] = models.Contact{
		ID:       s.nextID,
		Owner:    key.owner,
		Peer:     key.peer,
		Nickname: nickname,
		ListTag:  key.list,
		AddedAt:  time.Now(),
	}
	s.nextID++
	return nil
}

// RemoveContact deletes (owner, peer, list). Idempotent.
func (s *Store) RemoveContact(_ context.Context, owner, peer string, list msnp.ListTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contacts, contactKey{
		owner: msnp.NormalizeIdentity(owner),
		peer:  msnp.NormalizeIdentity(peer),
		list:  string(list),
	})
	return nil
}

// AppendMessage records a message in history.
func (s *Store) AppendMessage(_ context.Context, from, to, body string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, models.Message{
		ID:     s.nextID,
		From:   msnp.NormalizeIdentity(from),
		To:     msnp.NormalizeIdentity(to),
		Body:   body,
		SentAt: sentAt,
	})
	s.nextID++
	return nil
}

// Messages returns a copy of the recorded message history. Test helper.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
