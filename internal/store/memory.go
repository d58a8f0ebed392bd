package store

import (
	"sort"
	"sync"
	"time"

	"github.com/example/authgate/internal/auth"
)

// MemStore is a map-backed Store used by handler tests and local hacking.
type MemStore struct {
	mu      sync.RWMutex
	users   map[int64]*auth.User
	keys    map[int64]*auth.APIKey
	userSeq int64
	keySeq  int64
}

var _ auth.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{users: map[int64]*auth.User{}, keys: map[int64]*auth.APIKey{}}
}

func (m *MemStore) FindUserByUsername(username string) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *MemStore) FindUserByEmail(email string) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *MemStore) FindUserByID(id int64) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (m *MemStore) InsertUser(u *auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return nil, auth.ErrConflict
		}
	}
	m.userSeq++
	cp := *u
	cp.ID = m.userSeq
	cp.CreatedAt = time.Now()
	m.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemStore) UpdateUser(u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemStore) FindAPIKeysByPrefix(prefix string) ([]*auth.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*auth.APIKey
	for _, k := range m.keys {
		if k.KeyPrefix == prefix {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemStore) FindAPIKeyByID(id int64) (*auth.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k, ok := m.keys[id]; ok {
		cp := *k
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (m *MemStore) FindAPIKeysByUser(userID int64) ([]*auth.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*auth.APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) InsertAPIKey(k *auth.APIKey) (*auth.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keySeq++
	cp := *k
	cp.ID = m.keySeq
	cp.CreatedAt = time.Now()
	m.keys[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemStore) UpdateAPIKey(k *auth.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[k.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *MemStore) DeleteAPIKey(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *MemStore) Close() error { return nil }
func (m *MemStore) Ping() bool   { return true }
