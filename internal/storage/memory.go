package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pingbot/internal/users"
)

// Memory is a map-backed users.Directory for tests and local runs.
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time
	m   map[string]users.Identity

	// failErr, when set, is returned (wrapped) by every call.
	failErr error
}

func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{now: o.now, m: make(map[string]users.Identity)}
}

// SetFailure makes every subsequent call fail with err wrapped as
// users.ErrUnavailable. Pass nil to recover.
func (s *Memory) SetFailure(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

func (s *Memory) check(op string) error {
	if s.failErr != nil {
		return unavailable(op, s.failErr)
	}
	return nil
}

func (s *Memory) UpsertContact(ctx context.Context, chatID string, p users.Profile) (users.Identity, bool, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return users.Identity{}, false, users.ErrEmptyChatID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("memory upsert contact"); err != nil {
		return users.Identity{}, false, err
	}
	now := s.now().UTC()
	id, ok := s.m[chatID]
	if !ok {
		id = users.Identity{ChatID: chatID, Role: users.RoleClient, CreatedAt: now}
	}
	id.Profile = p
	id.UpdatedAt = now
	s.m[chatID] = id
	return id, !ok, nil
}

func (s *Memory) GetByChatID(ctx context.Context, chatID string) (users.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("memory get"); err != nil {
		return users.Identity{}, err
	}
	id, ok := s.m[strings.TrimSpace(chatID)]
	if !ok {
		return users.Identity{}, users.ErrNotFound
	}
	return id, nil
}

func (s *Memory) SetAdminRole(ctx context.Context, chatID string) (users.Identity, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return users.Identity{}, users.ErrEmptyChatID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("memory set admin"); err != nil {
		return users.Identity{}, err
	}
	id, ok := s.m[chatID]
	if ok && id.Role == users.RoleAdmin {
		return id, nil
	}
	now := s.now().UTC()
	if !ok {
		id = users.Identity{ChatID: chatID, CreatedAt: now}
	}
	id.Role = users.RoleAdmin
	id.UpdatedAt = now
	s.m[chatID] = id
	return id, nil
}

func (s *Memory) ListByRole(ctx context.Context, role users.Role, offset, limit int) ([]users.Identity, int, error) {
	if err := validRole(role); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	if err := s.check("memory list"); err != nil {
		s.mu.RUnlock()
		return nil, 0, err
	}
	all := make([]users.Identity, 0, len(s.m))
	for _, id := range s.m {
		if id.Role == role {
			all = append(all, id)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ChatID < all[j].ChatID
	})

	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return []users.Identity{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (s *Memory) CountByRole(ctx context.Context, role users.Role) (int, error) {
	if err := validRole(role); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("memory count"); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range s.m {
		if id.Role == role {
			n++
		}
	}
	return n, nil
}

func (s *Memory) CountAll(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("memory count"); err != nil {
		return 0, err
	}
	return len(s.m), nil
}

func (s *Memory) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check("memory ping")
}

func (s *Memory) Close() error { return nil }
