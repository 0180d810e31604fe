package memory

import (
	"context"
	"fmt"
	"sync"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
)

type MemoryUserRepository struct {
	users  map[domain.UserID]*domain.User
	nextID domain.UserID
	mu     sync.RWMutex
}

func NewMemoryUserRepository() ports.UserRepository {
	return &MemoryUserRepository{
		users: make(map[domain.UserID]*domain.User),
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == 0 {
		r.nextID++
		for r.users[r.nextID] != nil {
			r.nextID++
		}
		user.ID = r.nextID
	}
	if _, exists := r.users[user.ID]; exists {
		return fmt.Errorf("user already exists: %d", user.ID)
	}

	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	out := *user
	return &out, nil
}
