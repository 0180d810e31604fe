package repositories

import (
	"context"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
	"meetrelay/pkg/cache"
)

// CachedUserRepository serves profile lookups from a TTL cache. Profiles
// are owned upstream and change rarely; a stale name lives at most one TTL.
type CachedUserRepository struct {
	next  ports.UserRepository
	cache *cache.Cache[domain.UserID, *domain.User]
}

func NewCachedUserRepository(next ports.UserRepository, c *cache.Cache[domain.UserID, *domain.User]) *CachedUserRepository {
	return &CachedUserRepository{next: next, cache: c}
}

func (r *CachedUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.next.Create(ctx, user); err != nil {
		return err
	}
	r.cache.Delete(user.ID)
	return nil
}

func (r *CachedUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	user, err := r.cache.GetOrLoad(ctx, id, func(ctx context.Context) (*domain.User, error) {
		return r.next.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	cp := *user
	return &cp, nil
}
