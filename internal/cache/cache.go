package cache

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/domain"
)

// DirectoryCache holds the public nonprofit directory. Only approved entries are cached.
type DirectoryCache interface {
	GetDirectory(ctx context.Context) ([]domain.Nonprofit, error)
	SetDirectory(ctx context.Context, nonprofits []domain.Nonprofit) error
	GetNonprofit(ctx context.Context, id uuid.UUID) (*domain.Nonprofit, error)
	SetNonprofit(ctx context.Context, n *domain.Nonprofit) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop is used when no Redis address is configured; every read misses.
type Noop struct{}

func (Noop) GetDirectory(context.Context) ([]domain.Nonprofit, error) { return nil, ErrCacheMiss }
func (Noop) SetDirectory(context.Context, []domain.Nonprofit) error { return nil }
func (Noop) GetNonprofit(context.Context, uuid.UUID) (*domain.Nonprofit, error) { return nil, ErrCacheMiss }
func (Noop) SetNonprofit(context.Context, *domain.Nonprofit) error { return nil }
func (Noop) Invalidate(context.Context, uuid.UUID) error { return nil }
