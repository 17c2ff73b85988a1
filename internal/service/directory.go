package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/cache"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/store"
	"golang.org/x/sync/singleflight"
)

type NonprofitStore interface {
	ListApprovedNonprofits(ctx context.Context) ([]domain.Nonprofit, error)
	GetNonprofit(ctx context.Context, id uuid.UUID) (*domain.Nonprofit, error)
	SetNonprofitStatus(ctx context.Context, id uuid.UUID, status domain.NonprofitStatus) error
}

// Directory serves the public nonprofit listing read-through the cache.
// Cache failures are logged and fall back to the database.
type Directory struct {
	store  NonprofitStore
	cache  cache.DirectoryCache
	logger *slog.Logger
	fills  singleflight.Group
}

func NewDirectory(s NonprofitStore, c cache.DirectoryCache, logger *slog.Logger) *Directory {
	if c == nil {
		c = cache.Noop{}
	}
	return &Directory{store: s, cache: c, logger: logger}
}

// List collapses concurrent misses into one database read.
func (d *Directory) List(ctx context.Context) ([]domain.Nonprofit, error) {
	v, err, _ := d.fills.Do("directory", func() (any, error) {
		list, err := d.cache.GetDirectory(ctx)
		if err == nil {
			return list, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			d.logger.Warn("directory cache read failed", "error", err)
		}

		list, err = d.store.ListApprovedNonprofits(ctx)
		if err != nil {
			return nil, fmt.Errorf("list nonprofits: %w", err)
		}
		if err := d.cache.SetDirectory(ctx, list); err != nil {
			d.logger.Warn("directory cache write failed", "error", err)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Nonprofit), nil
}

// Get returns an approved nonprofit. Pending and rejected entries read as not found.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*domain.Nonprofit, error) {
	n, err := d.cache.GetNonprofit(ctx, id)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		d.logger.Warn("nonprofit cache read failed", "nonprofit_id", id, "error", err)
	}

	n, err = d.store.GetNonprofit(ctx, id)
	if errors.Is(err, store.ErrNonprofitNotFound) {
		return nil, ErrNonprofitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get nonprofit: %w", err)
	}
	if n.Status != domain.NonprofitApproved {
		return nil, ErrNonprofitNotFound
	}
	if err := d.cache.SetNonprofit(ctx, n); err != nil {
		d.logger.Warn("nonprofit cache write failed", "nonprofit_id", id, "error", err)
	}
	return n, nil
}

// SetStatus is the admin approval action.
func (d *Directory) SetStatus(ctx context.Context, id uuid.UUID, status domain.NonprofitStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	err := d.store.SetNonprofitStatus(ctx, id, status)
	if errors.Is(err, store.ErrNonprofitNotFound) {
		return ErrNonprofitNotFound
	}
	if err != nil {
		return err
	}

	if err := d.cache.Invalidate(ctx, id); err != nil {
		d.logger.Error("directory cache invalidation failed", "nonprofit_id", id, "error", err)
	}
	d.logger.Info("nonprofit status changed", "nonprofit_id", id, "status", status)
	return nil
}
