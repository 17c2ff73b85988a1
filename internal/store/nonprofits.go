package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/givingops/internal/domain"
)

func (s *Store) GetNonprofit(ctx context.Context, id uuid.UUID) (*domain.Nonprofit, error) {
	var n domain.Nonprofit
	err := s.Db.QueryRow(ctx,
		"SELECT id, name, description, category_id, website, status, created_at FROM nonprofits WHERE id = $1",
		id).Scan(&n.ID, &n.Name, &n.Description, &n.CategoryID, &n.Website, &n.Status, &n.CreatedAt)
	if err != nil {
		return nil, notFound(err, ErrNonprofitNotFound)
	}
	return &n, nil
}

func (s *Store) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	var c domain.Category
	err := s.Db.QueryRow(ctx, "SELECT id, name, slug FROM categories WHERE id = $1", id).Scan(&c.ID, &c.Name, &c.Slug)
	if err != nil {
		return nil, notFound(err, ErrCategoryNotFound)
	}
	return &c, nil
}

// ListApprovedNonprofits returns the public directory, ordered by name.
func (s *Store) ListApprovedNonprofits(ctx context.Context) ([]domain.Nonprofit, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT id, name, description, category_id, website, status, created_at
		 FROM nonprofits WHERE status = 'approved' ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nonprofits := []domain.Nonprofit{}
	for rows.Next() {
		var n domain.Nonprofit
		if err := rows.Scan(&n.ID, &n.Name, &n.Description, &n.CategoryID, &n.Website, &n.Status, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan nonprofit: %w", err)
		}
		nonprofits = append(nonprofits, n)
	}
	return nonprofits, rows.Err()
}

func (s *Store) SetNonprofitStatus(ctx context.Context, id uuid.UUID, status domain.NonprofitStatus) error {
	tag, err := s.Db.Exec(ctx,
		"UPDATE nonprofits SET status = $2, updated_at = NOW() WHERE id = $1",
		id, status)
	if err != nil {
		return fmt.Errorf("nonprofit status update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNonprofitNotFound
	}
	return nil
}

// GetWidgetToken looks a widget token up by its secret value, active or not.
func (s *Store) GetWidgetToken(ctx context.Context, token string) (*domain.WidgetToken, error) {
	var w domain.WidgetToken
	err := s.Db.QueryRow(ctx,
		"SELECT id, token, nonprofit_id, min_amount_cents, is_active FROM widget_tokens WHERE token = $1",
		token).Scan(&w.ID, &w.Token, &w.NonprofitID, &w.MinAmountCents, &w.IsActive)
	if err != nil {
		return nil, notFound(err, ErrWidgetTokenNotFound)
	}
	return &w, nil
}

func (s *Store) CreateWidgetToken(ctx context.Context, w *domain.WidgetToken) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	_, err := s.Db.Exec(ctx,
		"INSERT INTO widget_tokens (id, token, nonprofit_id, min_amount_cents, is_active) VALUES ($1, $2, $3, $4, $5)",
		w.ID, w.Token, w.NonprofitID, w.MinAmountCents, w.IsActive)
	if err != nil {
		return fmt.Errorf("widget token insert failed: %w", err)
	}
	return nil
}

// SeedNonprofits bulk-loads directory rows with COPY.
func (s *Store) SeedNonprofits(ctx context.Context, nonprofits []domain.Nonprofit) (int64, error) {
	rows := make([][]any, 0, len(nonprofits))
	for i := range nonprofits {
		n := &nonprofits[i]
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if n.Status == "" {
			n.Status = domain.NonprofitPending
		}
		rows = append(rows, []any{n.ID, n.Name, n.Description, n.Website, string(n.Status), time.Now()})
	}

	return s.Db.CopyFrom(
		ctx,
		pgx.Identifier{"nonprofits"},
		[]string{"id", "name", "description", "website", "status", "created_at"},
		pgx.CopyFromRows(rows),
	)
}

func (s *Store) CountNonprofits(ctx context.Context) (int, error) {
	var count int
	err := s.Db.QueryRow(ctx, "SELECT COUNT(*) FROM nonprofits").Scan(&count)
	return count, err
}
