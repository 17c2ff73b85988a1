package store

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/givingops/internal/domain"
)

// FetchUnpublishedEvents returns outbox rows not yet delivered, oldest first.
func (s *Store) FetchUnpublishedEvents(ctx context.Context, limit int) ([]domain.DonationEvent, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT id, donation_id, event_type, status, payload, created_at
		 FROM donation_events WHERE published_at IS NULL ORDER BY id LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("fetch events failed: %w", err)
	}
	defer rows.Close()

	var events []domain.DonationEvent
	for rows.Next() {
		var e domain.DonationEvent
		if err := rows.Scan(&e.ID, &e.DonationID, &e.EventType, &e.Status, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) MarkEventPublished(ctx context.Context, id int64) error {
	_, err := s.Db.Exec(ctx, "UPDATE donation_events SET published_at = NOW() WHERE id = $1", id)
	return err
}
