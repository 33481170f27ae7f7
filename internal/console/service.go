// Package console holds administrative operations used by event staff.
package console

import (
	"context"
	"fmt"
	"log"
	"strings"

	"eventgate/internal/directory"
	"eventgate/internal/ticket"
)

// PurgeRequest names the person whose records are removed.
type PurgeRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Service runs console operations against a directory store.
type Service struct {
	store directory.Store
}

func NewService(store directory.Store) *Service {
	return &Service{store: store}
}

// Purge deletes a person's attendance and tickets. Students are removed
// entirely; staff keep their allow-list row with the flags reset so they can
// register again. Purging an unknown id succeeds.
func (s *Service) Purge(ctx context.Context, req PurgeRequest) error {
	id := strings.TrimSpace(req.ID)
	if err := ticket.Require(
		ticket.Field{Name: "type", Value: req.Type},
		ticket.Field{Name: "id", Value: id},
	); err != nil {
		return err
	}
	kind, ok := directory.KindByName(strings.ToLower(strings.TrimSpace(req.Type)))
	if !ok {
		return ticket.Invalid("invalid type %q", req.Type)
	}

	if err := s.store.Purge(ctx, kind, id); err != nil {
		return fmt.Errorf("%w: purge %s %s: %w", ticket.ErrStoreWrite, kind.Name, id, err)
	}
	log.Printf("console: purged %s %s", kind.Name, id)
	return nil
}
