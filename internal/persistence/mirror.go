package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/talgya/village-mind/internal/engine"
)

// Mirror saves to every archive and loads from the first that has a
// snapshot.
type Mirror []engine.Archive

var _ engine.Archive = Mirror(nil)

// SaveSnapshot saves to all archives, returning the joined errors.
func (m Mirror) SaveSnapshot(ctx context.Context, s *engine.Snapshot) error {
	var errs []error
	for _, a := range m {
		if err := a.SaveSnapshot(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadSnapshot tries each archive in order. An empty archive is skipped; any
// other failure stops the search.
func (m Mirror) LoadSnapshot(ctx context.Context) (*engine.Snapshot, error) {
	for _, a := range m {
		s, err := a.LoadSnapshot(ctx)
		if errors.Is(err, engine.ErrNoSnapshot) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("mirror: %w", engine.ErrNoSnapshot)
}
