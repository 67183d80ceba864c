package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
)

// AllKey holds the JSON array of experiment ids exposed in a session.
const AllKey = domain.ExposedListKey

// Store is the affinity store of a single session.
// Reads go to the in-memory mirror first, then to the backend.
type Store struct {
	id      string
	manager *Manager
	logger  *slog.Logger

	mu      sync.Mutex
	mirror  map[string]string
	exposed []string
}

// ID returns the session id.
func (s *Store) ID() string {
	return s.id
}

// GetVariant returns the variant previously assigned for an experiment.
// Backend errors are logged and reported as "no assignment".
func (s *Store) GetVariant(ctx context.Context, experimentID string) (string, bool) {
	if experimentID == AllKey {
		return "", false
	}

	s.mu.Lock()
	v, ok := s.mirror[experimentID]
	s.mu.Unlock()
	if ok {
		return v, true
	}

	v, err := s.manager.store.Get(ctx, s.id, experimentID)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			s.logger.Warn("session read failed, treating as unassigned", "experiment", experimentID, "err", err)
		}
		return "", false
	}

	s.mu.Lock()
	s.mirror[experimentID] = v
	s.mu.Unlock()
	return v, true
}

// PersistVariant records the assignment. The mirror is updated first so the
// value survives a backend failure for the lifetime of this Store. The
// experiment is also added to the exposed list.
// Failures wrap domain.ErrStorageUnavailable; AllKey is refused with
// domain.ErrReservedExperiment.
func (s *Store) PersistVariant(ctx context.Context, experimentID, variant string) error {
	if experimentID == AllKey {
		return fmt.Errorf("%w: %q", domain.ErrReservedExperiment, experimentID)
	}

	s.mu.Lock()
	s.mirror[experimentID] = variant
	s.addExposedLocked(experimentID)
	s.mu.Unlock()

	return s.manager.WithLock(ctx, s.id, func(ctx context.Context) error {
		if err := s.manager.store.Set(ctx, s.id, experimentID, variant); err != nil {
			return fmt.Errorf("%w: persist %s: %w", domain.ErrStorageUnavailable, experimentID, err)
		}
		return s.recordExposedLocked(ctx, experimentID)
	})
}

// RecordExposedExperiment adds an experiment to the ordered, deduplicated exposed list.
func (s *Store) RecordExposedExperiment(ctx context.Context, experimentID string) error {
	if experimentID == AllKey {
		return fmt.Errorf("%w: %q", domain.ErrReservedExperiment, experimentID)
	}

	s.mu.Lock()
	s.addExposedLocked(experimentID)
	s.mu.Unlock()

	return s.manager.WithLock(ctx, s.id, func(ctx context.Context) error {
		return s.recordExposedLocked(ctx, experimentID)
	})
}

// ExposedExperiments returns the exposed list stored in the backend,
// or the mirror when the backend has none or cannot be read.
func (s *Store) ExposedExperiments(ctx context.Context) ([]string, error) {
	list, err := readExposed(ctx, s.manager.store, s.id)
	if err == nil && list != nil {
		return list, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.exposed), err
}

// Reset clears the session in the backend and in the mirror.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	clear(s.mirror)
	s.exposed = nil
	s.mu.Unlock()

	if err := s.manager.Clear(ctx, s.id); err != nil {
		return fmt.Errorf("%w: reset: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) addExposedLocked(experimentID string) {
	if !slices.Contains(s.exposed, experimentID) {
		s.exposed = append(s.exposed, experimentID)
	}
}

// recordExposedLocked performs the read-modify-write of AllKey.
// The caller must hold the manager lock for this session.
func (s *Store) recordExposedLocked(ctx context.Context, experimentID string) error {
	list, err := readExposed(ctx, s.manager.store, s.id)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", domain.ErrStorageUnavailable, AllKey, err)
	}
	if slices.Contains(list, experimentID) {
		return nil
	}

	data, err := json.Marshal(append(list, experimentID))
	if err != nil {
		return fmt.Errorf("failed to marshal exposed experiments: %w", err)
	}
	if err := s.manager.store.Set(ctx, s.id, AllKey, string(data)); err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrStorageUnavailable, AllKey, err)
	}
	return nil
}

// readExposed decodes AllKey. A missing key yields a nil list and no error.
// A corrupt value is treated as empty so the next write repairs it.
func readExposed(ctx context.Context, store ports.SessionStore, sessionID string) ([]string, error) {
	raw, err := store.Get(ctx, sessionID, AllKey)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return []string{}, nil
	}
	return list, nil
}
