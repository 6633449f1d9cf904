// Package memory is a process-local storage.Repository used in development
// and tests. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartspend/internal/core"
)

type Store struct {
	mu       sync.Mutex
	nextID   int64
	items    []core.Analysis
	profiles map[string]core.Profile
	now      func() time.Time
}

func New() *Store {
	return &Store{
		profiles: make(map[string]core.Profile),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SaveAnalysis stores a copy of a with a synthetic ID.
func (s *Store) SaveAnalysis(_ context.Context, a core.Analysis) (core.Analysis, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return core.Analysis{}, fmt.Errorf("validate analysis: %w", err)
	}
	if a.Ref == "" {
		a.Ref = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	a.CreatedAt = s.now()
	s.items = append(s.items, a)
	return a, nil
}

func (s *Store) GetAnalysis(_ context.Context, ref string) (core.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.items {
		if a.Ref == ref {
			return a, nil
		}
	}
	return core.Analysis{}, fmt.Errorf("get analysis %s: %w", ref, core.ErrNotFound)
}

func (s *Store) GetAnalysisByID(_ context.Context, id int64) (core.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], nil
	}
	return core.Analysis{}, fmt.Errorf("get analysis by id %d: %w", id, core.ErrNotFound)
}

// ListAnalyses returns the newest analyses first.
func (s *Store) ListAnalyses(_ context.Context, email string, limit int) ([]core.Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	email = core.NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Analysis, 0, min(limit, len(s.items)))
	for _, a := range slices.Backward(s.items) {
		if len(out) == limit {
			break
		}
		if email != "" && a.Email != email {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) PendingExports(_ context.Context, limit int) ([]core.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Analysis
	for _, a := range s.items {
		if limit > 0 && len(out) == limit {
			break
		}
		if a.ExportStatus != core.ExportDone {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, id int64) error {
	return s.setStatus(id, core.ExportDone)
}

func (s *Store) MarkExportError(_ context.Context, id int64) error {
	return s.setStatus(id, core.ExportFailed)
}

func (s *Store) setStatus(id int64, status core.ExportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("set export status %d: %w", id, core.ErrNotFound)
	}
	s.items[i].ExportStatus = status
	return nil
}

// indexOf expects s.mu to be held.
func (s *Store) indexOf(id int64) int {
	return slices.IndexFunc(s.items, func(a core.Analysis) bool { return a.ID == id })
}

func (s *Store) UpsertProfile(_ context.Context, p core.Profile) (core.Profile, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = s.now()
	s.profiles[p.Email] = p
	return p, nil
}

func (s *Store) GetProfile(_ context.Context, email string) (core.Profile, error) {
	email = core.NormalizeEmail(email)
	if email == "" {
		return core.Profile{}, core.ErrEmptyEmail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[email]
	if !ok {
		return core.Profile{}, fmt.Errorf("get profile: %w", core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) Close() error { return nil }
