package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety. The mutex
// makes UpdateStatus the same atomic compare-and-set the SQL store gets from
// its conditional update.
type InMemory struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewInMemory creates an empty task store.
func NewInMemory() *InMemory {
	return &InMemory{tasks: make(map[string]*Task)}
}

func (s *InMemory) Create(ctx context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneTask(t)
	s.tasks[t.ID] = cp
	return nil
}

func (s *InMemory) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *InMemory) List(ctx context.Context, f Filter) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Task
	for _, t := range s.tasks {
		if !matchTask(t, f) {
			continue
		}
		res = append(res, cloneTask(t))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ReportedAt.After(res[j].ReportedAt) })
	return res, nil
}

func matchTask(t *Task, f Filter) bool {
	if f.GridID != "" && t.GridID != f.GridID {
		return false
	}
	if f.ReporterID != "" && t.ReporterID != f.ReporterID {
		return false
	}
	if f.MediatorID != "" && t.MediatorID != f.MediatorID {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if t.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Code), needle) &&
			!strings.Contains(strings.ToLower(t.PartyName), needle) {
			return false
		}
	}
	return true
}

func (s *InMemory) UpdateStatus(ctx context.Context, id string, expected Status, fn func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != expected {
		return nil, ErrConflict
	}
	fn(t)
	t.UpdatedAt = time.Now().UTC()
	return cloneTask(t), nil
}

func (s *InMemory) CountByStatus(ctx context.Context, gridID string) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Status]int)
	for _, t := range s.tasks {
		if gridID != "" && t.GridID != gridID {
			continue
		}
		counts[t.Status]++
	}
	return counts, nil
}

func (s *InMemory) HasUnfinished(ctx context.Context, gridID, mediatorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if gridID != "" && t.GridID != gridID {
			continue
		}
		if mediatorID != "" && t.MediatorID != mediatorID {
			continue
		}
		if t.Status.Unfinished() {
			return true, nil
		}
	}
	return false, nil
}

func cloneTask(t *Task) *Task {
	cp := *t
	if t.AssignedAt != nil {
		at := *t.AssignedAt
		cp.AssignedAt = &at
	}
	if t.ProcessAt != nil {
		at := *t.ProcessAt
		cp.ProcessAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	if t.Resolution != nil {
		res := *t.Resolution
		res.AttachmentIDs = append([]string(nil), t.Resolution.AttachmentIDs...)
		cp.Resolution = &res
	}
	cp.AttachmentIDs = append([]string(nil), t.AttachmentIDs...)
	return &cp
}
