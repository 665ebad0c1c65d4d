package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"fieldgrid.org/internal/auth"
)

var (
	_ UserStore = (*InMemoryUsers)(nil)
	_ GridStore = (*InMemoryGrids)(nil)
)

// InMemoryUsers implements UserStore with in-process concurrency safety.
type InMemoryUsers struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryUsers creates an empty user store.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{users: make(map[string]*User)}
}

func (s *InMemoryUsers) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemoryUsers) Get(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryUsers) GetByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryUsers) List(ctx context.Context, f UserFilter) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*User
	for _, u := range s.users {
		if !matchUser(u, f) {
			continue
		}
		cp := *u
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func matchUser(u *User, f UserFilter) bool {
	if f.Role != auth.Role("") && u.Role != f.Role {
		return false
	}
	if f.GridID != "" && u.GridID != f.GridID {
		return false
	}
	if f.ActiveOnly && !u.Active {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(u.Name), needle) &&
			!strings.Contains(strings.ToLower(u.Username), needle) &&
			!strings.Contains(u.Phone, f.Search) {
			return false
		}
	}
	return true
}

func (s *InMemoryUsers) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

// InMemoryGrids implements GridStore with in-process concurrency safety.
type InMemoryGrids struct {
	mu    sync.RWMutex
	grids map[string]*Grid
}

// NewInMemoryGrids creates an empty grid store.
func NewInMemoryGrids() *InMemoryGrids {
	return &InMemoryGrids{grids: make(map[string]*Grid)}
}

func (s *InMemoryGrids) Create(ctx context.Context, g *Grid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.grids[g.ID] = &cp
	return nil
}

func (s *InMemoryGrids) Get(ctx context.Context, id string) (*Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grids[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *InMemoryGrids) GetByManager(ctx context.Context, userID string) (*Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grids {
		if g.ManagerID == userID && g.Active {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryGrids) List(ctx context.Context, f GridFilter) ([]*Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Grid
	for _, g := range s.grids {
		if f.Active != nil && g.Active != *f.Active {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(g.Name), needle) &&
				!strings.Contains(strings.ToLower(g.Region), needle) {
				continue
			}
		}
		cp := *g
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemoryGrids) Update(ctx context.Context, g *Grid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grids[g.ID]; !ok {
		return ErrNotFound
	}
	cp := *g
	s.grids[g.ID] = &cp
	return nil
}
