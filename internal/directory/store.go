package directory

import "context"

// UserStore persists staff accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, f UserFilter) ([]*User, error)
	Update(ctx context.Context, u *User) error
}

// GridStore persists service zones.
type GridStore interface {
	Create(ctx context.Context, g *Grid) error
	Get(ctx context.Context, id string) (*Grid, error)
	GetByManager(ctx context.Context, userID string) (*Grid, error)
	List(ctx context.Context, f GridFilter) ([]*Grid, error)
	Update(ctx context.Context, g *Grid) error
}

// TaskGuard lets roster mutations refuse while unfinished tasks exist. An
// empty mediatorID asks about the whole grid. Implemented by the dispatch
// task store; injected to avoid a package cycle.
type TaskGuard interface {
	HasUnfinished(ctx context.Context, gridID, mediatorID string) (bool, error)
}
