package dispatch

import "context"

// Filter narrows task listings. Zero values mean "any".
type Filter struct {
	GridID     string
	ReporterID string
	MediatorID string
	Statuses   []Status
	Kind       Kind
	Search     string
}

// Store is the persistence collaborator the lifecycle runs against. The
// storage engine behind it is out of scope; the lifecycle relies only on
// UpdateStatus being a single atomic conditional write.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, error)

	// UpdateStatus applies fn to the task and persists it, conditioned on the
	// persisted status still matching expected at commit time: "set ... where
	// id=$1 and status=expected". A zero-row match on an existing task is
	// ErrConflict; an absent task is ErrNotFound.
	UpdateStatus(ctx context.Context, id string, expected Status, fn func(*Task)) (*Task, error)

	CountByStatus(ctx context.Context, gridID string) (map[Status]int, error)
	HasUnfinished(ctx context.Context, gridID, mediatorID string) (bool, error)
}
