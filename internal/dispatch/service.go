package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"fieldgrid.org/internal/auth"
	"fieldgrid.org/internal/directory"
	"fieldgrid.org/internal/ids"
)

// Service implements the task lifecycle on top of a Store. Every transition
// funnels through the store's conditional update, so two racing callers can
// never both move the same task; the loser sees ErrConflict and re-fetches.
type Service struct {
	tasks Store
	users directory.UserStore
	grids directory.GridStore
	authz *auth.Authorizer
	now   func() time.Time
}

// Option configures the lifecycle service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the lifecycle service.
func NewService(tasks Store, users directory.UserStore, grids directory.GridStore, authz *auth.Authorizer, opts ...Option) (*Service, error) {
	if tasks == nil {
		return nil, errors.New("task store is required")
	}
	if users == nil || grids == nil {
		return nil, errors.New("user and grid stores are required")
	}
	if authz == nil {
		return nil, errors.New("authorizer is required")
	}
	s := &Service{tasks: tasks, users: users, grids: grids, authz: authz, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ref(t *Task) auth.TaskRef {
	return auth.TaskRef{ID: t.ID, GridID: t.GridID, ReporterID: t.ReporterID, MediatorID: t.MediatorID}
}

// ReportInput is the mediator payload for filing a new task.
type ReportInput struct {
	Kind          string
	Description   string
	PartyName     string
	PartyPhone    string
	PartyAddress  string
	AttachmentIDs []string
}

// Report files a new task in the reporter's operational grid. Only mediators
// report; the task lands in Reported awaiting a manager's assignment.
func (s *Service) Report(ctx context.Context, p auth.Principal, in ReportInput) (*Task, error) {
	if err := s.authz.Can(p, auth.ActionCreateTask); err != nil {
		return nil, err
	}
	if p.GridID == "" {
		return nil, fmt.Errorf("%w: reporter has no operational grid", ErrValidation)
	}
	kind, ok := ParseKind(in.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown task kind %q", ErrValidation, in.Kind)
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}
	in.PartyName = strings.TrimSpace(in.PartyName)
	if in.PartyName == "" {
		return nil, fmt.Errorf("%w: party name is required", ErrValidation)
	}
	grid, err := s.grids.Get(ctx, p.GridID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: reporter's grid does not exist", ErrValidation)
		}
		return nil, err
	}
	if !grid.Active {
		return nil, fmt.Errorf("%w: reporter's grid is deactivated", ErrValidation)
	}

	now := s.now().UTC()
	t := &Task{
		ID:            ids.New(),
		Code:          newCode(kind, now),
		Kind:          kind,
		Status:        StatusReported,
		Description:   in.Description,
		PartyName:     in.PartyName,
		PartyPhone:    strings.TrimSpace(in.PartyPhone),
		PartyAddress:  strings.TrimSpace(in.PartyAddress),
		GridID:        grid.ID,
		ReporterID:    p.UserID,
		ReportedAt:    now,
		AttachmentIDs: in.AttachmentIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// newCode builds a human-facing reference like DSP-20260831-4821. Uniqueness
// rides on the ULID primary key; the code is for phone and paperwork use.
func newCode(kind Kind, now time.Time) string {
	prefix := "DSP"
	if kind == KindLegalAid {
		prefix = "AID"
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, now.Format("20060102"), rand.Intn(10000))
}

// Get returns a single task the principal may see.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanForTask(p, auth.ActionViewTask, ref(t)); err != nil {
		return nil, err
	}
	return t, nil
}

// ListInput carries the advisory listing filters a client may send.
type ListInput struct {
	GridID   string
	Statuses []Status
	Kind     Kind
	Search   string
}

// List returns the tasks inside the principal's scope. The grid filter sent
// by the client is advisory: non-admin callers always get their own grid.
func (s *Service) List(ctx context.Context, p auth.Principal, in ListInput) ([]*Task, error) {
	if err := s.authz.Can(p, auth.ActionListTasks); err != nil {
		return nil, err
	}
	gridID, ok := s.authz.Scope().GridFilter(p, strings.TrimSpace(in.GridID))
	if !ok {
		return nil, auth.ErrForbidden
	}
	return s.tasks.List(ctx, Filter{
		GridID:   gridID,
		Statuses: in.Statuses,
		Kind:     in.Kind,
		Search:   in.Search,
	})
}

// MyReports returns the tasks the calling mediator filed.
func (s *Service) MyReports(ctx context.Context, p auth.Principal, statuses []Status) ([]*Task, error) {
	if p.Role != auth.RoleMediator {
		return nil, auth.ErrForbidden
	}
	return s.tasks.List(ctx, Filter{ReporterID: p.UserID, Statuses: statuses})
}

// MyTasks returns the calling mediator's live workload. Without an explicit
// status filter it covers Assigned and Processing.
func (s *Service) MyTasks(ctx context.Context, p auth.Principal, statuses []Status) ([]*Task, error) {
	if p.Role != auth.RoleMediator {
		return nil, auth.ErrForbidden
	}
	if len(statuses) == 0 {
		statuses = []Status{StatusAssigned, StatusProcessing}
	}
	return s.tasks.List(ctx, Filter{MediatorID: p.UserID, Statuses: statuses})
}

// MyHistory returns the calling mediator's completed work.
func (s *Service) MyHistory(ctx context.Context, p auth.Principal) ([]*Task, error) {
	if p.Role != auth.RoleMediator {
		return nil, auth.ErrForbidden
	}
	return s.tasks.List(ctx, Filter{MediatorID: p.UserID, Statuses: []Status{StatusCompleted}})
}

// Assign moves a Reported task to Assigned, binding it to a mediator in the
// task's grid. Admins assign anywhere; a grid manager only inside their own
// grid. Re-assigning to the same mediator is a no-op success; any other call
// on a non-Reported task is refused.
func (s *Service) Assign(ctx context.Context, p auth.Principal, taskID, mediatorID string) (*Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanForGrid(p, auth.ActionReassignTask, t.GridID); err != nil {
		return nil, err
	}
	mediator, err := s.users.Get(ctx, mediatorID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: mediator %s", ErrNotFound, mediatorID)
		}
		return nil, err
	}
	if mediator.Role != auth.RoleMediator {
		return nil, fmt.Errorf("%w: user is not a mediator", ErrValidation)
	}
	if !mediator.Active {
		return nil, fmt.Errorf("%w: mediator account is disabled", ErrValidation)
	}
	if mediator.GridID != t.GridID {
		return nil, fmt.Errorf("%w: mediator operates outside the task's grid", ErrValidation)
	}

	if t.Status == StatusAssigned && t.MediatorID == mediator.ID {
		return t, nil
	}
	if !t.Status.CanAdvanceTo(StatusAssigned) {
		return nil, &TransitionError{From: t.Status, To: StatusAssigned}
	}
	now := s.now().UTC()
	return s.tasks.UpdateStatus(ctx, taskID, StatusReported, func(t *Task) {
		t.Status = StatusAssigned
		t.AssignerID = p.UserID
		t.MediatorID = mediator.ID
		t.AssignedAt = &now
	})
}

// ProcessInput is the mediator's handling plan filed when work begins.
type ProcessInput struct {
	HandleMethod string
	ExpectedPlan string
	Participants string
}

// Process moves an Assigned task to Processing. Only the mediator the task is
// bound to may start it; a grid manager cannot process on a mediator's behalf.
// Calling it again once Processing is a no-op success.
func (s *Service) Process(ctx context.Context, p auth.Principal, taskID string, in ProcessInput) (*Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanForTask(p, auth.ActionAdvanceTask, ref(t)); err != nil {
		return nil, err
	}
	if p.UserID != t.MediatorID {
		return nil, auth.ErrForbidden
	}
	if t.Status == StatusProcessing {
		return t, nil
	}
	if !t.Status.CanAdvanceTo(StatusProcessing) {
		return nil, &TransitionError{From: t.Status, To: StatusProcessing}
	}
	now := s.now().UTC()
	return s.tasks.UpdateStatus(ctx, taskID, StatusAssigned, func(t *Task) {
		t.Status = StatusProcessing
		t.HandleMethod = strings.TrimSpace(in.HandleMethod)
		t.ExpectedPlan = strings.TrimSpace(in.ExpectedPlan)
		t.Participants = strings.TrimSpace(in.Participants)
		t.ProcessAt = &now
	})
}

// Complete moves a Processing task to Completed with a resolution record.
// The assigned mediator closes their own work; the grid's manager may also
// close tasks in their grid. A result is mandatory. Calling it again once
// Completed is a no-op success.
func (s *Service) Complete(ctx context.Context, p auth.Principal, taskID string, res Resolution) (*Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanForTask(p, auth.ActionAdvanceTask, ref(t)); err != nil {
		return nil, err
	}
	if p.Role == auth.RoleMediator && p.UserID != t.MediatorID {
		return nil, auth.ErrForbidden
	}
	if t.Status == StatusCompleted {
		return t, nil
	}
	res.Result = strings.TrimSpace(res.Result)
	if res.Result == "" {
		return nil, fmt.Errorf("%w: resolution result is required", ErrValidation)
	}
	if !t.Status.CanAdvanceTo(StatusCompleted) {
		return nil, &TransitionError{From: t.Status, To: StatusCompleted}
	}
	now := s.now().UTC()
	return s.tasks.UpdateStatus(ctx, taskID, StatusProcessing, func(t *Task) {
		t.Status = StatusCompleted
		t.Resolution = &res
		t.CompletedAt = &now
	})
}

// Statistics returns per-status task counts inside the principal's scope.
func (s *Service) Statistics(ctx context.Context, p auth.Principal, requestedGridID string) (map[Status]int, error) {
	if err := s.authz.Can(p, auth.ActionListTasks); err != nil {
		return nil, err
	}
	gridID, ok := s.authz.Scope().GridFilter(p, strings.TrimSpace(requestedGridID))
	if !ok {
		return nil, auth.ErrForbidden
	}
	counts, err := s.tasks.CountByStatus(ctx, gridID)
	if err != nil {
		return nil, err
	}
	for _, st := range []Status{StatusReported, StatusAssigned, StatusProcessing, StatusCompleted} {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts, nil
}
