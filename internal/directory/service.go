package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"fieldgrid.org/internal/auth"
	"fieldgrid.org/internal/ids"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{4,20}$`)

// Service provides user and grid administration on top of the stores. All
// admin-surface operations take the calling principal and consult the shared
// capability table; handlers carry no authorization logic of their own.
type Service struct {
	users UserStore
	grids GridStore
	guard TaskGuard
	authz *auth.Authorizer
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithTaskGuard wires the unfinished-task check used by roster mutations.
func WithTaskGuard(g TaskGuard) ServiceOption {
	return func(s *Service) { s.guard = g }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the directory service.
func NewService(users UserStore, grids GridStore, authz *auth.Authorizer, opts ...ServiceOption) (*Service, error) {
	if users == nil || grids == nil {
		return nil, errors.New("user and grid stores are required")
	}
	if authz == nil {
		return nil, errors.New("authorizer is required")
	}
	s := &Service{users: users, grids: grids, authz: authz, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate verifies username/password credentials for login. Wrong
// credentials fail Unauthenticated; a disabled account fails Forbidden.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, auth.ErrUnauthenticated
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrUnauthenticated
		}
		return nil, err
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, auth.ErrUnauthenticated
	}
	if !user.Active {
		return nil, auth.ErrForbidden
	}
	return user, nil
}

// ResolvePrincipal loads the live principal for a cached user id. It
// implements auth.PrincipalResolver for the token store.
func (s *Service) ResolvePrincipal(ctx context.Context, userID string) (auth.Principal, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Principal{}, auth.ErrUnauthenticated
		}
		return auth.Principal{}, err
	}
	if !user.Active {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	p := auth.Principal{UserID: user.ID, Role: user.Role, GridID: user.GridID}
	if user.Role == auth.RoleGridManager {
		grid, err := s.grids.GetByManager(ctx, user.ID)
		switch {
		case err == nil:
			p.GridID = grid.ID
		case errors.Is(err, ErrNotFound):
			p.GridID = ""
		default:
			return auth.Principal{}, err
		}
	}
	return p, nil
}

// Profile returns the calling user's own record.
func (s *Service) Profile(ctx context.Context, p auth.Principal) (*User, error) {
	return s.users.Get(ctx, p.UserID)
}

// UpdateProfile lets a user change their own contact phone. Nothing else on
// the profile is self-service.
func (s *Service) UpdateProfile(ctx context.Context, p auth.Principal, phone string) (*User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || len(phone) > 20 {
		return nil, fmt.Errorf("%w: valid phone is required", ErrInvalidInput)
	}
	user, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	user.Phone = phone
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the old password and installs the new one.
func (s *Service) ChangePassword(ctx context.Context, p auth.Principal, oldPassword, newPassword string) error {
	user, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		return err
	}
	if err := auth.VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		return fmt.Errorf("%w: old password does not match", ErrInvalidInput)
	}
	if err := auth.CheckPasswordStrength(newPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now().UTC()
	return s.users.Update(ctx, user)
}

// CreateUserInput is the admin payload for account creation. Role is fixed
// at creation and immutable afterwards.
type CreateUserInput struct {
	Username string
	Name     string
	Phone    string
	Password string
	Role     string
	GridID   string
}

// CreateUser creates a staff account (admin only).
func (s *Service) CreateUser(ctx context.Context, p auth.Principal, in CreateUserInput) (*User, error) {
	if err := s.authz.Can(p, auth.ActionManageUsers); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	if !usernameRe.MatchString(in.Username) {
		return nil, fmt.Errorf("%w: username must be 4-20 letters, digits or underscores", ErrInvalidInput)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	role, err := auth.ParseRole(in.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if err := auth.CheckPasswordStrength(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	in.GridID = strings.TrimSpace(in.GridID)
	if in.GridID != "" {
		if role != auth.RoleMediator {
			return nil, fmt.Errorf("%w: only mediators carry an operational grid", ErrInvalidInput)
		}
		if _, err := s.grids.Get(ctx, in.GridID); err != nil {
			return nil, err
		}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     in.Username,
		Name:         in.Name,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         role,
		GridID:       in.GridID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns a single account (admin only).
func (s *Service) GetUser(ctx context.Context, p auth.Principal, id string) (*User, error) {
	if err := s.authz.Can(p, auth.ActionManageUsers); err != nil {
		return nil, err
	}
	return s.users.Get(ctx, id)
}

// ListUsers lists accounts (admin only).
func (s *Service) ListUsers(ctx context.Context, p auth.Principal, f UserFilter) ([]*User, error) {
	if err := s.authz.Can(p, auth.ActionManageUsers); err != nil {
		return nil, err
	}
	return s.users.List(ctx, f)
}

// UserUpdate carries the mutable account fields. Role is deliberately absent.
type UserUpdate struct {
	Name   *string
	Phone  *string
	Active *bool
}

// UpdateUser mutates an account (admin only).
func (s *Service) UpdateUser(ctx context.Context, p auth.Principal, id string, upd UserUpdate) (*User, error) {
	if err := s.authz.Can(p, auth.ActionManageUsers); err != nil {
		return nil, err
	}
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		user.Name = name
	}
	if upd.Phone != nil {
		user.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Active != nil {
		if !*upd.Active && id == p.UserID {
			return nil, fmt.Errorf("%w: cannot deactivate own account", ErrInvalidInput)
		}
		user.Active = *upd.Active
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeactivateUser soft-deletes an account (admin only). Self-removal is
// refused.
func (s *Service) DeactivateUser(ctx context.Context, p auth.Principal, id string) error {
	inactive := false
	_, err := s.UpdateUser(ctx, p, id, UserUpdate{Active: &inactive})
	return err
}

// CreateGridInput is the admin payload for zone creation. Boundary and
// center arrive as already-resolved coordinates.
type CreateGridInput struct {
	Name        string
	Region      string
	Boundary    [][2]float64
	CenterLng   float64
	CenterLat   float64
	Description string
}

// CreateGrid creates a service zone (admin only).
func (s *Service) CreateGrid(ctx context.Context, p auth.Principal, in CreateGridInput) (*Grid, error) {
	if err := s.authz.Can(p, auth.ActionManageGrid); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: grid name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	grid := &Grid{
		ID:          ids.New(),
		Name:        in.Name,
		Region:      strings.TrimSpace(in.Region),
		Boundary:    in.Boundary,
		CenterLng:   in.CenterLng,
		CenterLat:   in.CenterLat,
		Description: strings.TrimSpace(in.Description),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.grids.Create(ctx, grid); err != nil {
		return nil, err
	}
	return grid, nil
}

// GridUpdate carries the mutable zone fields.
type GridUpdate struct {
	Name        *string
	Region      *string
	Boundary    [][2]float64
	CenterLng   *float64
	CenterLat   *float64
	Description *string
}

// UpdateGrid mutates a zone (admin only).
func (s *Service) UpdateGrid(ctx context.Context, p auth.Principal, id string, upd GridUpdate) (*Grid, error) {
	if err := s.authz.Can(p, auth.ActionManageGrid); err != nil {
		return nil, err
	}
	grid, err := s.grids.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: grid name is required", ErrInvalidInput)
		}
		grid.Name = name
	}
	if upd.Region != nil {
		grid.Region = strings.TrimSpace(*upd.Region)
	}
	if upd.Boundary != nil {
		grid.Boundary = upd.Boundary
	}
	if upd.CenterLng != nil {
		grid.CenterLng = *upd.CenterLng
	}
	if upd.CenterLat != nil {
		grid.CenterLat = *upd.CenterLat
	}
	if upd.Description != nil {
		grid.Description = strings.TrimSpace(*upd.Description)
	}
	grid.UpdatedAt = s.now().UTC()
	if err := s.grids.Update(ctx, grid); err != nil {
		return nil, err
	}
	return grid, nil
}

// GetGrid returns a zone. Admins see all; a grid manager only their own.
func (s *Service) GetGrid(ctx context.Context, p auth.Principal, id string) (*Grid, error) {
	if err := s.authz.CanForGrid(p, auth.ActionViewGrid, id); err != nil {
		return nil, err
	}
	return s.grids.Get(ctx, id)
}

// ListGrids lists zones inside the principal's scope.
func (s *Service) ListGrids(ctx context.Context, p auth.Principal, f GridFilter) ([]*Grid, error) {
	if err := s.authz.Can(p, auth.ActionViewGrid); err != nil {
		return nil, err
	}
	gridList, err := s.grids.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if p.Role == auth.RoleAdmin {
		return gridList, nil
	}
	scoped := gridList[:0]
	for _, g := range gridList {
		if s.authz.Scope().GridInScope(p, g.ID) {
			scoped = append(scoped, g)
		}
	}
	return scoped, nil
}

// DeactivateGrid soft-deletes a zone (admin only). Refused while the zone
// still holds unfinished tasks.
func (s *Service) DeactivateGrid(ctx context.Context, p auth.Principal, id string) error {
	if err := s.authz.Can(p, auth.ActionManageGrid); err != nil {
		return err
	}
	grid, err := s.grids.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.guard != nil {
		busy, err := s.guard.HasUnfinished(ctx, id, "")
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: grid has unfinished tasks", ErrInvalidInput)
		}
	}
	grid.Active = false
	grid.UpdatedAt = s.now().UTC()
	return s.grids.Update(ctx, grid)
}

// SetGridManager binds or clears the zone's current manager (admin only).
// An empty managerID clears the binding. A manager supervises exactly one
// grid, so binding a user who already manages another zone is a conflict.
func (s *Service) SetGridManager(ctx context.Context, p auth.Principal, gridID, managerID string) (*Grid, error) {
	if err := s.authz.Can(p, auth.ActionManageGrid); err != nil {
		return nil, err
	}
	grid, err := s.grids.Get(ctx, gridID)
	if err != nil {
		return nil, err
	}
	managerID = strings.TrimSpace(managerID)
	if managerID == "" {
		grid.ManagerID = ""
		grid.UpdatedAt = s.now().UTC()
		if err := s.grids.Update(ctx, grid); err != nil {
			return nil, err
		}
		return grid, nil
	}
	manager, err := s.users.Get(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if manager.Role != auth.RoleGridManager {
		return nil, fmt.Errorf("%w: user is not a grid manager", ErrInvalidInput)
	}
	if !manager.Active {
		return nil, fmt.Errorf("%w: user account is disabled", ErrInvalidInput)
	}
	existing, err := s.grids.GetByManager(ctx, managerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.ID != gridID {
		return nil, fmt.Errorf("%w: user already manages grid %s", ErrConflict, existing.ID)
	}
	grid.ManagerID = managerID
	grid.UpdatedAt = s.now().UTC()
	if err := s.grids.Update(ctx, grid); err != nil {
		return nil, err
	}
	return grid, nil
}

// AssignMediator places a mediator into the zone's roster (admin only). A
// mediator operates in exactly one grid.
func (s *Service) AssignMediator(ctx context.Context, p auth.Principal, gridID, mediatorID string) (*User, error) {
	if err := s.authz.Can(p, auth.ActionManageGrid); err != nil {
		return nil, err
	}
	if _, err := s.grids.Get(ctx, gridID); err != nil {
		return nil, err
	}
	mediator, err := s.users.Get(ctx, mediatorID)
	if err != nil {
		return nil, err
	}
	if mediator.Role != auth.RoleMediator {
		return nil, fmt.Errorf("%w: user is not a mediator", ErrInvalidInput)
	}
	if !mediator.Active {
		return nil, fmt.Errorf("%w: user account is disabled", ErrInvalidInput)
	}
	if mediator.GridID == gridID {
		return nil, fmt.Errorf("%w: mediator already assigned to this grid", ErrConflict)
	}
	if mediator.GridID != "" {
		return nil, fmt.Errorf("%w: mediator already assigned to another grid", ErrConflict)
	}
	mediator.GridID = gridID
	mediator.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, mediator); err != nil {
		return nil, err
	}
	return mediator, nil
}

// RemoveMediator takes a mediator off the zone's roster (admin only).
// Refused while the mediator still holds unfinished tasks there.
func (s *Service) RemoveMediator(ctx context.Context, p auth.Principal, gridID, mediatorID string) error {
	if err := s.authz.Can(p, auth.ActionManageGrid); err != nil {
		return err
	}
	mediator, err := s.users.Get(ctx, mediatorID)
	if err != nil {
		return err
	}
	if mediator.GridID != gridID {
		return fmt.Errorf("%w: mediator is not assigned to this grid", ErrNotFound)
	}
	if s.guard != nil {
		busy, err := s.guard.HasUnfinished(ctx, gridID, mediatorID)
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: mediator has unfinished tasks in this grid", ErrInvalidInput)
		}
	}
	mediator.GridID = ""
	mediator.UpdatedAt = s.now().UTC()
	return s.users.Update(ctx, mediator)
}

// Personnel looks up the mediator roster for a grid. The grid parameter sent
// by a client is advisory: non-admin callers always get their own grid's
// roster, whatever was requested.
func (s *Service) Personnel(ctx context.Context, p auth.Principal, requestedGridID, search string) ([]*User, error) {
	if err := s.authz.Can(p, auth.ActionListPersonnel); err != nil {
		return nil, err
	}
	gridID, ok := s.authz.Scope().GridFilter(p, strings.TrimSpace(requestedGridID))
	if !ok {
		return nil, auth.ErrForbidden
	}
	return s.users.List(ctx, UserFilter{
		Role:       auth.RoleMediator,
		GridID:     gridID,
		Search:     search,
		ActiveOnly: true,
	})
}
