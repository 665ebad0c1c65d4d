package auth

// Action identifies an operation guarded by the capability table.
type Action string

const (
	ActionCreateTask    Action = "create-task"
	ActionReassignTask  Action = "reassign-task"
	ActionAdvanceTask   Action = "advance-task-status"
	ActionViewTask      Action = "view-task"
	ActionListTasks     Action = "list-tasks"
	ActionManageGrid    Action = "manage-grid"
	ActionViewGrid      Action = "view-grid"
	ActionManageUsers   Action = "manage-users"
	ActionListPersonnel Action = "list-personnel"
)

// capability pairs the roles allowed to perform an action with whether the
// action additionally requires an object-scope check.
type capability struct {
	roles  map[Role]struct{}
	scoped bool
}

func roles(rs ...Role) map[Role]struct{} {
	set := make(map[Role]struct{}, len(rs))
	for _, r := range rs {
		set[r] = struct{}{}
	}
	return set
}

// capabilities is the single source of truth for role-based access. Both
// administrative front-ends consult this table through Authorizer; adding an
// action never touches existing checks.
var capabilities = map[Action]capability{
	ActionCreateTask:    {roles: roles(RoleMediator)},
	ActionReassignTask:  {roles: roles(RoleAdmin, RoleGridManager), scoped: true},
	ActionAdvanceTask:   {roles: roles(RoleMediator, RoleGridManager), scoped: true},
	ActionViewTask:      {roles: roles(RoleAdmin, RoleGridManager, RoleMediator), scoped: true},
	ActionListTasks:     {roles: roles(RoleAdmin, RoleGridManager), scoped: true},
	ActionManageGrid:    {roles: roles(RoleAdmin)},
	ActionViewGrid:      {roles: roles(RoleAdmin, RoleGridManager), scoped: true},
	ActionManageUsers:   {roles: roles(RoleAdmin)},
	ActionListPersonnel: {roles: roles(RoleAdmin, RoleGridManager), scoped: true},
}

// Authorizer answers "may this principal perform this action" from the
// capability table, delegating object checks to the scope resolver.
type Authorizer struct {
	scope ScopeResolver
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// Scope exposes the resolver for listing filters.
func (a *Authorizer) Scope() ScopeResolver { return a.scope }

// Can checks the role column of the capability table. Unknown actions are
// denied outright.
func (a *Authorizer) Can(p Principal, action Action) error {
	c, ok := capabilities[action]
	if !ok {
		return ErrForbidden
	}
	if _, ok := c.roles[p.Role]; !ok {
		return ErrForbidden
	}
	return nil
}

// CanForGrid checks the role column and, for scoped actions, whether the
// target grid is inside the principal's scope.
func (a *Authorizer) CanForGrid(p Principal, action Action, gridID string) error {
	if err := a.Can(p, action); err != nil {
		return err
	}
	if !capabilities[action].scoped {
		return nil
	}
	if !a.scope.GridInScope(p, gridID) {
		return ErrForbidden
	}
	return nil
}

// CanForTask checks the role column and, for scoped actions, whether the
// concrete task is inside the principal's scope.
func (a *Authorizer) CanForTask(p Principal, action Action, t TaskRef) error {
	if err := a.Can(p, action); err != nil {
		return err
	}
	if !capabilities[action].scoped {
		return nil
	}
	if !a.scope.TaskInScope(p, t) {
		return ErrForbidden
	}
	return nil
}
