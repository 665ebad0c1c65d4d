package auth

// TaskRef carries the fields of a task that scope decisions depend on.
type TaskRef struct {
	ID         string
	GridID     string
	ReporterID string
	MediatorID string
}

// ScopeResolver computes the set of grids and records a principal may see or
// act on. Client-supplied grid filters are advisory only: every decision here
// is re-derived from the authenticated principal.
type ScopeResolver struct{}

// GridInScope reports whether the principal may act on objects in the grid.
func (ScopeResolver) GridInScope(p Principal, gridID string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleGridManager, RoleMediator:
		return p.GridID != "" && p.GridID == gridID
	default:
		return false
	}
}

// TaskInScope reports whether the principal may see or act on the task.
// Mediators are restricted beyond their grid: only tasks they reported or
// were assigned are in scope.
func (r ScopeResolver) TaskInScope(p Principal, t TaskRef) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleGridManager:
		return p.GridID != "" && p.GridID == t.GridID
	case RoleMediator:
		return t.ReporterID == p.UserID || (t.MediatorID != "" && t.MediatorID == p.UserID)
	default:
		return false
	}
}

// GridFilter narrows a listing to the grids the principal may see. The
// requested id is honored only for admins; everyone else gets their own grid
// regardless of what the client sent.
func (ScopeResolver) GridFilter(p Principal, requested string) (gridID string, ok bool) {
	switch p.Role {
	case RoleAdmin:
		return requested, true
	case RoleGridManager, RoleMediator:
		if p.GridID == "" {
			return "", false
		}
		return p.GridID, true
	default:
		return "", false
	}
}
