package auth

import "testing"

func TestGridFilter(t *testing.T) {
	var r ScopeResolver

	// Admins may request any grid, or none for a global view.
	if got, ok := r.GridFilter(Principal{Role: RoleAdmin}, "grid-7"); !ok || got != "grid-7" {
		t.Fatalf("admin: %q, %v", got, ok)
	}
	if got, ok := r.GridFilter(Principal{Role: RoleAdmin}, ""); !ok || got != "" {
		t.Fatalf("admin global: %q, %v", got, ok)
	}

	// The requested id is advisory for everyone else.
	manager := Principal{UserID: "m", Role: RoleGridManager, GridID: "grid-1"}
	if got, ok := r.GridFilter(manager, "grid-7"); !ok || got != "grid-1" {
		t.Fatalf("manager: %q, %v", got, ok)
	}

	// A manager without a zone has no scope at all.
	unbound := Principal{UserID: "m", Role: RoleGridManager}
	if _, ok := r.GridFilter(unbound, ""); ok {
		t.Fatal("unbound manager should have no scope")
	}
}

func TestGridInScope(t *testing.T) {
	var r ScopeResolver

	if !r.GridInScope(Principal{Role: RoleAdmin}, "any") {
		t.Fatal("admin should reach every grid")
	}
	mediator := Principal{UserID: "u", Role: RoleMediator, GridID: "grid-1"}
	if !r.GridInScope(mediator, "grid-1") {
		t.Fatal("mediator should reach own grid")
	}
	if r.GridInScope(mediator, "grid-2") {
		t.Fatal("mediator should not reach other grids")
	}
	if r.GridInScope(Principal{UserID: "u", Role: RoleMediator}, "") {
		t.Fatal("empty grid ids must never match")
	}
}

func TestTaskInScopeMediator(t *testing.T) {
	var r ScopeResolver
	task := TaskRef{GridID: "grid-1", ReporterID: "rep", MediatorID: ""}

	// Grid membership alone is not enough for a mediator.
	other := Principal{UserID: "other", Role: RoleMediator, GridID: "grid-1"}
	if r.TaskInScope(other, task) {
		t.Fatal("uninvolved mediator must be out of scope")
	}
	reporter := Principal{UserID: "rep", Role: RoleMediator, GridID: "grid-1"}
	if !r.TaskInScope(reporter, task) {
		t.Fatal("reporter must stay in scope")
	}

	// An unassigned task must not match a principal with an empty id trick.
	if r.TaskInScope(Principal{UserID: "", Role: RoleMediator}, task) {
		t.Fatal("empty user id must never match")
	}
}
