package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldgrid.org/internal/auth"
	"fieldgrid.org/internal/directory"
)

type fixture struct {
	svc   *Service
	tasks *InMemory

	admin     auth.Principal
	manager   auth.Principal
	mediator  auth.Principal
	colleague auth.Principal
	outsider  auth.Principal

	gridID      string
	otherGridID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	users := directory.NewInMemoryUsers()
	grids := directory.NewInMemoryGrids()
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	mkGrid := func(id, name string) {
		if err := grids.Create(ctx, &directory.Grid{
			ID: id, Name: name, Active: true, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("seed grid %s: %v", id, err)
		}
	}
	mkGrid("grid-1", "North Zone")
	mkGrid("grid-2", "South Zone")

	mkUser := func(id string, role auth.Role, gridID string) {
		if err := users.Create(ctx, &directory.User{
			ID: id, Username: id, Name: id, Role: role, GridID: gridID,
			Active: true, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
	mkUser("u-admin", auth.RoleAdmin, "")
	mkUser("u-manager", auth.RoleGridManager, "")
	mkUser("u-med", auth.RoleMediator, "grid-1")
	mkUser("u-med2", auth.RoleMediator, "grid-1")
	mkUser("u-far", auth.RoleMediator, "grid-2")

	tasks := NewInMemory()
	svc, err := NewService(tasks, users, grids, auth.NewAuthorizer(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return &fixture{
		svc:   svc,
		tasks: tasks,

		admin:     auth.Principal{UserID: "u-admin", Role: auth.RoleAdmin},
		manager:   auth.Principal{UserID: "u-manager", Role: auth.RoleGridManager, GridID: "grid-1"},
		mediator:  auth.Principal{UserID: "u-med", Role: auth.RoleMediator, GridID: "grid-1"},
		colleague: auth.Principal{UserID: "u-med2", Role: auth.RoleMediator, GridID: "grid-1"},
		outsider:  auth.Principal{UserID: "u-far", Role: auth.RoleMediator, GridID: "grid-2"},

		gridID:      "grid-1",
		otherGridID: "grid-2",
	}
}

func (f *fixture) report(t *testing.T) *Task {
	t.Helper()
	task, err := f.svc.Report(context.Background(), f.mediator, ReportInput{
		Kind:        "dispute",
		Description: "boundary fence dispute between neighbours",
		PartyName:   "A. Karimov",
	})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	return task
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	task := f.report(t)

	if task.Status != StatusReported {
		t.Fatalf("status = %s, want %s", task.Status, StatusReported)
	}
	if task.GridID != f.gridID {
		t.Fatalf("grid = %s, want %s", task.GridID, f.gridID)
	}
	if task.ReporterID != f.mediator.UserID {
		t.Fatalf("reporter = %s, want %s", task.ReporterID, f.mediator.UserID)
	}
	if task.Code == "" || task.Code[:3] != "DSP" {
		t.Fatalf("code = %q, want DSP prefix", task.Code)
	}
}

func TestReportOnlyMediators(t *testing.T) {
	f := newFixture(t)
	for _, p := range []auth.Principal{f.admin, f.manager} {
		_, err := f.svc.Report(context.Background(), p, ReportInput{
			Kind: "dispute", Description: "x", PartyName: "y",
		})
		if !errors.Is(err, auth.ErrForbidden) {
			t.Fatalf("Report as %s: err = %v, want ErrForbidden", p.Role, err)
		}
	}
}

func TestReportValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]ReportInput{
		"unknown kind":   {Kind: "arbitration", Description: "x", PartyName: "y"},
		"no description": {Kind: "dispute", PartyName: "y"},
		"no party":       {Kind: "dispute", Description: "x"},
	}
	for name, in := range cases {
		if _, err := f.svc.Report(context.Background(), f.mediator, in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", name, err)
		}
	}
}

func TestAssignHappyPath(t *testing.T) {
	f := newFixture(t)
	task := f.report(t)

	got, err := f.svc.Assign(context.Background(), f.manager, task.ID, "u-med2")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if got.Status != StatusAssigned {
		t.Fatalf("status = %s, want %s", got.Status, StatusAssigned)
	}
	if got.MediatorID != "u-med2" || got.AssignerID != f.manager.UserID {
		t.Fatalf("mediator = %s assigner = %s", got.MediatorID, got.AssignerID)
	}
	if got.AssignedAt == nil {
		t.Fatal("AssignedAt not set")
	}
}

func TestAssignRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("mediator cannot assign", func(t *testing.T) {
		task := f.report(t)
		if _, err := f.svc.Assign(ctx, f.mediator, task.ID, "u-med2"); !errors.Is(err, auth.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})
	t.Run("manager out of grid", func(t *testing.T) {
		task := f.report(t)
		stranger := auth.Principal{UserID: "u-other", Role: auth.RoleGridManager, GridID: f.otherGridID}
		if _, err := f.svc.Assign(ctx, stranger, task.ID, "u-med2"); !errors.Is(err, auth.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})
	t.Run("unknown mediator", func(t *testing.T) {
		task := f.report(t)
		if _, err := f.svc.Assign(ctx, f.manager, task.ID, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("mediator outside task grid", func(t *testing.T) {
		task := f.report(t)
		if _, err := f.svc.Assign(ctx, f.manager, task.ID, "u-far"); !errors.Is(err, ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})
	t.Run("unknown task", func(t *testing.T) {
		if _, err := f.svc.Assign(ctx, f.admin, "missing", "u-med2"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("repeat same mediator is no-op", func(t *testing.T) {
		task := f.report(t)
		if _, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med2"); err != nil {
			t.Fatalf("first assign: %v", err)
		}
		got, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med2")
		if err != nil {
			t.Fatalf("second assign: %v", err)
		}
		if got.Status != StatusAssigned {
			t.Fatalf("status = %s", got.Status)
		}
	})
	t.Run("reassign after start is refused", func(t *testing.T) {
		task := f.report(t)
		if _, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med2"); err != nil {
			t.Fatalf("assign: %v", err)
		}
		if _, err := f.svc.Process(ctx, f.colleague, task.ID, ProcessInput{}); err != nil {
			t.Fatalf("process: %v", err)
		}
		_, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med")
		te, ok := AsTransitionError(err)
		if !ok {
			t.Fatalf("err = %v, want TransitionError", err)
		}
		if te.From != StatusProcessing || te.To != StatusAssigned {
			t.Fatalf("transition %s -> %s", te.From, te.To)
		}
	})
}

func TestConcurrentAssign(t *testing.T) {
	f := newFixture(t)
	task := f.report(t)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, mediatorID := range []string{"u-med", "u-med2"} {
		wg.Add(1)
		go func(i int, mediatorID string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Assign(context.Background(), f.manager, task.ID, mediatorID)
		}(i, mediatorID)
	}
	close(start)
	wg.Wait()

	var okCount, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			if _, isTransition := AsTransitionError(err); isTransition {
				conflicts++
			} else {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}
	if okCount != 1 || conflicts != 1 {
		t.Fatalf("got %d successes and %d conflicts, want exactly one of each", okCount, conflicts)
	}
}

func TestProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.report(t)
	if _, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med2"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	t.Run("only assigned mediator", func(t *testing.T) {
		if _, err := f.svc.Process(ctx, f.manager, task.ID, ProcessInput{}); !errors.Is(err, auth.ErrForbidden) {
			t.Fatalf("manager: err = %v, want ErrForbidden", err)
		}
		if _, err := f.svc.Process(ctx, f.mediator, task.ID, ProcessInput{}); !errors.Is(err, auth.ErrForbidden) {
			t.Fatalf("reporter: err = %v, want ErrForbidden", err)
		}
	})
	t.Run("happy path and idempotency", func(t *testing.T) {
		got, err := f.svc.Process(ctx, f.colleague, task.ID, ProcessInput{
			HandleMethod: "on-site visit",
			ExpectedPlan: "joint session with both parties",
		})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if got.Status != StatusProcessing || got.ProcessAt == nil {
			t.Fatalf("status = %s, processAt = %v", got.Status, got.ProcessAt)
		}
		again, err := f.svc.Process(ctx, f.colleague, task.ID, ProcessInput{})
		if err != nil {
			t.Fatalf("repeat Process: %v", err)
		}
		if again.HandleMethod != "on-site visit" {
			t.Fatalf("repeat overwrote plan: %q", again.HandleMethod)
		}
	})
}

func TestProcessFromReported(t *testing.T) {
	f := newFixture(t)
	task := f.report(t)
	_, err := f.svc.Process(context.Background(), f.mediator, task.ID, ProcessInput{})
	if !errors.Is(err, auth.ErrForbidden) {
		// An unassigned task has no mediator; the reporter may view it but
		// cannot start work nobody has been given.
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	setup := func(t *testing.T) *Task {
		task := f.report(t)
		if _, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med2"); err != nil {
			t.Fatalf("assign: %v", err)
		}
		if _, err := f.svc.Process(ctx, f.colleague, task.ID, ProcessInput{}); err != nil {
			t.Fatalf("process: %v", err)
		}
		return task
	}

	t.Run("result required", func(t *testing.T) {
		task := setup(t)
		if _, err := f.svc.Complete(ctx, f.colleague, task.ID, Resolution{}); !errors.Is(err, ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})
	t.Run("assigned mediator completes", func(t *testing.T) {
		task := setup(t)
		got, err := f.svc.Complete(ctx, f.colleague, task.ID, Resolution{Result: "settled", Detail: "parties signed agreement"})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if got.Status != StatusCompleted || got.CompletedAt == nil || got.Resolution == nil {
			t.Fatalf("status = %s, completedAt = %v, resolution = %v", got.Status, got.CompletedAt, got.Resolution)
		}
	})
	t.Run("grid manager completes", func(t *testing.T) {
		task := setup(t)
		if _, err := f.svc.Complete(ctx, f.manager, task.ID, Resolution{Result: "settled"}); err != nil {
			t.Fatalf("Complete as manager: %v", err)
		}
	})
	t.Run("other mediator cannot", func(t *testing.T) {
		task := setup(t)
		if _, err := f.svc.Complete(ctx, f.mediator, task.ID, Resolution{Result: "settled"}); !errors.Is(err, auth.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})
	t.Run("from assigned is refused", func(t *testing.T) {
		task := f.report(t)
		if _, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med2"); err != nil {
			t.Fatalf("assign: %v", err)
		}
		_, err := f.svc.Complete(ctx, f.colleague, task.ID, Resolution{Result: "settled"})
		if _, ok := AsTransitionError(err); !ok {
			t.Fatalf("err = %v, want TransitionError", err)
		}
	})
	t.Run("repeat is no-op", func(t *testing.T) {
		task := setup(t)
		if _, err := f.svc.Complete(ctx, f.colleague, task.ID, Resolution{Result: "settled"}); err != nil {
			t.Fatalf("first complete: %v", err)
		}
		if _, err := f.svc.Complete(ctx, f.colleague, task.ID, Resolution{Result: "different"}); err != nil {
			t.Fatalf("repeat complete: %v", err)
		}
		got, err := f.svc.Get(ctx, f.colleague, task.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Resolution.Result != "settled" {
			t.Fatalf("repeat overwrote resolution: %q", got.Resolution.Result)
		}
	})
}

func TestGetScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.report(t)

	if _, err := f.svc.Get(ctx, f.admin, task.ID); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.manager, task.ID); err != nil {
		t.Fatalf("manager: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.mediator, task.ID); err != nil {
		t.Fatalf("reporter: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.colleague, task.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("uninvolved mediator: err = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Get(ctx, f.outsider, task.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("outsider: err = %v, want ErrForbidden", err)
	}
}

func TestListScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t)

	t.Run("manager ignores requested grid", func(t *testing.T) {
		got, err := f.svc.List(ctx, f.manager, ListInput{GridID: f.otherGridID})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, task := range got {
			if task.GridID != f.gridID {
				t.Fatalf("leaked task from grid %s", task.GridID)
			}
		}
		if len(got) != 1 {
			t.Fatalf("len = %d, want 1", len(got))
		}
	})
	t.Run("admin honors requested grid", func(t *testing.T) {
		got, err := f.svc.List(ctx, f.admin, ListInput{GridID: f.otherGridID})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("len = %d, want 0", len(got))
		}
	})
	t.Run("mediator cannot list", func(t *testing.T) {
		if _, err := f.svc.List(ctx, f.mediator, ListInput{}); !errors.Is(err, auth.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})
}

func TestMyQueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.report(t)
	if _, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med2"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	reports, err := f.svc.MyReports(ctx, f.mediator, nil)
	if err != nil || len(reports) != 1 {
		t.Fatalf("MyReports: %v, len = %d", err, len(reports))
	}
	mine, err := f.svc.MyTasks(ctx, f.colleague, nil)
	if err != nil || len(mine) != 1 {
		t.Fatalf("MyTasks: %v, len = %d", err, len(mine))
	}
	history, err := f.svc.MyHistory(ctx, f.colleague)
	if err != nil || len(history) != 0 {
		t.Fatalf("MyHistory: %v, len = %d", err, len(history))
	}

	if _, err := f.svc.Process(ctx, f.colleague, task.ID, ProcessInput{}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.colleague, task.ID, Resolution{Result: "settled"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	history, err = f.svc.MyHistory(ctx, f.colleague)
	if err != nil || len(history) != 1 {
		t.Fatalf("MyHistory after complete: %v, len = %d", err, len(history))
	}
	mine, err = f.svc.MyTasks(ctx, f.colleague, nil)
	if err != nil || len(mine) != 0 {
		t.Fatalf("MyTasks after complete: %v, len = %d", err, len(mine))
	}
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t)
	task := f.report(t)
	if _, err := f.svc.Assign(ctx, f.manager, task.ID, "u-med2"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	counts, err := f.svc.Statistics(ctx, f.manager, "")
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	want := map[Status]int{StatusReported: 1, StatusAssigned: 1, StatusProcessing: 0, StatusCompleted: 0}
	for st, n := range want {
		if counts[st] != n {
			t.Errorf("counts[%s] = %d, want %d", st, counts[st], n)
		}
	}
}
