package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var taskCols = []string{
	"id", "code", "kind", "status", "description", "party_name", "party_phone", "party_address",
	"grid_id", "reporter_id", "reported_at", "attachment_ids", "assigner_id", "mediator_id", "assigned_at",
	"handle_method", "expected_plan", "participants", "process_at", "resolution", "completed_at", "created_at", "updated_at",
}

func taskRow(id string, status Status) *sqlmock.Rows {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(taskCols).AddRow(
		id, "DSP-20260831-0001", "dispute", string(status), "fence dispute", "A. Karimov", nil, nil,
		"grid-1", "u-med", now, []byte(`["att-1"]`), nil, nil, nil,
		nil, nil, nil, nil, nil, nil, now, now,
	)
}

func TestPGGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`(?s)select .+ from tasks where id=\$1`).
		WithArgs("t-1").
		WillReturnRows(taskRow("t-1", StatusReported))

	store := NewPG(db)
	task, err := store.Get(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Status != StatusReported || task.Code != "DSP-20260831-0001" {
		t.Fatalf("task = %+v", task)
	}
	if len(task.AttachmentIDs) != 1 || task.AttachmentIDs[0] != "att-1" {
		t.Fatalf("attachments = %v", task.AttachmentIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`(?s)select .+ from tasks where id=\$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(taskCols))

	store := NewPG(db)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGUpdateStatusConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// The read sees Reported, but by commit time the row moved on: the
	// conditional update matches zero rows and the re-fetch shows it alive.
	mock.ExpectQuery(`(?s)select .+ from tasks where id=\$1`).
		WithArgs("t-1").
		WillReturnRows(taskRow("t-1", StatusReported))
	mock.ExpectExec(`(?s)update tasks set status=.+where id=\$1 and status=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)select .+ from tasks where id=\$1`).
		WithArgs("t-1").
		WillReturnRows(taskRow("t-1", StatusAssigned))

	store := NewPG(db)
	_, err = store.UpdateStatus(context.Background(), "t-1", StatusReported, func(t *Task) {
		t.Status = StatusAssigned
		t.MediatorID = "u-med2"
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGUpdateStatusStaleRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`(?s)select .+ from tasks where id=\$1`).
		WithArgs("t-1").
		WillReturnRows(taskRow("t-1", StatusAssigned))

	store := NewPG(db)
	_, err = store.UpdateStatus(context.Background(), "t-1", StatusReported, func(t *Task) {
		t.Status = StatusAssigned
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestPGHasUnfinished(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`select exists\(select 1 from tasks where status <> \$1 and grid_id=\$2 and mediator_id=\$3\)`).
		WithArgs(string(StatusCompleted), "grid-1", "u-med").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := NewPG(db)
	busy, err := store.HasUnfinished(context.Background(), "grid-1", "u-med")
	if err != nil {
		t.Fatalf("HasUnfinished: %v", err)
	}
	if !busy {
		t.Fatal("busy = false, want true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
