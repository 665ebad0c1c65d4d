package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var _ Store = (*PG)(nil)

// PG implements Store using PostgreSQL. The optimistic transition guarantee
// comes from the "where id and status" predicate on the update: the write
// commits only if the row still holds the expected pre-state.
type PG struct {
	db *sql.DB
}

// NewPG creates a PostgreSQL-backed task store.
func NewPG(db *sql.DB) *PG { return &PG{db: db} }

const taskColumns = `id, code, kind, status, description, party_name, party_phone, party_address,
 grid_id, reporter_id, reported_at, attachment_ids, assigner_id, mediator_id, assigned_at,
 handle_method, expected_plan, participants, process_at, resolution, completed_at, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var (
		t            Task
		partyPhone   sql.NullString
		partyAddress sql.NullString
		attachments  []byte
		assignerID   sql.NullString
		mediatorID   sql.NullString
		assignedAt   sql.NullTime
		handleMethod sql.NullString
		expectedPlan sql.NullString
		participants sql.NullString
		processAt    sql.NullTime
		resolution   []byte
		completedAt  sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Code, &t.Kind, &t.Status, &t.Description, &t.PartyName, &partyPhone, &partyAddress,
		&t.GridID, &t.ReporterID, &t.ReportedAt, &attachments, &assignerID, &mediatorID, &assignedAt,
		&handleMethod, &expectedPlan, &participants, &processAt, &resolution, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.PartyPhone = partyPhone.String
	t.PartyAddress = partyAddress.String
	t.AssignerID = assignerID.String
	t.MediatorID = mediatorID.String
	if assignedAt.Valid {
		at := assignedAt.Time
		t.AssignedAt = &at
	}
	t.HandleMethod = handleMethod.String
	t.ExpectedPlan = expectedPlan.String
	t.Participants = participants.String
	if processAt.Valid {
		at := processAt.Time
		t.ProcessAt = &at
	}
	if len(resolution) > 0 {
		var res Resolution
		if err := json.Unmarshal(resolution, &res); err == nil {
			t.Resolution = &res
		}
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	if len(attachments) > 0 {
		_ = json.Unmarshal(attachments, &t.AttachmentIDs)
	}
	return &t, nil
}

func (s *PG) Create(ctx context.Context, t *Task) error {
	attachments, _ := json.Marshal(t.AttachmentIDs)
	_, err := s.db.ExecContext(ctx,
		`insert into tasks(id, code, kind, status, description, party_name, party_phone, party_address,
		 grid_id, reporter_id, reported_at, attachment_ids, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,nullif($7,''),nullif($8,''),$9,$10,$11,$12,$13,$14)`,
		t.ID, t.Code, t.Kind, t.Status, t.Description, t.PartyName, t.PartyPhone, t.PartyAddress,
		t.GridID, t.ReporterID, t.ReportedAt, attachments, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrConflict
	}
	return err
}

func (s *PG) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+taskColumns+` from tasks where id=$1`, id)
	return scanTask(row)
}

func (s *PG) List(ctx context.Context, f Filter) ([]*Task, error) {
	query := `select ` + taskColumns + ` from tasks`
	var (
		conds []string
		args  []any
	)
	if f.GridID != "" {
		args = append(args, f.GridID)
		conds = append(conds, fmt.Sprintf("grid_id=$%d", len(args)))
	}
	if f.ReporterID != "" {
		args = append(args, f.ReporterID)
		conds = append(conds, fmt.Sprintf("reporter_id=$%d", len(args)))
	}
	if f.MediatorID != "" {
		args = append(args, f.MediatorID)
		conds = append(conds, fmt.Sprintf("mediator_id=$%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		conds = append(conds, fmt.Sprintf("kind=$%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			args = append(args, st)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "status in ("+strings.Join(ph, ",")+")")
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(code ilike $%d or party_name ilike $%d)", n, n))
	}
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by reported_at desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *PG) UpdateStatus(ctx context.Context, id string, expected Status, fn func(*Task)) (*Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != expected {
		return nil, ErrConflict
	}
	fn(t)

	var resolution []byte
	if t.Resolution != nil {
		resolution, _ = json.Marshal(t.Resolution)
	}
	result, err := s.db.ExecContext(ctx,
		`update tasks set status=$3, assigner_id=nullif($4,''), mediator_id=nullif($5,''), assigned_at=$6,
		 handle_method=nullif($7,''), expected_plan=nullif($8,''), participants=nullif($9,''), process_at=$10,
		 resolution=$11, completed_at=$12, updated_at=now()
		 where id=$1 and status=$2`,
		t.ID, expected, t.Status, t.AssignerID, t.MediatorID, t.AssignedAt,
		t.HandleMethod, t.ExpectedPlan, t.Participants, t.ProcessAt,
		resolution, t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Someone else moved the task between our read and the write.
		if _, err := s.Get(ctx, id); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	return s.Get(ctx, id)
}

func (s *PG) CountByStatus(ctx context.Context, gridID string) (map[Status]int, error) {
	query := `select status, count(*) from tasks`
	var args []any
	if gridID != "" {
		query += ` where grid_id=$1`
		args = append(args, gridID)
	}
	query += ` group by status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			st Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

func (s *PG) HasUnfinished(ctx context.Context, gridID, mediatorID string) (bool, error) {
	query := `select exists(select 1 from tasks where status <> $1`
	args := []any{StatusCompleted}
	if gridID != "" {
		args = append(args, gridID)
		query += fmt.Sprintf(" and grid_id=$%d", len(args))
	}
	if mediatorID != "" {
		args = append(args, mediatorID)
		query += fmt.Sprintf(" and mediator_id=$%d", len(args))
	}
	query += ")"

	var busy bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&busy); err != nil {
		return false, err
	}
	return busy, nil
}
