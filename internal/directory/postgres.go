package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

var (
	_ UserStore = (*PGUsers)(nil)
	_ GridStore = (*PGGrids)(nil)
)

// PGUsers implements UserStore using PostgreSQL.
type PGUsers struct {
	db *sql.DB
}

func NewPGUsers(db *sql.DB) *PGUsers { return &PGUsers{db: db} }

const userColumns = `id, username, name, phone, password_hash, role, grid_id, active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u      User
		phone  sql.NullString
		gridID sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Name, &phone, &u.PasswordHash, &u.Role, &gridID, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Phone = phone.String
	u.GridID = gridID.String
	return &u, nil
}

func (s *PGUsers) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, name, phone, password_hash, role, grid_id, active, created_at, updated_at)
		 values($1,$2,$3,nullif($4,''),$5,$6,nullif($7,''),$8,$9,$10)`,
		u.ID, u.Username, u.Name, u.Phone, u.PasswordHash, u.Role, u.GridID, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrConflict
	}
	return err
}

func (s *PGUsers) Get(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGUsers) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username)
	return scanUser(row)
}

func (s *PGUsers) List(ctx context.Context, f UserFilter) ([]*User, error) {
	query := `select ` + userColumns + ` from users`
	var (
		conds []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, f.Role)
		conds = append(conds, fmt.Sprintf("role=$%d", len(args)))
	}
	if f.GridID != "" {
		args = append(args, f.GridID)
		conds = append(conds, fmt.Sprintf("grid_id=$%d", len(args)))
	}
	if f.ActiveOnly {
		conds = append(conds, "active")
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ilike $%d or username ilike $%d or phone like $%d)", n, n, n))
	}
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by created_at desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (s *PGUsers) Update(ctx context.Context, u *User) error {
	result, err := s.db.ExecContext(ctx,
		`update users set name=$2, phone=nullif($3,''), password_hash=$4, grid_id=nullif($5,''), active=$6, updated_at=$7
		 where id=$1`,
		u.ID, u.Name, u.Phone, u.PasswordHash, u.GridID, u.Active, u.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PGGrids implements GridStore using PostgreSQL. Boundary polygons are kept
// as JSONB, already resolved by the upstream mapping collaborator.
type PGGrids struct {
	db *sql.DB
}

func NewPGGrids(db *sql.DB) *PGGrids { return &PGGrids{db: db} }

const gridColumns = `id, name, region, boundary, center_lng, center_lat, manager_id, description, active, created_at, updated_at`

func scanGrid(row interface{ Scan(...any) error }) (*Grid, error) {
	var (
		g         Grid
		region    sql.NullString
		boundary  []byte
		centerLng sql.NullFloat64
		centerLat sql.NullFloat64
		managerID sql.NullString
		descr     sql.NullString
	)
	err := row.Scan(&g.ID, &g.Name, &region, &boundary, &centerLng, &centerLat, &managerID, &descr, &g.Active, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	g.Region = region.String
	g.CenterLng = centerLng.Float64
	g.CenterLat = centerLat.Float64
	g.ManagerID = managerID.String
	g.Description = descr.String
	if len(boundary) > 0 {
		_ = json.Unmarshal(boundary, &g.Boundary)
	}
	return &g, nil
}

func (s *PGGrids) Create(ctx context.Context, g *Grid) error {
	boundary, _ := json.Marshal(g.Boundary)
	_, err := s.db.ExecContext(ctx,
		`insert into grids(id, name, region, boundary, center_lng, center_lat, manager_id, description, active, created_at, updated_at)
		 values($1,$2,nullif($3,''),$4,$5,$6,nullif($7,''),nullif($8,''),$9,$10,$11)`,
		g.ID, g.Name, g.Region, boundary, g.CenterLng, g.CenterLat, g.ManagerID, g.Description, g.Active, g.CreatedAt, g.UpdatedAt,
	)
	return err
}

func (s *PGGrids) Get(ctx context.Context, id string) (*Grid, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+gridColumns+` from grids where id=$1`, id)
	return scanGrid(row)
}

func (s *PGGrids) GetByManager(ctx context.Context, userID string) (*Grid, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+gridColumns+` from grids where manager_id=$1 and active`, userID)
	return scanGrid(row)
}

func (s *PGGrids) List(ctx context.Context, f GridFilter) ([]*Grid, error) {
	query := `select ` + gridColumns + ` from grids`
	var (
		conds []string
		args  []any
	)
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("active=$%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ilike $%d or region ilike $%d)", n, n))
	}
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by created_at desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Grid
	for rows.Next() {
		g, err := scanGrid(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (s *PGGrids) Update(ctx context.Context, g *Grid) error {
	boundary, _ := json.Marshal(g.Boundary)
	result, err := s.db.ExecContext(ctx,
		`update grids set name=$2, region=nullif($3,''), boundary=$4, center_lng=$5, center_lat=$6,
		 manager_id=nullif($7,''), description=nullif($8,''), active=$9, updated_at=$10
		 where id=$1`,
		g.ID, g.Name, g.Region, boundary, g.CenterLng, g.CenterLat, g.ManagerID, g.Description, g.Active, g.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
