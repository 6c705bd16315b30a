package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
)

// ContractorRepo is the sqlx-backed contractor store. The backlog is kept in
// a TEXT[] column so that a contractor row is written as one unit.
type ContractorRepo struct {
	db sqlx.ExtContext
}

func NewContractorRepo(db sqlx.ExtContext) *ContractorRepo { return &ContractorRepo{db: db} }

func (r *ContractorRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS contractors (
  id VARCHAR(32) PRIMARY KEY,
  user_id VARCHAR(32) NOT NULL UNIQUE REFERENCES users(id),
  company_name TEXT NOT NULL DEFAULT '',
  rating DOUBLE PRECISION NOT NULL DEFAULT 0,
  completed_tasks INT NOT NULL DEFAULT 0,
  efficiency INT NOT NULL DEFAULT 0,
  cost_per_task BIGINT NOT NULL DEFAULT 0,
  assigned_tasks TEXT[] NOT NULL DEFAULT '{}',
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type contractorRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	CompanyName    string         `db:"company_name"`
	Rating         float64        `db:"rating"`
	CompletedTasks int            `db:"completed_tasks"`
	Efficiency     int            `db:"efficiency"`
	CostPerTask    int64          `db:"cost_per_task"`
	AssignedTasks  pq.StringArray `db:"assigned_tasks"`
	Version        int64          `db:"version"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (row contractorRow) toEntity() *entity.Contractor {
	return &entity.Contractor{
		ID:             row.ID,
		UserID:         row.UserID,
		CompanyName:    row.CompanyName,
		Rating:         row.Rating,
		CompletedTasks: row.CompletedTasks,
		Efficiency:     row.Efficiency,
		CostPerTask:    row.CostPerTask,
		AssignedTasks:  entity.Backlog(row.AssignedTasks),
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

const contractorColumns = `id, user_id, company_name, rating, completed_tasks, efficiency, cost_per_task, assigned_tasks, version, created_at, updated_at`

func (r *ContractorRepo) Create(ctx context.Context, c *entity.Contractor) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	if c.Version == 0 {
		c.Version = 1
	}
	if c.AssignedTasks == nil {
		c.AssignedTasks = entity.Backlog{}
	}
	const q = `INSERT INTO contractors (` + contractorColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.UserID, c.CompanyName, c.Rating, c.CompletedTasks, c.Efficiency, c.CostPerTask,
		pq.Array([]string(c.AssignedTasks)), c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperror.Conflict("contractor profile already exists for user %s", c.UserID)
		}
		return err
	}
	return nil
}

func (r *ContractorRepo) GetByID(ctx context.Context, id string) (*entity.Contractor, error) {
	return r.getOne(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE id=$1`, id)
}

func (r *ContractorRepo) GetByUserID(ctx context.Context, userID string) (*entity.Contractor, error) {
	return r.getOne(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE user_id=$1`, userID)
}

var orderBy = map[entity.SortKey]string{
	entity.SortByRating:         "rating DESC, id",
	entity.SortByCompletedTasks: "completed_tasks DESC, id",
	entity.SortByEfficiency:     "efficiency DESC, id",
	entity.SortByCostPerTask:    "cost_per_task ASC, id",
	entity.SortByCompanyName:    "company_name ASC, id",
}

// List returns every contractor ordered by sortBy. The caller validates the
// key; an unknown key falls back to rating.
func (r *ContractorRepo) List(ctx context.Context, sortBy entity.SortKey) ([]*entity.Contractor, error) {
	order, ok := orderBy[sortBy]
	if !ok {
		order = orderBy[entity.SortByRating]
	}
	var rows []contractorRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, fmt.Sprintf(`SELECT %s FROM contractors ORDER BY %s`, contractorColumns, order)); err != nil {
		return nil, err
	}
	out := make([]*entity.Contractor, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// Update performs a compare-and-swap on version. A stale version leaves the
// row untouched and returns a conflict.
func (r *ContractorRepo) Update(ctx context.Context, c *entity.Contractor) error {
	now := time.Now().UTC()
	const q = `UPDATE contractors
		SET company_name=$3, rating=$4, completed_tasks=$5, efficiency=$6, cost_per_task=$7,
		    assigned_tasks=$8, updated_at=$9, version=version+1
		WHERE id=$1 AND version=$2`
	res, err := r.db.ExecContext(ctx, q,
		c.ID, c.Version, c.CompanyName, c.Rating, c.CompletedTasks, c.Efficiency, c.CostPerTask,
		pq.Array([]string(c.AssignedTasks)), now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.Conflict("contractor %s was modified concurrently", c.ID)
	}
	c.Version++
	c.UpdatedAt = now
	return nil
}

func (r *ContractorRepo) CountWithBacklog(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM contractors WHERE cardinality(assigned_tasks) > 0`)
	return n, err
}

func (r *ContractorRepo) getOne(ctx context.Context, q string, arg string) (*entity.Contractor, error) {
	var row contractorRow
	if err := sqlx.GetContext(ctx, r.db, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("contractor %s", arg)
		}
		return nil, err
	}
	return row.toEntity(), nil
}
