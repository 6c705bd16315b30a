package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
)

// IssueRepo is the sqlx-backed issue store.
type IssueRepo struct {
	db sqlx.ExtContext
}

func NewIssueRepo(db sqlx.ExtContext) *IssueRepo { return &IssueRepo{db: db} }

func (r *IssueRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS issues (
  id VARCHAR(32) PRIMARY KEY,
  user_id VARCHAR(32) NOT NULL REFERENCES users(id),
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  image_url TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT 'General',
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  address TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'reported' CHECK (status IN
    ('reported','assigned','under_contractor_survey','fund_approval_pending','in_progress','resolved','closed')),
  fund_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
  fund_approved BOOLEAN NOT NULL DEFAULT FALSE,
  contractor_id VARCHAR(32) NOT NULL DEFAULT '',
  upvotes INT NOT NULL DEFAULT 0,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_issues_user ON issues(user_id);
CREATE INDEX IF NOT EXISTS idx_issues_contractor ON issues(contractor_id);
CREATE INDEX IF NOT EXISTS idx_issues_city ON issues(LOWER(city));
CREATE INDEX IF NOT EXISTS idx_issues_created ON issues(created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type issueRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	ImageURL     string    `db:"image_url"`
	Category     string    `db:"category"`
	Lat          float64   `db:"lat"`
	Lng          float64   `db:"lng"`
	Address      string    `db:"address"`
	City         string    `db:"city"`
	Status       string    `db:"status"`
	FundAmount   float64   `db:"fund_amount"`
	FundApproved bool      `db:"fund_approved"`
	ContractorID string    `db:"contractor_id"`
	Upvotes      int       `db:"upvotes"`
	Version      int64     `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row issueRow) toEntity() *entity.Issue {
	return &entity.Issue{
		ID:           row.ID,
		UserID:       row.UserID,
		Title:        row.Title,
		Description:  row.Description,
		ImageURL:     row.ImageURL,
		Category:     row.Category,
		Lat:          row.Lat,
		Lng:          row.Lng,
		Address:      row.Address,
		City:         row.City,
		Status:       entity.Status(row.Status),
		FundAmount:   row.FundAmount,
		FundApproved: row.FundApproved,
		ContractorID: row.ContractorID,
		Upvotes:      row.Upvotes,
		Version:      row.Version,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

const issueColumns = `id, user_id, title, description, image_url, category, lat, lng, address, city, status, fund_amount, fund_approved, contractor_id, upvotes, version, created_at, updated_at`

func (r *IssueRepo) Create(ctx context.Context, is *entity.Issue) error {
	if is.CreatedAt.IsZero() {
		is.CreatedAt = time.Now().UTC()
	}
	is.UpdatedAt = is.CreatedAt
	if is.Version == 0 {
		is.Version = 1
	}
	const q = `INSERT INTO issues (` + issueColumns + `)
		VALUES (:id, :user_id, :title, :description, :image_url, :category, :lat, :lng, :address, :city, :status,
		        :fund_amount, :fund_approved, :contractor_id, :upvotes, :version, :created_at, :updated_at)`
	row := issueRow{
		ID: is.ID, UserID: is.UserID, Title: is.Title, Description: is.Description, ImageURL: is.ImageURL,
		Category: is.Category, Lat: is.Lat, Lng: is.Lng, Address: is.Address, City: is.City,
		Status: string(is.Status), FundAmount: is.FundAmount, FundApproved: is.FundApproved,
		ContractorID: is.ContractorID, Upvotes: is.Upvotes, Version: is.Version,
		CreatedAt: is.CreatedAt, UpdatedAt: is.UpdatedAt,
	}
	_, err := sqlx.NamedExecContext(ctx, r.db, q, row)
	return err
}

func (r *IssueRepo) GetByID(ctx context.Context, id string) (*entity.Issue, error) {
	var row issueRow
	if err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+issueColumns+` FROM issues WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("issue %s", id)
		}
		return nil, err
	}
	return row.toEntity(), nil
}

// where builds the WHERE clause from the non-zero filter fields. alias
// qualifies the columns when the query joins other tables.
func where(f entity.Filter, alias string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, alias, len(args)))
	}
	if f.UserID != "" {
		add("%suser_id=$%d", f.UserID)
	}
	if f.ContractorID != "" {
		add("%scontractor_id=$%d", f.ContractorID)
	}
	if f.City != "" {
		add("LOWER(%scity)=LOWER($%d)", f.City)
	}
	if f.Status != "" {
		add("%sstatus=$%d", string(f.Status))
	}
	if f.IDs != nil {
		add("%sid = ANY($%d)", pq.Array(f.IDs))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limit(f entity.Filter) string {
	if f.Limit > 0 {
		return fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return ""
}

func (r *IssueRepo) List(ctx context.Context, f entity.Filter) ([]*entity.Issue, error) {
	cond, args := where(f, "")
	q := `SELECT ` + issueColumns + ` FROM issues` + cond + ` ORDER BY created_at DESC, id DESC` + limit(f)

	var rows []issueRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]*entity.Issue, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

type issueViewRow struct {
	issueRow
	ReporterName      string `db:"reporter_name"`
	ReporterEmail     string `db:"reporter_email"`
	ContractorCompany string `db:"contractor_company"`
}

// ListView is List joined with the reporter and the assigned contractor.
func (r *IssueRepo) ListView(ctx context.Context, f entity.Filter) ([]*entity.IssueView, error) {
	cols := strings.Split(issueColumns, ", ")
	for i, c := range cols {
		cols[i] = "i." + c
	}
	cond, args := where(f, "i.")
	q := `SELECT ` + strings.Join(cols, ", ") + `,
		COALESCE(u.name, '') AS reporter_name, COALESCE(u.email, '') AS reporter_email,
		COALESCE(c.company_name, '') AS contractor_company
		FROM issues i
		LEFT JOIN users u ON u.id = i.user_id
		LEFT JOIN contractors c ON c.id = i.contractor_id` + cond + `
		ORDER BY i.created_at DESC, i.id DESC` + limit(f)

	var rows []issueViewRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]*entity.IssueView, 0, len(rows))
	for _, row := range rows {
		out = append(out, &entity.IssueView{
			Issue:             row.toEntity(),
			Reporter:          entity.Reporter{Name: row.ReporterName, Email: row.ReporterEmail},
			ContractorCompany: row.ContractorCompany,
		})
	}
	return out, nil
}

// Update writes the workflow-owned columns with a compare-and-swap on
// version. Descriptive fields and upvotes are left alone.
func (r *IssueRepo) Update(ctx context.Context, is *entity.Issue) error {
	now := time.Now().UTC()
	const q = `UPDATE issues
		SET status=$3, fund_amount=$4, fund_approved=$5, contractor_id=$6, updated_at=$7, version=version+1
		WHERE id=$1 AND version=$2`
	res, err := r.db.ExecContext(ctx, q, is.ID, is.Version, string(is.Status), is.FundAmount, is.FundApproved, is.ContractorID, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.Conflict("issue %s was modified concurrently", is.ID)
	}
	is.Version++
	is.UpdatedAt = now
	return nil
}

// Upvote increments the counter in place without touching the version, so
// it never races with workflow transitions.
func (r *IssueRepo) Upvote(ctx context.Context, id string) (*entity.Issue, error) {
	var row issueRow
	const q = `UPDATE issues SET upvotes = upvotes + 1 WHERE id=$1 RETURNING ` + issueColumns
	if err := sqlx.GetContext(ctx, r.db, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("issue %s", id)
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *IssueRepo) CountByStatus(ctx context.Context, f entity.Filter) (map[entity.Status]int, error) {
	var rows []struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	cond, args := where(f, "")
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT status AS key, COUNT(*) AS count FROM issues`+cond+` GROUP BY status`, args...); err != nil {
		return nil, err
	}
	out := make(map[entity.Status]int, len(rows))
	for _, row := range rows {
		out[entity.Status(row.Key)] = row.Count
	}
	return out, nil
}

func (r *IssueRepo) CountByCategory(ctx context.Context, f entity.Filter) (map[string]int, error) {
	var rows []struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	cond, args := where(f, "")
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT category AS key, COUNT(*) AS count FROM issues`+cond+` GROUP BY category`, args...); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}
