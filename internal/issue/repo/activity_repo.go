package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
)

// ActivityRepo stores the append-only issue history.
type ActivityRepo struct {
	db sqlx.ExtContext
}

func NewActivityRepo(db sqlx.ExtContext) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS issue_activities (
  id VARCHAR(32) PRIMARY KEY,
  issue_id VARCHAR(32) NOT NULL REFERENCES issues(id),
  action TEXT NOT NULL,
  performed_by VARCHAR(32) NOT NULL,
  from_status TEXT NOT NULL DEFAULT '',
  to_status TEXT NOT NULL DEFAULT '',
  detail TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_issue_activities_issue ON issue_activities(issue_id, created_at);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type activityRow struct {
	ID          string    `db:"id"`
	IssueID     string    `db:"issue_id"`
	Action      string    `db:"action"`
	PerformedBy string    `db:"performed_by"`
	FromStatus  string    `db:"from_status"`
	ToStatus    string    `db:"to_status"`
	Detail      string    `db:"detail"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *ActivityRepo) Append(ctx context.Context, a *entity.Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO issue_activities (id, issue_id, action, performed_by, from_status, to_status, detail, created_at)
		VALUES (:id, :issue_id, :action, :performed_by, :from_status, :to_status, :detail, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, activityRow{
		ID:          a.ID,
		IssueID:     a.IssueID,
		Action:      a.Action,
		PerformedBy: a.PerformedBy,
		FromStatus:  string(a.FromStatus),
		ToStatus:    string(a.ToStatus),
		Detail:      a.Detail,
		CreatedAt:   a.CreatedAt,
	})
	return err
}

// ListByIssue returns the history oldest first.
func (r *ActivityRepo) ListByIssue(ctx context.Context, issueID string) ([]*entity.Activity, error) {
	var rows []activityRow
	const q = `SELECT id, issue_id, action, performed_by, from_status, to_status, detail, created_at
		FROM issue_activities WHERE issue_id=$1 ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, r.db, &rows, q, issueID); err != nil {
		return nil, err
	}
	out := make([]*entity.Activity, 0, len(rows))
	for _, row := range rows {
		out = append(out, &entity.Activity{
			ID:          row.ID,
			IssueID:     row.IssueID,
			Action:      row.Action,
			PerformedBy: row.PerformedBy,
			FromStatus:  entity.Status(row.FromStatus),
			ToStatus:    entity.Status(row.ToStatus),
			Detail:      row.Detail,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}
