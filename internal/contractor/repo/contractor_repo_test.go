package repo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
)

var cols = []string{"id", "user_id", "company_name", "rating", "completed_tasks", "efficiency", "cost_per_task", "assigned_tasks", "version", "created_at", "updated_at"}

func newMock(t *testing.T) (*ContractorRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewContractorRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestGetByIDDecodesBacklog(t *testing.T) {
	r, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM contractors WHERE id=$1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", "u1", "Acme", 4.5, 3, 90, 1000, "{i1,i2}", 4, now, now))

	c, err := r.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, entity.Backlog{"i1", "i2"}, c.AssignedTasks)
	assert.Equal(t, int64(4), c.Version)
}

func TestGetByUserIDNotFound(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM contractors WHERE user_id=$1")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := r.GetByUserID(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListUsesSortColumn(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY cost_per_task ASC, id")).
		WillReturnRows(sqlmock.NewRows(cols))

	out, err := r.List(context.Background(), entity.SortByCostPerTask)
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBumpsVersion(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec("UPDATE contractors").WillReturnResult(sqlmock.NewResult(0, 1))

	c := &entity.Contractor{ID: "c1", Version: 2}
	require.NoError(t, r.Update(context.Background(), c))
	assert.Equal(t, int64(3), c.Version)
}

func TestUpdateStaleVersionIsConflict(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec("UPDATE contractors").WillReturnResult(sqlmock.NewResult(0, 0))

	c := &entity.Contractor{ID: "c1", Version: 2}
	err := r.Update(context.Background(), c)
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, int64(2), c.Version)
}

func TestCountWithBacklog(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery("cardinality").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := r.CountWithBacklog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
