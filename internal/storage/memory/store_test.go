package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	centity "github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
	uentity "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
)

func TestUserEmailUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Users().Create(ctx, &uentity.User{ID: "u1", Email: "a@x.org", Role: uentity.RoleCitizen}))
	err := s.Users().Create(ctx, &uentity.User{ID: "u2", Email: "a@x.org", Role: uentity.RoleCitizen})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	u, err := s.Users().GetByEmail(ctx, "a@x.org")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, 1, u.CitizenLevel)
}

func TestAddImpactPointsRaisesLevel(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Users().Create(ctx, &uentity.User{ID: "u1", Email: "a@x.org", ImpactPoints: 95}))
	u, err := s.Users().AddImpactPoints(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 105, u.ImpactPoints)
	assert.Equal(t, 2, u.CitizenLevel)
}

func TestReturnedEntitiesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Contractors().Create(ctx, &centity.Contractor{ID: "c1", UserID: "u1"}))
	c, err := s.Contractors().GetByID(ctx, "c1")
	require.NoError(t, err)
	c.AssignedTasks.Add("i1")

	again, err := s.Contractors().GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, again.AssignedTasks)
}

func TestContractorUpdateCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Contractors().Create(ctx, &centity.Contractor{ID: "c1", UserID: "u1"}))
	a, _ := s.Contractors().GetByID(ctx, "c1")
	b, _ := s.Contractors().GetByID(ctx, "c1")

	a.AssignedTasks.Add("i1")
	require.NoError(t, s.Contractors().Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.CompletedTasks = 9
	assert.ErrorIs(t, s.Contractors().Update(ctx, b), apperror.ErrConflict)

	n, err := s.Contractors().CountWithBacklog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIssueUpdateKeepsUpvotes(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Issues().Create(ctx, &ientity.Issue{ID: "i1", Status: ientity.StatusReported}))
	is, _ := s.Issues().GetByID(ctx, "i1")
	_, err := s.Issues().Upvote(ctx, "i1")
	require.NoError(t, err)

	is.Status = ientity.StatusAssigned
	is.ContractorID = "c1"
	require.NoError(t, s.Issues().Update(ctx, is))

	got, _ := s.Issues().GetByID(ctx, "i1")
	assert.Equal(t, 1, got.Upvotes)
	assert.Equal(t, ientity.StatusAssigned, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestIssueListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Issues().Create(ctx, &ientity.Issue{ID: "i1", UserID: "u1", City: "Pune", CreatedAt: base}))
	require.NoError(t, s.Issues().Create(ctx, &ientity.Issue{ID: "i2", UserID: "u2", City: "pune", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.Issues().Create(ctx, &ientity.Issue{ID: "i3", UserID: "u1", City: "Delhi", CreatedAt: base.Add(2 * time.Hour)}))

	out, err := s.Issues().List(ctx, ientity.Filter{City: "PUNE"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "i2", out[0].ID)
	assert.Equal(t, "i1", out[1].ID)

	out, err = s.Issues().List(ctx, ientity.Filter{IDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx storage.Store) error {
		require.NoError(t, tx.Issues().Create(ctx, &ientity.Issue{ID: "i1"}))
		require.NoError(t, tx.Activities().Append(ctx, &ientity.Activity{ID: "a1", IssueID: "i1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Issues().GetByID(ctx, "i1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	acts, err := s.Activities().ListByIssue(ctx, "i1")
	require.NoError(t, err)
	assert.Empty(t, acts)
}

func TestFailNextInsideTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Issues().Create(ctx, &ientity.Issue{ID: "i1", Status: ientity.StatusReported}))
	s.FailNext(OpActivityAppend, errors.New("disk full"))

	err := s.InTx(ctx, func(tx storage.Store) error {
		is, err := tx.Issues().GetByID(ctx, "i1")
		if err != nil {
			return err
		}
		is.Status = ientity.StatusAssigned
		if err := tx.Issues().Update(ctx, is); err != nil {
			return err
		}
		return tx.Activities().Append(ctx, &ientity.Activity{ID: "a1", IssueID: "i1"})
	})
	require.EqualError(t, err, "disk full")

	got, _ := s.Issues().GetByID(ctx, "i1")
	assert.Equal(t, ientity.StatusReported, got.Status)
	assert.Equal(t, int64(1), got.Version)

	// the fault is consumed
	require.NoError(t, s.Activities().Append(ctx, &ientity.Activity{ID: "a2", IssueID: "i1"}))
}
