package issue

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	centity "github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/geo"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage/memory"
	uentity "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
)

type fakeMedia struct {
	saved []string
	err   error
}

func (m *fakeMedia) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	_, _ = io.Copy(io.Discard, r)
	m.saved = append(m.saved, name)
	return media.URLPrefix + name, nil
}

var (
	citizen = auth.Actor{SubjectID: "citizen", Role: uentity.RoleCitizen}
	admin   = auth.Actor{SubjectID: "admin", Role: uentity.RoleAdmin}
)

func newService(t *testing.T, city string) (*IssueService, *memory.Store, *fakeMedia) {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.Users().Create(context.Background(), &uentity.User{ID: "citizen", Email: "c@x.org", Role: uentity.RoleCitizen}))
	m := &fakeMedia{}
	return NewIssueService(st, geo.Static(city), m, 10, zap.NewNop().Sugar()), st, m
}

func validInput() CreateInput {
	return CreateInput{Title: " Pothole ", Description: "Deep hole near school", Lat: 18.52, Lng: 73.85, Address: "FC Road"}
}

func TestCreateIssue(t *testing.T) {
	svc, st, m := newService(t, "Pune")
	ctx := context.Background()
	in := validInput()
	in.Image = bytes.NewReader([]byte("jpeg"))
	in.ImageName = "hole.jpg"

	is, err := svc.Create(ctx, citizen, in)
	require.NoError(t, err)
	assert.Equal(t, "Pothole", is.Title)
	assert.Equal(t, entity.DefaultCategory, is.Category)
	assert.Equal(t, "Pune", is.City)
	assert.Equal(t, entity.StatusReported, is.Status)
	assert.Equal(t, "/uploads/hole.jpg", is.ImageURL)
	assert.Equal(t, []string{"hole.jpg"}, m.saved)
	assert.Zero(t, is.FundAmount)
	assert.False(t, is.FundApproved)

	u, err := st.Users().GetByID(ctx, "citizen")
	require.NoError(t, err)
	assert.Equal(t, 10, u.ImpactPoints)

	hist, err := svc.History(ctx, is.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, entity.ActionCreated, hist[0].Action)
}

func TestCreateIssueUnknownCity(t *testing.T) {
	svc, _, _ := newService(t, geo.UnknownCity)
	is, err := svc.Create(context.Background(), citizen, validInput())
	require.NoError(t, err)
	assert.Equal(t, geo.UnknownCity, is.City)
}

func TestCreateIssueRejects(t *testing.T) {
	svc, _, _ := newService(t, "Pune")
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, validInput())
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	for name, mutate := range map[string]func(*CreateInput){
		"no title":       func(in *CreateInput) { in.Title = "  " },
		"no description": func(in *CreateInput) { in.Description = "" },
		"lat range":      func(in *CreateInput) { in.Lat = 91 },
		"lng range":      func(in *CreateInput) { in.Lng = -181 },
	} {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := svc.Create(ctx, citizen, in)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestCreateIssueRollsBackPoints(t *testing.T) {
	svc, st, _ := newService(t, "Pune")
	ctx := context.Background()
	st.FailNext(memory.OpUserAddPoints, errors.New("db down"))

	_, err := svc.Create(ctx, citizen, validInput())
	require.Error(t, err)

	all, err := st.Issues().List(ctx, entity.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateIssueImageFailure(t *testing.T) {
	svc, st, m := newService(t, "Pune")
	m.err = apperror.Validation("only jpg, jpeg and png images are allowed")
	in := validInput()
	in.Image = strings.NewReader("x")
	in.ImageName = "x.gif"

	_, err := svc.Create(context.Background(), citizen, in)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	all, _ := st.Issues().List(context.Background(), entity.Filter{})
	assert.Empty(t, all)
}

func TestListScopesCityAdmins(t *testing.T) {
	svc, st, _ := newService(t, "Pune")
	ctx := context.Background()
	require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: "p", UserID: "citizen", City: "Pune", Status: entity.StatusReported}))
	require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: "d", UserID: "other", City: "Delhi", Status: entity.StatusReported}))

	out, err := svc.List(ctx, auth.Actor{SubjectID: "a", Role: uentity.RoleAdmin, City: "Delhi"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "d", out[0].ID)

	out, err = svc.List(ctx, auth.Actor{SubjectID: "s", Role: uentity.RoleSuperadmin, City: "Delhi"})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	mine, err := svc.Mine(ctx, citizen)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "p", mine[0].ID)
}

func TestUpvote(t *testing.T) {
	svc, st, _ := newService(t, "Pune")
	ctx := context.Background()
	require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: "i1", Status: entity.StatusReported}))

	is, err := svc.Upvote(ctx, citizen, "i1")
	require.NoError(t, err)
	assert.Equal(t, 1, is.Upvotes)
	assert.Equal(t, int64(1), is.Version)

	_, err = svc.Upvote(ctx, citizen, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.History(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestStats(t *testing.T) {
	svc, st, _ := newService(t, "Pune")
	ctx := context.Background()
	for id, s := range map[string]entity.Status{
		"a": entity.StatusReported,
		"b": entity.StatusInProgress,
		"c": entity.StatusResolved,
		"d": entity.StatusClosed,
		"e": entity.StatusAssigned,
	} {
		require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: id, Status: s, Category: "Roads"}))
	}
	require.NoError(t, st.Contractors().Create(ctx, &centity.Contractor{ID: "c1", UserID: "u1", AssignedTasks: centity.Backlog{"e"}}))
	require.NoError(t, st.Contractors().Create(ctx, &centity.Contractor{ID: "c2", UserID: "u2"}))

	_, err := svc.Stats(ctx, citizen)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	got, err := svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 5, got.TotalIssues)
	assert.Equal(t, 3, got.OpenIssues)
	assert.Equal(t, 1, got.ResolvedIssues)
	assert.Equal(t, 1, got.InProgressIssues)
	assert.Equal(t, 1, got.ActiveContractors)
	assert.Equal(t, 5, got.ByCategory["Roads"])
	assert.Equal(t, 0, got.ByStatus[entity.StatusFundApprovalPending])
	assert.Len(t, got.ByStatus, len(entity.Statuses))
}

func TestListIncludesReporterAndContractor(t *testing.T) {
	svc, st, _ := newService(t, "Pune")
	ctx := context.Background()
	require.NoError(t, st.Users().Create(ctx, &uentity.User{ID: "asha", Name: "Asha", Email: "asha@x.org", Role: uentity.RoleCitizen}))
	require.NoError(t, st.Contractors().Create(ctx, &centity.Contractor{ID: "c1", UserID: "u1", CompanyName: "Acme Roads"}))
	require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: "i1", UserID: "asha", ContractorID: "c1", Status: entity.StatusAssigned}))
	require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: "i2", UserID: "gone", Status: entity.StatusReported}))

	out, err := svc.List(ctx, admin)
	require.NoError(t, err)
	require.Len(t, out, 2)
	byID := map[string]*entity.IssueView{}
	for _, v := range out {
		byID[v.ID] = v
	}
	assert.Equal(t, entity.Reporter{Name: "Asha", Email: "asha@x.org"}, byID["i1"].Reporter)
	assert.Equal(t, "Acme Roads", byID["i1"].ContractorCompany)
	assert.Equal(t, entity.Reporter{}, byID["i2"].Reporter)
	assert.Empty(t, byID["i2"].ContractorCompany)
}

func TestStatsScopesCityAdmins(t *testing.T) {
	svc, st, _ := newService(t, "Pune")
	ctx := context.Background()
	require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: "p1", City: "Pune", Category: "Roads", Status: entity.StatusReported}))
	require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: "p2", City: "pune", Category: "Water", Status: entity.StatusResolved}))
	require.NoError(t, st.Issues().Create(ctx, &entity.Issue{ID: "d1", City: "Delhi", Category: "Roads", Status: entity.StatusReported}))

	got, err := svc.Stats(ctx, auth.Actor{SubjectID: "a", Role: uentity.RoleAdmin, City: "Pune"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalIssues)
	assert.Equal(t, 1, got.OpenIssues)
	assert.Equal(t, 1, got.ResolvedIssues)
	assert.Equal(t, map[string]int{"Roads": 1, "Water": 1}, got.ByCategory)

	got, err = svc.Stats(ctx, auth.Actor{SubjectID: "s", Role: uentity.RoleSuperadmin})
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalIssues)
	assert.Equal(t, 2, got.ByCategory["Roads"])
}
