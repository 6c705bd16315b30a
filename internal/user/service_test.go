package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage/memory"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
)

func newService(t *testing.T) (*UserService, *memory.Store, *auth.TokenIssuer) {
	t.Helper()
	st := memory.New()
	tokens := auth.NewTokenIssuer(auth.Config{Secret: "test", Issuer: "test", TTL: time.Hour})
	return NewUserService(st, tokens, BcryptHasher{Cost: bcrypt.MinCost}, zap.NewNop().Sugar()), st, tokens
}

func TestRegisterCitizen(t *testing.T) {
	svc, _, _ := newService(t)
	u, err := svc.Register(context.Background(), RegisterInput{Name: "Asha", Email: " Asha@Example.org ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleCitizen, u.Role)
	assert.Equal(t, "asha@example.org", u.Email)
	assert.Equal(t, 1, u.CitizenLevel)
	assert.NotEqual(t, "secret1", u.PasswordHash)
}

func TestRegisterContractorCreatesProfile(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, RegisterInput{Name: "Ravi", Email: "ravi@acme.org", Password: "secret1", Role: entity.RoleContractor, CompanyName: "Acme Roads"})
	require.NoError(t, err)

	c, err := st.Contractors().GetByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Roads", c.CompanyName)
	assert.Empty(t, c.AssignedTasks)
}

func TestRegisterContractorIsAtomic(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	st.FailNext(memory.OpContractorCreate, errors.New("db down"))

	_, err := svc.Register(ctx, RegisterInput{Name: "Ravi", Email: "ravi@acme.org", Password: "secret1", Role: entity.RoleContractor})
	require.Error(t, err)

	_, err = st.Users().GetByEmail(ctx, "ravi@acme.org")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRegisterRejects(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"admin role", RegisterInput{Name: "A", Email: "a@x.org", Password: "secret1", Role: entity.RoleAdmin}, apperror.ErrUnauthorized},
		{"superadmin role", RegisterInput{Name: "A", Email: "a@x.org", Password: "secret1", Role: entity.RoleSuperadmin}, apperror.ErrUnauthorized},
		{"unknown role", RegisterInput{Name: "A", Email: "a@x.org", Password: "secret1", Role: "mayor"}, apperror.ErrValidation},
		{"bad email", RegisterInput{Name: "A", Email: "nope", Password: "secret1"}, apperror.ErrValidation},
		{"short password", RegisterInput{Name: "A", Email: "a@x.org", Password: "123"}, apperror.ErrValidation},
		{"no name", RegisterInput{Email: "a@x.org", Password: "secret1"}, apperror.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "dup@x.org", Password: "secret1"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Name: "B", Email: "DUP@x.org", Password: "secret1"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestLogin(t *testing.T) {
	svc, _, tokens := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, RegisterInput{Name: "Asha", Email: "asha@example.org", Password: "secret1"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "ASHA@example.org", "secret1")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	actor, err := tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, actor.SubjectID)
	assert.Equal(t, entity.RoleCitizen, actor.Role)

	_, err = svc.Login(ctx, "asha@example.org", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = svc.Login(ctx, "ghost@example.org", "secret1")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestCreateAdmin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	super, err := svc.CreateSuperadmin(ctx, "Root", "root@city.org", "rootpass")
	require.NoError(t, err)
	superActor := auth.Actor{SubjectID: super.ID, Role: entity.RoleSuperadmin}

	_, err = svc.CreateAdmin(ctx, auth.Actor{SubjectID: "x", Role: entity.RoleAdmin}, AdminInput{Name: "A", Email: "a@city.org", Password: "secret1", City: "Pune"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.CreateAdmin(ctx, superActor, AdminInput{Name: "A", Email: "a@city.org", Password: "secret1"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	a, err := svc.CreateAdmin(ctx, superActor, AdminInput{Name: "A", Email: "a@city.org", Password: "secret1", City: " Pune "})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, a.Role)
	assert.Equal(t, "Pune", a.City)

	me, err := svc.Me(ctx, auth.Actor{SubjectID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, a.ID, me.ID)
}

func TestUpdateProfile(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, RegisterInput{Name: "Asha", Email: "asha@x.org", Password: "secret1"})
	require.NoError(t, err)
	actor := auth.Actor{SubjectID: u.ID, Role: entity.RoleCitizen}

	got, err := svc.UpdateProfile(ctx, actor, ProfileInput{Phone: " +91 98765-43210 "})
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, "+91 98765-43210", got.Phone)

	got, err = svc.UpdateProfile(ctx, actor, ProfileInput{Name: "Asha K"})
	require.NoError(t, err)
	assert.Equal(t, "Asha K", got.Name)
	assert.Equal(t, "+91 98765-43210", got.Phone)

	stored, err := st.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha K", stored.Name)
	assert.Equal(t, "asha@x.org", stored.Email)
}

func TestUpdateProfileRejects(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, RegisterInput{Name: "Asha", Email: "asha@x.org", Password: "secret1"})
	require.NoError(t, err)
	actor := auth.Actor{SubjectID: u.ID, Role: entity.RoleCitizen}

	_, err = svc.UpdateProfile(ctx, actor, ProfileInput{Name: "  "})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.UpdateProfile(ctx, actor, ProfileInput{Phone: "call me"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.UpdateProfile(ctx, auth.Actor{SubjectID: "ghost", Role: entity.RoleCitizen}, ProfileInput{Name: "x"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
