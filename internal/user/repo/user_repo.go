package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
)

// UserRepo provides data access for the users table using sqlx. It accepts
// either a *sqlx.DB or a *sqlx.Tx.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id VARCHAR(32) PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL UNIQUE,
  phone TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'citizen' CHECK (role IN ('citizen','contractor','admin','superadmin')),
  city TEXT NOT NULL DEFAULT '',
  impact_points INT NOT NULL DEFAULT 0,
  citizen_level INT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE users ADD COLUMN IF NOT EXISTS phone TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Phone        string    `db:"phone"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	City         string    `db:"city"`
	ImpactPoints int       `db:"impact_points"`
	CitizenLevel int       `db:"citizen_level"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row userRow) toEntity() *entity.User {
	return &entity.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Phone:        row.Phone,
		PasswordHash: row.PasswordHash,
		Role:         entity.Role(row.Role),
		City:         row.City,
		ImpactPoints: row.ImpactPoints,
		CitizenLevel: row.CitizenLevel,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

const userColumns = `id, name, email, phone, password_hash, role, city, impact_points, citizen_level, created_at, updated_at`

// Create inserts a new user row. u.ID must already be set.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	if u.CitizenLevel == 0 {
		u.CitizenLevel = entity.LevelFor(u.ImpactPoints)
	}
	const q = `INSERT INTO users (id, name, email, phone, password_hash, role, city, impact_points, citizen_level, created_at, updated_at)
		VALUES (:id, :name, :email, :phone, :password_hash, :role, :city, :impact_points, :citizen_level, :created_at, :updated_at)`
	row := userRow{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		City:         u.City,
		ImpactPoints: u.ImpactPoints,
		CitizenLevel: u.CitizenLevel,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, row); err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email %s already registered", u.Email)
		}
		return err
	}
	return nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByEmail returns a user matched by (lower-cased) email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

// AddImpactPoints increments the counter atomically and returns the new row.
// The level is derived in the same statement so it can never go down.
func (r *UserRepo) AddImpactPoints(ctx context.Context, id string, points int) (*entity.User, error) {
	const q = `UPDATE users
		SET impact_points = impact_points + $2,
		    citizen_level = GREATEST(citizen_level, (impact_points + $2) / $3 + 1),
		    updated_at = NOW()
		WHERE id=$1 RETURNING ` + userColumns
	return r.getOne(ctx, q, id, points, entity.PointsPerLevel)
}

// UpdateProfile writes name and phone and refreshes u from the stored row.
func (r *UserRepo) UpdateProfile(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET name=$2, phone=$3, updated_at=NOW() WHERE id=$1 RETURNING ` + userColumns
	got, err := r.getOne(ctx, q, u.ID, u.Name, u.Phone)
	if err != nil {
		return err
	}
	*u = *got
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*entity.User, error) {
	var row userRow
	if err := sqlx.GetContext(ctx, r.db, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user %v", args[0])
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
