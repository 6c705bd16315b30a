// Package postgres composes the sqlx repositories into a storage.Store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	crepo "github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/repo"
	irepo "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/repo"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
	urepo "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/repo"
)

type Store struct {
	db          *sqlx.DB
	tx          *sqlx.Tx
	users       *urepo.UserRepo
	contractors *crepo.ContractorRepo
	issues      *irepo.IssueRepo
	activities  *irepo.ActivityRepo
}

var _ storage.Store = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{
		db:          db,
		users:       urepo.NewUserRepo(db),
		contractors: crepo.NewContractorRepo(db),
		issues:      irepo.NewIssueRepo(db),
		activities:  irepo.NewActivityRepo(db),
	}
}

func newTxStore(db *sqlx.DB, tx *sqlx.Tx) *Store {
	return &Store{
		db:          db,
		tx:          tx,
		users:       urepo.NewUserRepo(tx),
		contractors: crepo.NewContractorRepo(tx),
		issues:      irepo.NewIssueRepo(tx),
		activities:  irepo.NewActivityRepo(tx),
	}
}

func (s *Store) Users() storage.UserRepository             { return s.users }
func (s *Store) Contractors() storage.ContractorRepository { return s.contractors }
func (s *Store) Issues() storage.IssueRepository           { return s.issues }
func (s *Store) Activities() storage.ActivityRepository    { return s.activities }

// InTx runs fn inside a database transaction. Nested calls reuse the
// enclosing transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(newTxStore(s.db, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// EnsureSchema creates all tables in dependency order.
func (s *Store) EnsureSchema(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", s.users.EnsureTable},
		{"contractors", s.contractors.EnsureTable},
		{"issues", s.issues.EnsureTable},
		{"issue_activities", s.activities.EnsureTable},
	}
	for _, st := range steps {
		if err := st.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s table: %w", st.name, err)
		}
	}
	return nil
}
