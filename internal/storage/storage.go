// Package storage defines the persistence contract of the civic service.
// Implementations live in storage/postgres and storage/memory. Lookups of
// absent records return errors wrapping apperror.ErrNotFound; updates that
// lose an optimistic version race return errors wrapping apperror.ErrConflict.
package storage

import (
	"context"

	centity "github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	uentity "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
)

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, u *uentity.User) error
	GetByID(ctx context.Context, id string) (*uentity.User, error)
	GetByEmail(ctx context.Context, email string) (*uentity.User, error)
	// AddImpactPoints atomically adds points and recomputes the citizen level.
	AddImpactPoints(ctx context.Context, id string, points int) (*uentity.User, error)
	// UpdateProfile writes the self-editable fields (name, phone).
	UpdateProfile(ctx context.Context, u *uentity.User) error
}

// ContractorRepository persists contractor profiles.
type ContractorRepository interface {
	Create(ctx context.Context, c *centity.Contractor) error
	GetByID(ctx context.Context, id string) (*centity.Contractor, error)
	GetByUserID(ctx context.Context, userID string) (*centity.Contractor, error)
	List(ctx context.Context, sortBy centity.SortKey) ([]*centity.Contractor, error)
	// Update writes c if its Version still matches the stored row and bumps
	// c.Version on success.
	Update(ctx context.Context, c *centity.Contractor) error
	CountWithBacklog(ctx context.Context) (int, error)
}

// IssueRepository persists issues.
type IssueRepository interface {
	Create(ctx context.Context, is *ientity.Issue) error
	GetByID(ctx context.Context, id string) (*ientity.Issue, error)
	// List returns matching issues ordered by creation time, newest first.
	List(ctx context.Context, f ientity.Filter) ([]*ientity.Issue, error)
	// ListView is List with the reporter's name and email and the
	// contractor's company name filled in.
	ListView(ctx context.Context, f ientity.Filter) ([]*ientity.IssueView, error)
	// Update writes the workflow fields (status, fund amount/approval,
	// contractor) if is.Version matches and bumps is.Version on success.
	Update(ctx context.Context, is *ientity.Issue) error
	Upvote(ctx context.Context, id string) (*ientity.Issue, error)
	// CountByStatus and CountByCategory count issues matching f. f.Limit is ignored.
	CountByStatus(ctx context.Context, f ientity.Filter) (map[ientity.Status]int, error)
	CountByCategory(ctx context.Context, f ientity.Filter) (map[string]int, error)
}

// ActivityRepository persists the issue audit trail.
type ActivityRepository interface {
	Append(ctx context.Context, a *ientity.Activity) error
	ListByIssue(ctx context.Context, issueID string) ([]*ientity.Activity, error)
}

// Store groups the repositories and provides transactions spanning them.
type Store interface {
	Users() UserRepository
	Contractors() ContractorRepository
	Issues() IssueRepository
	Activities() ActivityRepository
	// InTx runs fn against a transactional view of the store. Writes made
	// through tx are committed when fn returns nil and discarded otherwise.
	// Calling InTx on tx runs fn in the same transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
