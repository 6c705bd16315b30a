package contractor

import (
	"context"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
	uentity "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
)

// Self is the path alias a contractor uses for its own profile.
const Self = "me"

type ContractorService struct {
	store  storage.Store
	logger *zap.SugaredLogger
}

func NewContractorService(store storage.Store, logger *zap.SugaredLogger) *ContractorService {
	return &ContractorService{store: store, logger: logger}
}

// List returns every contractor ordered by sortBy, rating when empty.
func (s *ContractorService) List(ctx context.Context, sortBy string) ([]*entity.Contractor, error) {
	key := entity.SortKey(sortBy)
	if key == "" {
		key = entity.SortByRating
	}
	if !key.Valid() {
		return nil, apperror.Validation("cannot sort contractors by %q", sortBy)
	}
	return s.store.Contractors().List(ctx, key)
}

// Profile returns the caller's contractor record.
func (s *ContractorService) Profile(ctx context.Context, actor auth.Actor) (*entity.Contractor, error) {
	if actor.Role != uentity.RoleContractor {
		return nil, apperror.Unauthorized("only contractors have a profile")
	}
	return s.store.Contractors().GetByUserID(ctx, actor.SubjectID)
}

// AssignedTasks returns the issues of a contractor's backlog in backlog
// order. Contractors may only read their own; admins may read any.
func (s *ContractorService) AssignedTasks(ctx context.Context, actor auth.Actor, contractorID string) ([]*ientity.Issue, error) {
	var (
		c   *entity.Contractor
		err error
	)
	switch {
	case contractorID == Self:
		c, err = s.Profile(ctx, actor)
	case actor.IsAdmin():
		c, err = s.store.Contractors().GetByID(ctx, contractorID)
	case actor.Role == uentity.RoleContractor:
		c, err = s.store.Contractors().GetByUserID(ctx, actor.SubjectID)
		if err == nil && c.ID != contractorID {
			err = apperror.Unauthorized("contractors can only list their own tasks")
		}
	default:
		err = apperror.Unauthorized("%s cannot list contractor tasks", actor.Role)
	}
	if err != nil {
		return nil, err
	}
	if len(c.AssignedTasks) == 0 {
		return []*ientity.Issue{}, nil
	}
	issues, err := s.store.Issues().List(ctx, ientity.Filter{IDs: c.AssignedTasks})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*ientity.Issue, len(issues))
	for _, is := range issues {
		byID[is.ID] = is
	}
	out := make([]*ientity.Issue, 0, len(c.AssignedTasks))
	for _, id := range c.AssignedTasks {
		if is, ok := byID[id]; ok {
			out = append(out, is)
		}
	}
	return out, nil
}
