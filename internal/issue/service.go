package issue

import (
	"context"
	"io"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/geo"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
	uentity "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/utilities"
)

// IssueService handles the descriptive side of issues: reporting, reading
// and upvoting. Status changes belong to the workflow engine.
type IssueService struct {
	store        storage.Store
	geocoder     geo.Geocoder
	media        media.Store
	logger       *zap.SugaredLogger
	reportPoints int
	now          func() time.Time
}

func NewIssueService(store storage.Store, geocoder geo.Geocoder, mediaStore media.Store, reportPoints int, logger *zap.SugaredLogger) *IssueService {
	return &IssueService{
		store:        store,
		geocoder:     geocoder,
		media:        mediaStore,
		logger:       logger,
		reportPoints: reportPoints,
		now:          time.Now,
	}
}

// CreateInput is a new report. Image is optional.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Lat         float64
	Lng         float64
	Address     string
	ImageName   string
	Image       io.Reader
}

func (in *CreateInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	switch {
	case in.Title == "":
		return apperror.Validation("title is required")
	case in.Description == "":
		return apperror.Validation("description is required")
	case math.IsNaN(in.Lat) || in.Lat < -90 || in.Lat > 90:
		return apperror.Validation("lat must be within [-90, 90]")
	case math.IsNaN(in.Lng) || in.Lng < -180 || in.Lng > 180:
		return apperror.Validation("lng must be within [-180, 180]")
	}
	if in.Category == "" {
		in.Category = entity.DefaultCategory
	}
	return nil
}

// Create files a report for a citizen and credits the reporter's impact
// points in the same transaction. Geocoding failures fall back to
// geo.UnknownCity.
func (s *IssueService) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*entity.Issue, error) {
	if actor.Role != uentity.RoleCitizen {
		return nil, apperror.Unauthorized("only citizens can report issues")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	var imageURL string
	if in.Image != nil {
		ref, err := s.media.Save(ctx, in.ImageName, in.Image)
		if err != nil {
			return nil, err
		}
		imageURL = ref
	}
	now := s.now().UTC()
	is := &entity.Issue{
		ID:          utilities.NewID(),
		UserID:      actor.SubjectID,
		Title:       in.Title,
		Description: in.Description,
		ImageURL:    imageURL,
		Category:    in.Category,
		Lat:         in.Lat,
		Lng:         in.Lng,
		Address:     strings.TrimSpace(in.Address),
		City:        s.geocoder.City(ctx, in.Lat, in.Lng),
		Status:      entity.StatusReported,
		CreatedAt:   now,
	}
	err := s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.Issues().Create(ctx, is); err != nil {
			return err
		}
		if err := tx.Activities().Append(ctx, &entity.Activity{
			ID:          utilities.NewKSUID(),
			IssueID:     is.ID,
			Action:      entity.ActionCreated,
			PerformedBy: actor.SubjectID,
			ToStatus:    entity.StatusReported,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if s.reportPoints == 0 {
			return nil
		}
		_, err := tx.Users().AddImpactPoints(ctx, actor.SubjectID, s.reportPoints)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("issue reported", "issue", is.ID, "user", actor.SubjectID, "city", is.City, "category", is.Category)
	return is, nil
}

// List returns all issues with their reporter and contractor, newest first.
// Admins bound to a city only see that city.
func (s *IssueService) List(ctx context.Context, actor auth.Actor) ([]*entity.IssueView, error) {
	return s.store.Issues().ListView(ctx, cityScope(actor))
}

func cityScope(actor auth.Actor) entity.Filter {
	var f entity.Filter
	if actor.Role == uentity.RoleAdmin && actor.City != "" {
		f.City = actor.City
	}
	return f
}

// Mine returns the caller's own reports.
func (s *IssueService) Mine(ctx context.Context, actor auth.Actor) ([]*entity.Issue, error) {
	return s.store.Issues().List(ctx, entity.Filter{UserID: actor.SubjectID})
}

func (s *IssueService) Get(ctx context.Context, id string) (*entity.Issue, error) {
	return s.store.Issues().GetByID(ctx, id)
}

// Upvote bumps the counter. It never touches the issue version, so it does
// not conflict with transitions.
func (s *IssueService) Upvote(ctx context.Context, actor auth.Actor, id string) (*entity.Issue, error) {
	var out *entity.Issue
	err := s.store.InTx(ctx, func(tx storage.Store) error {
		is, err := tx.Issues().Upvote(ctx, id)
		if err != nil {
			return err
		}
		out = is
		return tx.Activities().Append(ctx, &entity.Activity{
			ID:          utilities.NewKSUID(),
			IssueID:     id,
			Action:      entity.ActionUpvote,
			PerformedBy: actor.SubjectID,
			CreatedAt:   s.now().UTC(),
		})
	})
	return out, err
}

// History returns the audit trail of an issue, oldest first.
func (s *IssueService) History(ctx context.Context, id string) ([]*entity.Activity, error) {
	if _, err := s.store.Issues().GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Activities().ListByIssue(ctx, id)
}
