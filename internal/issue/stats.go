package issue

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
)

// Stats is the admin dashboard summary.
type Stats struct {
	TotalIssues       int                   `json:"totalIssues"`
	OpenIssues        int                   `json:"openIssues"`
	ResolvedIssues    int                   `json:"resolvedIssues"`
	InProgressIssues  int                   `json:"inProgressIssues"`
	ActiveContractors int                   `json:"activeContractors"`
	ByStatus          map[entity.Status]int `json:"byStatus"`
	ByCategory        map[string]int        `json:"byCategory"`
}

// Stats runs the independent counts concurrently. Issue counts for an admin
// bound to a city cover that city only. Contractors carry no city, so
// ActiveContractors is always global.
func (s *IssueService) Stats(ctx context.Context, actor auth.Actor) (*Stats, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Unauthorized("stats require an admin")
	}
	f := cityScope(actor)
	var (
		byStatus   map[entity.Status]int
		byCategory map[string]int
		active     int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		byStatus, err = s.store.Issues().CountByStatus(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		byCategory, err = s.store.Issues().CountByCategory(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		active, err = s.store.Contractors().CountWithBacklog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Stats{
		ActiveContractors: active,
		ByStatus:          make(map[entity.Status]int, len(entity.Statuses)),
		ByCategory:        byCategory,
	}
	for _, st := range entity.Statuses {
		n := byStatus[st]
		out.ByStatus[st] = n
		out.TotalIssues += n
		if !st.Terminal() {
			out.OpenIssues += n
		}
	}
	out.ResolvedIssues = byStatus[entity.StatusResolved]
	out.InProgressIssues = byStatus[entity.StatusInProgress]
	return out, nil
}
