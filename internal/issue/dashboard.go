package issue

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
)

// Recent-issue list bounds for the citizen dashboard.
const (
	DefaultRecentLimit = 5
	MaxRecentLimit     = 50
)

// CitizenStats summarizes the caller's own reports.
type CitizenStats struct {
	TotalIssues    int                   `json:"totalIssues"`
	OpenIssues     int                   `json:"openIssues"`
	ResolvedIssues int                   `json:"resolvedIssues"`
	ByStatus       map[entity.Status]int `json:"byStatus"`
	ImpactPoints   int                   `json:"impactPoints"`
	CitizenLevel   int                   `json:"citizenLevel"`
}

func (s *IssueService) CitizenStats(ctx context.Context, actor auth.Actor) (*CitizenStats, error) {
	u, err := s.store.Users().GetByID(ctx, actor.SubjectID)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.store.Issues().CountByStatus(ctx, entity.Filter{UserID: actor.SubjectID})
	if err != nil {
		return nil, err
	}
	out := &CitizenStats{
		ByStatus:     make(map[entity.Status]int, len(entity.Statuses)),
		ImpactPoints: u.ImpactPoints,
		CitizenLevel: u.CitizenLevel,
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
	return out, nil
}

// RecentIssues returns the caller's newest reports. limit <= 0 means
// DefaultRecentLimit; larger values are capped at MaxRecentLimit.
func (s *IssueService) RecentIssues(ctx context.Context, actor auth.Actor, limit int) ([]*entity.Issue, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	return s.store.Issues().List(ctx, entity.Filter{UserID: actor.SubjectID, Limit: limit})
}
