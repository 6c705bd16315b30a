package workflow

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	uentity "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
)

// ApprovalPolicy gets the last word on a fund approval that already passed
// the state and role checks.
type ApprovalPolicy interface {
	Approve(ctx context.Context, actor auth.Actor, is *entity.Issue) error
}

type AllowAll struct{}

func (AllowAll) Approve(context.Context, auth.Actor, *entity.Issue) error { return nil }

// SuperadminThreshold reserves approvals above Limit to superadmins.
type SuperadminThreshold struct {
	Limit float64
}

func (p SuperadminThreshold) Approve(_ context.Context, actor auth.Actor, is *entity.Issue) error {
	if is.FundAmount > p.Limit && actor.Role != uentity.RoleSuperadmin {
		return apperror.Unauthorized("amount %.2f exceeds %.2f and requires superadmin approval", is.FundAmount, p.Limit)
	}
	return nil
}
