package workflow

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
)

// Assign binds contractorID to the issue and adds the issue to the
// contractor's backlog. Reassigning does not remove the issue from the
// previous contractor's backlog.
func (e *Engine) Assign(ctx context.Context, actor auth.Actor, issueID, contractorID string) (*ientity.Issue, error) {
	if err := requireAdmin(actor, TriggerAssign); err != nil {
		return nil, e.reject(TriggerAssign, err)
	}
	if contractorID == "" {
		return nil, e.reject(TriggerAssign, apperror.Validation("contractorId is required"))
	}
	unlock := e.cLocks.Lock(contractorID)
	defer unlock()

	r := table[TriggerAssign]
	return e.apply(ctx, actor, TriggerAssign, issueID, r.from, r.to, func(ctx context.Context, tx storage.Store, is *ientity.Issue) (string, error) {
		c, err := tx.Contractors().GetByID(ctx, contractorID)
		if err != nil {
			return "", err
		}
		previous := is.ContractorID
		is.ContractorID = c.ID
		if c.AssignedTasks.Add(is.ID) {
			if err := tx.Contractors().Update(ctx, c); err != nil {
				return "", err
			}
		}
		if previous != "" && previous != c.ID {
			return fmt.Sprintf("contractor=%s previous=%s", c.ID, previous), nil
		}
		return "contractor=" + c.ID, nil
	})
}

// StartSurvey is called by the assigned contractor once it begins on-site
// assessment.
func (e *Engine) StartSurvey(ctx context.Context, actor auth.Actor, issueID string) (*ientity.Issue, error) {
	r := table[TriggerStartSurvey]
	return e.apply(ctx, actor, TriggerStartSurvey, issueID, r.from, r.to, func(ctx context.Context, tx storage.Store, is *ientity.Issue) (string, error) {
		return "", requireOwner(ctx, tx, actor, TriggerStartSurvey, is)
	})
}

// RequestFunds records the contractor's quote. A repeated request before
// approval overwrites the amount.
func (e *Engine) RequestFunds(ctx context.Context, actor auth.Actor, issueID string, amount float64) (*ientity.Issue, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, e.reject(TriggerRequestFunds, apperror.Validation("fund amount must be a positive number, got %v", amount))
	}
	r := table[TriggerRequestFunds]
	return e.apply(ctx, actor, TriggerRequestFunds, issueID, r.from, r.to, func(ctx context.Context, tx storage.Store, is *ientity.Issue) (string, error) {
		if err := requireOwner(ctx, tx, actor, TriggerRequestFunds, is); err != nil {
			return "", err
		}
		is.FundAmount = amount
		is.FundApproved = false
		return "amount=" + strconv.FormatFloat(amount, 'f', -1, 64), nil
	})
}

// ApproveFunds unlocks paid work. The approval policy is consulted after the
// state and amount checks.
func (e *Engine) ApproveFunds(ctx context.Context, actor auth.Actor, issueID string) (*ientity.Issue, error) {
	if err := requireAdmin(actor, TriggerApproveFunds); err != nil {
		return nil, e.reject(TriggerApproveFunds, err)
	}
	r := table[TriggerApproveFunds]
	return e.apply(ctx, actor, TriggerApproveFunds, issueID, r.from, r.to, func(ctx context.Context, _ storage.Store, is *ientity.Issue) (string, error) {
		if is.FundAmount <= 0 {
			return "", apperror.Validation("issue %s has no requested fund amount", is.ID)
		}
		if err := e.approval.Approve(ctx, actor, is); err != nil {
			return "", err
		}
		is.FundApproved = true
		return "amount=" + strconv.FormatFloat(is.FundAmount, 'f', -1, 64), nil
	})
}

// Complete resolves the issue and then recomputes the contractor's
// performance. The resolution stands even if the recomputation fails.
func (e *Engine) Complete(ctx context.Context, actor auth.Actor, issueID string) (*ientity.Issue, error) {
	r := table[TriggerComplete]
	is, err := e.apply(ctx, actor, TriggerComplete, issueID, r.from, r.to, func(ctx context.Context, tx storage.Store, is *ientity.Issue) (string, error) {
		return "", requireOwner(ctx, tx, actor, TriggerComplete, is)
	})
	if err != nil {
		return nil, err
	}
	e.afterResolve(ctx, is)
	return is, nil
}

// UpdateStatus is the administrative override. It skips the ordering table
// but not the enum, and never leaves a terminal status.
func (e *Engine) UpdateStatus(ctx context.Context, actor auth.Actor, issueID string, target ientity.Status) (*ientity.Issue, error) {
	if err := requireAdmin(actor, TriggerOverride); err != nil {
		return nil, e.reject(TriggerOverride, err)
	}
	if !target.Valid() {
		return nil, e.reject(TriggerOverride, apperror.Validation("unknown status %q", target))
	}
	is, err := e.apply(ctx, actor, TriggerOverride, issueID, nil, target, func(_ context.Context, _ storage.Store, is *ientity.Issue) (string, error) {
		if is.Status.Terminal() {
			return "", apperror.InvalidTransition("issue %s is %s and cannot be changed", is.ID, is.Status)
		}
		return fmt.Sprintf("override %s -> %s", is.Status, target), nil
	})
	if err != nil {
		return nil, err
	}
	if target == ientity.StatusResolved {
		e.afterResolve(ctx, is)
	}
	return is, nil
}

// afterResolve ignores request cancellation. The resolution is already
// committed by the time it runs.
func (e *Engine) afterResolve(ctx context.Context, is *ientity.Issue) {
	if is.ContractorID == "" {
		return
	}
	if err := e.recalc.Recalculate(context.WithoutCancel(ctx), is.ContractorID); err != nil {
		e.metrics.RecomputeFailed()
		e.logger.Errorw("contractor recompute failed after resolution", "issue", is.ID, "contractor", is.ContractorID, "err", err)
	}
}

// reject counts a transition refused before the issue was loaded.
func (e *Engine) reject(trigger Trigger, err error) error {
	e.metrics.TransitionFailed(string(trigger), apperror.Kind(err))
	return err
}
