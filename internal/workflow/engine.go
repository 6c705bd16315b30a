// Package workflow owns the issue lifecycle: the status state machine, the
// fund request and approval rules, contractor assignment and the contractor
// performance recomputation that follows a resolution.
package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
	uentity "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/utilities"
)

// Trigger names a transition of the lifecycle table.
type Trigger string

const (
	TriggerAssign       Trigger = "assign"
	TriggerStartSurvey  Trigger = "start_survey"
	TriggerRequestFunds Trigger = "request_funds"
	TriggerApproveFunds Trigger = "approve_funds"
	TriggerComplete     Trigger = "complete"
	// TriggerOverride is the administrative escape hatch. It is not part of
	// the table.
	TriggerOverride Trigger = ientity.ActionOverride
)

type rule struct {
	from []ientity.Status
	to   ientity.Status
}

var table = map[Trigger]rule{
	TriggerAssign:       {from: []ientity.Status{ientity.StatusReported, ientity.StatusAssigned}, to: ientity.StatusAssigned},
	TriggerStartSurvey:  {from: []ientity.Status{ientity.StatusAssigned}, to: ientity.StatusUnderContractorSurvey},
	TriggerRequestFunds: {from: []ientity.Status{ientity.StatusUnderContractorSurvey, ientity.StatusFundApprovalPending}, to: ientity.StatusFundApprovalPending},
	TriggerApproveFunds: {from: []ientity.Status{ientity.StatusFundApprovalPending}, to: ientity.StatusInProgress},
	TriggerComplete:     {from: []ientity.Status{ientity.StatusInProgress}, to: ientity.StatusResolved},
}

// Allowed reports whether trigger may fire from status.
func Allowed(trigger Trigger, from ientity.Status) bool {
	r, ok := table[trigger]
	return ok && slices.Contains(r.from, from)
}

// Engine runs lifecycle transitions. Transitions on the same issue are
// serialized in-process; rows also carry a version checked on write so that
// several instances can share one database.
type Engine struct {
	store    storage.Store
	locks    *keyedMutex
	cLocks   *keyedMutex
	recalc   *Recalculator
	approval ApprovalPolicy
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	now      func() time.Time
	source   ScoreSource
}

type Option func(*Engine)

func WithApprovalPolicy(p ApprovalPolicy) Option { return func(e *Engine) { e.approval = p } }
func WithScoreSource(s ScoreSource) Option       { return func(e *Engine) { e.source = s } }
func WithNotifier(n notify.Notifier) Option      { return func(e *Engine) { e.notifier = n } }
func WithMetrics(m *metrics.Metrics) Option      { return func(e *Engine) { e.metrics = m } }
func WithClock(now func() time.Time) Option      { return func(e *Engine) { e.now = now } }

func New(store storage.Store, logger *zap.SugaredLogger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		locks:    newKeyedMutex(),
		cLocks:   newKeyedMutex(),
		approval: AllowAll{},
		notifier: notify.Nop{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.source == nil {
		e.source = NewRandomScoreSource(uint64(e.now().UnixNano()), DefaultPolicy().Scoring)
	}
	e.recalc = NewRecalculator(store, e.source, logger)
	// assignment and recomputation both write the contractor row
	e.recalc.locks = e.cLocks
	return e
}

// Recalculator exposes the performance recalculator the engine uses.
func (e *Engine) Recalculator() *Recalculator { return e.recalc }

type pending struct {
	to  string
	msg notify.Message
}

// change is the mutation a transition applies to a loaded issue.
type change func(ctx context.Context, tx storage.Store, is *ientity.Issue) (detail string, err error)

// apply loads the issue, checks the source status, applies fn, writes the
// issue and its audit entry in one transaction and then emits metrics and
// notifications.
func (e *Engine) apply(ctx context.Context, actor auth.Actor, trigger Trigger, issueID string, from []ientity.Status, to ientity.Status, fn change) (*ientity.Issue, error) {
	unlock := e.locks.Lock(issueID)
	defer unlock()

	var (
		out   *ientity.Issue
		prev  ientity.Status
		extra []pending
	)
	err := e.store.InTx(ctx, func(tx storage.Store) error {
		is, err := tx.Issues().GetByID(ctx, issueID)
		if err != nil {
			return err
		}
		if from != nil && !slices.Contains(from, is.Status) {
			return apperror.InvalidTransition("cannot %s an issue in status %s", trigger, is.Status)
		}
		if err := e.checkCity(actor, is); err != nil {
			return err
		}
		prev = is.Status
		detail, err := fn(ctx, tx, is)
		if err != nil {
			return err
		}
		is.Status = to
		if err := tx.Issues().Update(ctx, is); err != nil {
			return err
		}
		if trigger == TriggerAssign {
			if n, ok := e.contractorNotice(ctx, tx, is); ok {
				extra = append(extra, n)
			}
		}
		out = is
		return tx.Activities().Append(ctx, &ientity.Activity{
			ID:          utilities.NewKSUID(),
			IssueID:     is.ID,
			Action:      string(trigger),
			PerformedBy: actor.SubjectID,
			FromStatus:  prev,
			ToStatus:    to,
			Detail:      detail,
			CreatedAt:   e.now().UTC(),
		})
	})
	if err != nil {
		e.metrics.TransitionFailed(string(trigger), apperror.Kind(err))
		return nil, err
	}
	e.metrics.Transition(string(trigger), string(to))
	e.logger.Infow("issue transition", "issue", out.ID, "trigger", trigger, "from", prev, "to", to, "actor", actor.SubjectID)

	e.notifier.Notify(ctx, out.UserID, notify.Message{
		Type:      "issue_status",
		IssueID:   out.ID,
		Status:    string(out.Status),
		Text:      fmt.Sprintf("Your issue %q is now %s", out.Title, humanStatus(out.Status)),
		CreatedAt: e.now().UTC(),
	})
	for _, p := range extra {
		e.notifier.Notify(ctx, p.to, p.msg)
	}
	return out, nil
}

func (e *Engine) contractorNotice(ctx context.Context, tx storage.Store, is *ientity.Issue) (pending, bool) {
	c, err := tx.Contractors().GetByID(ctx, is.ContractorID)
	if err != nil {
		return pending{}, false
	}
	return pending{to: c.UserID, msg: notify.Message{
		Type:      "issue_assigned",
		IssueID:   is.ID,
		Status:    string(is.Status),
		Text:      fmt.Sprintf("You have been assigned %q", is.Title),
		CreatedAt: e.now().UTC(),
	}}, true
}

// requireAdmin passes admins and superadmins.
func requireAdmin(actor auth.Actor, trigger Trigger) error {
	if !actor.IsAdmin() {
		return apperror.Unauthorized("%s requires an admin, got %s", trigger, actor.Role)
	}
	return nil
}

// checkCity keeps city-scoped admins on issues of their own city.
func (e *Engine) checkCity(actor auth.Actor, is *ientity.Issue) error {
	if actor.Role != uentity.RoleAdmin || actor.City == "" {
		return nil
	}
	if !strings.EqualFold(actor.City, is.City) {
		return apperror.Unauthorized("admin of %s cannot act on an issue in %s", actor.City, is.City)
	}
	return nil
}

// requireOwner checks that actor is the contractor currently assigned to is.
func requireOwner(ctx context.Context, tx storage.Store, actor auth.Actor, trigger Trigger, is *ientity.Issue) error {
	if actor.Role != uentity.RoleContractor {
		return apperror.Unauthorized("%s requires the assigned contractor, got %s", trigger, actor.Role)
	}
	c, err := tx.Contractors().GetByUserID(ctx, actor.SubjectID)
	if err != nil {
		return apperror.Unauthorized("no contractor profile for user %s", actor.SubjectID)
	}
	if is.ContractorID == "" || c.ID != is.ContractorID {
		return apperror.Unauthorized("issue %s is not assigned to contractor %s", is.ID, c.ID)
	}
	return nil
}

func humanStatus(s ientity.Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}
