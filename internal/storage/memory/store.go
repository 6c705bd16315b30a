// Package memory is an in-process storage.Store used by tests and by the
// api binary when STORE_DRIVER=memory. Transactions are serialized and
// rolled back by restoring a snapshot.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	centity "github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
	uentity "github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
)

// Operation names accepted by FailNext.
const (
	OpUserCreate        = "users.create"
	OpUserAddPoints     = "users.add_points"
	OpUserUpdate        = "users.update"
	OpContractorCreate  = "contractors.create"
	OpContractorGet     = "contractors.get"
	OpContractorUpdate  = "contractors.update"
	OpIssueCreate       = "issues.create"
	OpIssueGet          = "issues.get"
	OpIssueUpdate       = "issues.update"
	OpActivityAppend    = "activities.append"
	OpActivityListIssue = "activities.list"
)

type data struct {
	users       map[string]*uentity.User
	emails      map[string]string
	contractors map[string]*centity.Contractor
	byUser      map[string]string
	issues      map[string]*ientity.Issue
	activities  map[string][]*ientity.Activity
}

func newData() *data {
	return &data{
		users:       map[string]*uentity.User{},
		emails:      map[string]string{},
		contractors: map[string]*centity.Contractor{},
		byUser:      map[string]string{},
		issues:      map[string]*ientity.Issue{},
		activities:  map[string][]*ientity.Activity{},
	}
}

func (d *data) clone() *data {
	out := newData()
	for k, v := range d.users {
		u := *v
		out.users[k] = &u
	}
	for k, v := range d.emails {
		out.emails[k] = v
	}
	for k, v := range d.contractors {
		out.contractors[k] = v.Clone()
	}
	for k, v := range d.byUser {
		out.byUser[k] = v
	}
	for k, v := range d.issues {
		out.issues[k] = v.Clone()
	}
	for k, v := range d.activities {
		out.activities[k] = slices.Clone(v)
	}
	return out
}

type shared struct {
	mu     sync.Mutex
	d      *data
	faults map[string][]error
}

// Store implements storage.Store. The zero value is not usable; call New.
type Store struct {
	sh   *shared
	inTx bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{sh: &shared{d: newData(), faults: map[string][]error{}}}
}

// FailNext makes the next call of op return err. Calls queue up.
func (s *Store) FailNext(op string, err error) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.faults[op] = append(s.sh.faults[op], err)
}

func (s *Store) Users() storage.UserRepository             { return users{s} }
func (s *Store) Contractors() storage.ContractorRepository { return contractors{s} }
func (s *Store) Issues() storage.IssueRepository           { return issues{s} }
func (s *Store) Activities() storage.ActivityRepository    { return activities{s} }

func (s *Store) InTx(ctx context.Context, fn func(tx storage.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	snap := s.sh.d.clone()
	committed := false
	defer func() {
		if !committed {
			s.sh.d = snap
		}
	}()
	if err := fn(&Store{sh: s.sh, inTx: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

// enter locks the store outside transactions and pops a queued fault for op.
func (s *Store) enter(op string) (func(), error) {
	unlock := func() {}
	if !s.inTx {
		s.sh.mu.Lock()
		unlock = s.sh.mu.Unlock
	}
	if q := s.sh.faults[op]; len(q) > 0 {
		s.sh.faults[op] = q[1:]
		return unlock, q[0]
	}
	return unlock, nil
}

type users struct{ s *Store }

func (r users) Create(_ context.Context, u *uentity.User) error {
	unlock, err := r.s.enter(OpUserCreate)
	defer unlock()
	if err != nil {
		return err
	}
	d := r.s.sh.d
	if _, ok := d.users[u.ID]; ok {
		return apperror.Conflict("user %s already exists", u.ID)
	}
	if _, ok := d.emails[u.Email]; ok {
		return apperror.Conflict("email %s already registered", u.Email)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = u.CreatedAt
	if u.CitizenLevel == 0 {
		u.CitizenLevel = uentity.LevelFor(u.ImpactPoints)
	}
	cp := *u
	d.users[u.ID] = &cp
	d.emails[u.Email] = u.ID
	return nil
}

func (r users) GetByID(_ context.Context, id string) (*uentity.User, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	u, ok := r.s.sh.d.users[id]
	if !ok {
		return nil, apperror.NotFound("user %s", id)
	}
	cp := *u
	return &cp, nil
}

func (r users) GetByEmail(_ context.Context, email string) (*uentity.User, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	d := r.s.sh.d
	id, ok := d.emails[email]
	if !ok {
		return nil, apperror.NotFound("user %s", email)
	}
	cp := *d.users[id]
	return &cp, nil
}

func (r users) AddImpactPoints(_ context.Context, id string, points int) (*uentity.User, error) {
	unlock, err := r.s.enter(OpUserAddPoints)
	defer unlock()
	if err != nil {
		return nil, err
	}
	u, ok := r.s.sh.d.users[id]
	if !ok {
		return nil, apperror.NotFound("user %s", id)
	}
	u.ImpactPoints += points
	u.CitizenLevel = max(u.CitizenLevel, uentity.LevelFor(u.ImpactPoints))
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (r users) UpdateProfile(_ context.Context, u *uentity.User) error {
	unlock, err := r.s.enter(OpUserUpdate)
	defer unlock()
	if err != nil {
		return err
	}
	cur, ok := r.s.sh.d.users[u.ID]
	if !ok {
		return apperror.NotFound("user %s", u.ID)
	}
	cur.Name = u.Name
	cur.Phone = u.Phone
	cur.UpdatedAt = time.Now().UTC()
	*u = *cur
	return nil
}

type contractors struct{ s *Store }

func (r contractors) Create(_ context.Context, c *centity.Contractor) error {
	unlock, err := r.s.enter(OpContractorCreate)
	defer unlock()
	if err != nil {
		return err
	}
	d := r.s.sh.d
	if _, ok := d.contractors[c.ID]; ok {
		return apperror.Conflict("contractor %s already exists", c.ID)
	}
	if _, ok := d.byUser[c.UserID]; ok {
		return apperror.Conflict("contractor profile already exists for user %s", c.UserID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	if c.Version == 0 {
		c.Version = 1
	}
	if c.AssignedTasks == nil {
		c.AssignedTasks = centity.Backlog{}
	}
	d.contractors[c.ID] = c.Clone()
	d.byUser[c.UserID] = c.ID
	return nil
}

func (r contractors) GetByID(_ context.Context, id string) (*centity.Contractor, error) {
	unlock, err := r.s.enter(OpContractorGet)
	defer unlock()
	if err != nil {
		return nil, err
	}
	c, ok := r.s.sh.d.contractors[id]
	if !ok {
		return nil, apperror.NotFound("contractor %s", id)
	}
	return c.Clone(), nil
}

func (r contractors) GetByUserID(_ context.Context, userID string) (*centity.Contractor, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	d := r.s.sh.d
	id, ok := d.byUser[userID]
	if !ok {
		return nil, apperror.NotFound("contractor %s", userID)
	}
	return d.contractors[id].Clone(), nil
}

func (r contractors) List(_ context.Context, sortBy centity.SortKey) ([]*centity.Contractor, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	out := make([]*centity.Contractor, 0, len(r.s.sh.d.contractors))
	for _, c := range r.s.sh.d.contractors {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return sortBy.Less(out[i], out[j]) })
	return out, nil
}

func (r contractors) Update(_ context.Context, c *centity.Contractor) error {
	unlock, err := r.s.enter(OpContractorUpdate)
	defer unlock()
	if err != nil {
		return err
	}
	cur, ok := r.s.sh.d.contractors[c.ID]
	if !ok || cur.Version != c.Version {
		return apperror.Conflict("contractor %s was modified concurrently", c.ID)
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	next := c.Clone()
	next.UserID = cur.UserID
	next.CreatedAt = cur.CreatedAt
	r.s.sh.d.contractors[c.ID] = next
	return nil
}

func (r contractors) CountWithBacklog(_ context.Context) (int, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	n := 0
	for _, c := range r.s.sh.d.contractors {
		if len(c.AssignedTasks) > 0 {
			n++
		}
	}
	return n, nil
}

type issues struct{ s *Store }

func (r issues) Create(_ context.Context, is *ientity.Issue) error {
	unlock, err := r.s.enter(OpIssueCreate)
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := r.s.sh.d.issues[is.ID]; ok {
		return apperror.Conflict("issue %s already exists", is.ID)
	}
	if is.CreatedAt.IsZero() {
		is.CreatedAt = time.Now().UTC()
	}
	is.UpdatedAt = is.CreatedAt
	if is.Version == 0 {
		is.Version = 1
	}
	r.s.sh.d.issues[is.ID] = is.Clone()
	return nil
}

func (r issues) GetByID(_ context.Context, id string) (*ientity.Issue, error) {
	unlock, err := r.s.enter(OpIssueGet)
	defer unlock()
	if err != nil {
		return nil, err
	}
	is, ok := r.s.sh.d.issues[id]
	if !ok {
		return nil, apperror.NotFound("issue %s", id)
	}
	return is.Clone(), nil
}

func (r issues) List(_ context.Context, f ientity.Filter) ([]*ientity.Issue, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	return r.list(f), nil
}

// ListView resolves reporter and contractor summaries under the same lock
// as the issues.
func (r issues) ListView(_ context.Context, f ientity.Filter) ([]*ientity.IssueView, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	d := r.s.sh.d
	list := r.list(f)
	out := make([]*ientity.IssueView, 0, len(list))
	for _, is := range list {
		v := &ientity.IssueView{Issue: is}
		if u, ok := d.users[is.UserID]; ok {
			v.Reporter = ientity.Reporter{Name: u.Name, Email: u.Email}
		}
		if c, ok := d.contractors[is.ContractorID]; ok {
			v.ContractorCompany = c.CompanyName
		}
		out = append(out, v)
	}
	return out, nil
}

func (r issues) list(f ientity.Filter) []*ientity.Issue {
	out := []*ientity.Issue{}
	for _, is := range r.s.sh.d.issues {
		if matches(is, f) {
			out = append(out, is.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func matches(is *ientity.Issue, f ientity.Filter) bool {
	switch {
	case f.UserID != "" && is.UserID != f.UserID:
		return false
	case f.ContractorID != "" && is.ContractorID != f.ContractorID:
		return false
	case f.City != "" && !strings.EqualFold(is.City, f.City):
		return false
	case f.Status != "" && is.Status != f.Status:
		return false
	case f.IDs != nil && !slices.Contains(f.IDs, is.ID):
		return false
	}
	return true
}

func (r issues) Update(_ context.Context, is *ientity.Issue) error {
	unlock, err := r.s.enter(OpIssueUpdate)
	defer unlock()
	if err != nil {
		return err
	}
	cur, ok := r.s.sh.d.issues[is.ID]
	if !ok || cur.Version != is.Version {
		return apperror.Conflict("issue %s was modified concurrently", is.ID)
	}
	is.Version++
	is.UpdatedAt = time.Now().UTC()
	next := cur.Clone()
	next.Status = is.Status
	next.FundAmount = is.FundAmount
	next.FundApproved = is.FundApproved
	next.ContractorID = is.ContractorID
	next.Version = is.Version
	next.UpdatedAt = is.UpdatedAt
	r.s.sh.d.issues[is.ID] = next
	return nil
}

func (r issues) Upvote(_ context.Context, id string) (*ientity.Issue, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	is, ok := r.s.sh.d.issues[id]
	if !ok {
		return nil, apperror.NotFound("issue %s", id)
	}
	is.Upvotes++
	return is.Clone(), nil
}

func (r issues) CountByStatus(_ context.Context, f ientity.Filter) (map[ientity.Status]int, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	out := map[ientity.Status]int{}
	for _, is := range r.s.sh.d.issues {
		if matches(is, f) {
			out[is.Status]++
		}
	}
	return out, nil
}

func (r issues) CountByCategory(_ context.Context, f ientity.Filter) (map[string]int, error) {
	unlock, _ := r.s.enter("")
	defer unlock()
	out := map[string]int{}
	for _, is := range r.s.sh.d.issues {
		if matches(is, f) {
			out[is.Category]++
		}
	}
	return out, nil
}

type activities struct{ s *Store }

func (r activities) Append(_ context.Context, a *ientity.Activity) error {
	unlock, err := r.s.enter(OpActivityAppend)
	defer unlock()
	if err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	r.s.sh.d.activities[a.IssueID] = append(r.s.sh.d.activities[a.IssueID], &cp)
	return nil
}

func (r activities) ListByIssue(_ context.Context, issueID string) ([]*ientity.Activity, error) {
	unlock, err := r.s.enter(OpActivityListIssue)
	defer unlock()
	if err != nil {
		return nil, err
	}
	src := r.s.sh.d.activities[issueID]
	out := make([]*ientity.Activity, 0, len(src))
	for _, a := range src {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}
