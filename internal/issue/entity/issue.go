package entity

import "time"

// Status is the lifecycle state of an Issue.
type Status string

const (
	StatusReported              Status = "reported"
	StatusAssigned              Status = "assigned"
	StatusUnderContractorSurvey Status = "under_contractor_survey"
	StatusFundApprovalPending   Status = "fund_approval_pending"
	StatusInProgress            Status = "in_progress"
	StatusResolved              Status = "resolved"
	StatusClosed                Status = "closed"
)

// Statuses lists every member of the enum in lifecycle order.
var Statuses = []Status{
	StatusReported,
	StatusAssigned,
	StatusUnderContractorSurvey,
	StatusFundApprovalPending,
	StatusInProgress,
	StatusResolved,
	StatusClosed,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// DefaultCategory is used when the reporter leaves the category empty.
const DefaultCategory = "General"

// Issue is a reported civic problem. Records are never deleted.
type Issue struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	Category     string    `json:"category"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Address      string    `json:"address,omitempty"`
	City         string    `json:"city"`
	Status       Status    `json:"status"`
	FundAmount   float64   `json:"fundAmount"`
	FundApproved bool      `json:"fundApproved"`
	ContractorID string    `json:"contractorId,omitempty"`
	Upvotes      int       `json:"upvotes"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a copy safe to mutate.
func (i *Issue) Clone() *Issue {
	out := *i
	return &out
}

// Filter narrows issue listings. Zero fields are ignored.
type Filter struct {
	UserID       string
	ContractorID string
	City         string
	Status       Status
	IDs          []string
	// Limit caps List results when positive.
	Limit int
}

// Reporter is the public summary of the user who filed an issue.
type Reporter struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// IssueView is an Issue as the admin board shows it.
type IssueView struct {
	*Issue
	Reporter          Reporter `json:"reporter"`
	ContractorCompany string   `json:"contractorCompany,omitempty"`
}

// Activity is one audit entry in an issue's history.
type Activity struct {
	ID          string    `json:"id"`
	IssueID     string    `json:"issueId"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performedBy"`
	FromStatus  Status    `json:"fromStatus,omitempty"`
	ToStatus    Status    `json:"toStatus,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Activity actions outside the transition table.
const (
	ActionCreated  = "created"
	ActionUpvote   = "upvote"
	ActionOverride = "override"
)
