package entity

import (
	"slices"
	"time"
)

// Contractor is the service-provider profile of a contractor user. The
// aggregate metrics are owned by the performance recalculator.
type Contractor struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CompanyName    string    `json:"companyName"`
	Rating         float64   `json:"rating"`
	CompletedTasks int       `json:"completedTasks"`
	Efficiency     int       `json:"efficiency"`
	CostPerTask    int64     `json:"costPerTask"`
	AssignedTasks  Backlog   `json:"assignedTasks"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (c *Contractor) Clone() *Contractor {
	out := *c
	out.AssignedTasks = slices.Clone(c.AssignedTasks)
	return &out
}

// Backlog is an insertion-ordered set of issue ids. It is stored as a plain
// list, so membership must go through Add.
type Backlog []string

func (b Backlog) Contains(issueID string) bool {
	return slices.Contains(b, issueID)
}

// Add appends issueID unless it is already present and reports whether the
// backlog changed.
func (b *Backlog) Add(issueID string) bool {
	if b.Contains(issueID) {
		return false
	}
	*b = append(*b, issueID)
	return true
}

// SortKey names a field contractors can be listed by.
type SortKey string

const (
	SortByRating         SortKey = "rating"
	SortByCompletedTasks SortKey = "completedTasks"
	SortByEfficiency     SortKey = "efficiency"
	SortByCostPerTask    SortKey = "costPerTask"
	SortByCompanyName    SortKey = "companyName"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortByRating, SortByCompletedTasks, SortByEfficiency, SortByCostPerTask, SortByCompanyName:
		return true
	}
	return false
}

// Less orders a before b for key. Performance metrics sort best-first,
// cost cheapest-first and names alphabetically; ties fall back to id.
func (k SortKey) Less(a, b *Contractor) bool {
	switch k {
	case SortByCompletedTasks:
		if a.CompletedTasks != b.CompletedTasks {
			return a.CompletedTasks > b.CompletedTasks
		}
	case SortByEfficiency:
		if a.Efficiency != b.Efficiency {
			return a.Efficiency > b.Efficiency
		}
	case SortByCostPerTask:
		if a.CostPerTask != b.CostPerTask {
			return a.CostPerTask < b.CostPerTask
		}
	case SortByCompanyName:
		if a.CompanyName != b.CompanyName {
			return a.CompanyName < b.CompanyName
		}
	default:
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
	}
	return a.ID < b.ID
}
