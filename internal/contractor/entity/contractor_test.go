package entity

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBacklogAddIsSetLike(t *testing.T) {
	var b Backlog
	assert.True(t, b.Add("i1"))
	assert.True(t, b.Add("i2"))
	assert.False(t, b.Add("i1"))
	assert.Equal(t, Backlog{"i1", "i2"}, b)
}

func TestCloneDetachesBacklog(t *testing.T) {
	c := &Contractor{ID: "c1", AssignedTasks: Backlog{"i1"}}
	cp := c.Clone()
	cp.AssignedTasks.Add("i2")
	assert.Len(t, c.AssignedTasks, 1)
}

func TestSortKeyLess(t *testing.T) {
	list := []*Contractor{
		{ID: "a", CompanyName: "Zeta", Rating: 4.1, CostPerTask: 900, CompletedTasks: 2},
		{ID: "b", CompanyName: "Alpha", Rating: 4.9, CostPerTask: 300, CompletedTasks: 5},
		{ID: "c", CompanyName: "Mid", Rating: 4.5, CostPerTask: 600, CompletedTasks: 5},
	}
	ids := func(k SortKey) []string {
		cp := append([]*Contractor(nil), list...)
		sort.SliceStable(cp, func(i, j int) bool { return k.Less(cp[i], cp[j]) })
		out := make([]string, len(cp))
		for i, c := range cp {
			out[i] = c.ID
		}
		return out
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids(SortByRating))
	assert.Equal(t, []string{"b", "c", "a"}, ids(SortByCostPerTask))
	assert.Equal(t, []string{"b", "c", "a"}, ids(SortByCompletedTasks))
	assert.Equal(t, []string{"b", "c", "a"}, ids(SortByCompanyName))
	assert.False(t, SortKey("nope").Valid())
}
