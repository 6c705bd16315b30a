package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusEnum(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("in_review").Valid())
	assert.False(t, Status("").Valid())
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusResolved.Terminal())
	assert.True(t, StatusClosed.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}
