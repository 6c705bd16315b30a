package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadPolicyDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
	assert.IsType(t, AllowAll{}, p.ApprovalPolicy())
}

func TestLoadPolicyFile(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, `
fund_approval:
  superadmin_threshold: 1000
scoring:
  efficiency: {min: 70, max: 95}
rewards:
  report_points: 25
`))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, p.FundApproval.SuperadminThreshold)
	assert.Equal(t, Range[int]{Min: 70, Max: 95}, p.Scoring.Efficiency)
	assert.Equal(t, Range[float64]{Min: 4.0, Max: 5.0}, p.Scoring.Rating, "unset keys keep defaults")
	assert.Equal(t, 25, p.Rewards.ReportPoints)
	assert.Equal(t, SuperadminThreshold{Limit: 1000}, p.ApprovalPolicy())
}

func TestLoadPolicyRejectsBadBands(t *testing.T) {
	_, err := LoadPolicy(writePolicy(t, `
scoring:
  rating: {min: 4.5, max: 6}
  efficiency: {min: 90, max: 80}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.rating")
	assert.Contains(t, err.Error(), "scoring.efficiency")
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRandomScoreSourceStaysInBands(t *testing.T) {
	src := NewRandomScoreSource(42, DefaultPolicy().Scoring)
	for range 1000 {
		s, err := src.Score(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.Rating, 4.0)
		assert.LessOrEqual(t, s.Rating, 5.0)
		assert.InDelta(t, s.Rating, float64(int(s.Rating*10+0.5))/10, 1e-9)
		assert.GreaterOrEqual(t, s.Efficiency, 85)
		assert.LessOrEqual(t, s.Efficiency, 100)
	}
}

func TestRandomScoreSourceIsSeeded(t *testing.T) {
	a := NewRandomScoreSource(7, DefaultPolicy().Scoring)
	b := NewRandomScoreSource(7, DefaultPolicy().Scoring)
	for range 10 {
		sa, _ := a.Score(context.Background(), nil, nil)
		sb, _ := b.Score(context.Background(), nil, nil)
		assert.Equal(t, sa, sb)
	}
}

func TestAggregate(t *testing.T) {
	n, cost := aggregate(nil)
	assert.Zero(t, n)
	assert.Zero(t, cost)

	n, cost = aggregate([]*ientity.Issue{{FundAmount: 100}, {FundAmount: 201}})
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(151), cost)
}

func TestKeyedMutexForgetsKeys(t *testing.T) {
	k := newKeyedMutex()
	u1 := k.Lock("a")
	u2 := k.Lock("b")
	assert.Equal(t, 2, k.size())
	u1()
	u2()
	assert.Zero(t, k.size())
}
