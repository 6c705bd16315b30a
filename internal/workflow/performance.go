package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	centity "github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
)

// Score is the qualitative part of a contractor's performance.
type Score struct {
	Rating     float64
	Efficiency int
}

// ScoreSource rates a contractor given every issue it has resolved.
type ScoreSource interface {
	Score(ctx context.Context, c *centity.Contractor, resolved []*ientity.Issue) (Score, error)
}

// RandomScoreSource draws scores uniformly from fixed bands. Ratings carry
// one decimal.
type RandomScoreSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	bands ScoreBands
}

func NewRandomScoreSource(seed uint64, bands ScoreBands) *RandomScoreSource {
	return &RandomScoreSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), bands: bands}
}

func (s *RandomScoreSource) Score(context.Context, *centity.Contractor, []*ientity.Issue) (Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, e := s.bands.Rating, s.bands.Efficiency
	rating := math.Round((r.Min+s.rng.Float64()*(r.Max-r.Min))*10) / 10
	rating = math.Min(math.Max(rating, r.Min), r.Max)
	return Score{Rating: rating, Efficiency: e.Min + s.rng.IntN(e.Max-e.Min+1)}, nil
}

// Recalculator rebuilds a contractor's aggregates from its resolved issues.
// It is the only writer of those fields.
type Recalculator struct {
	store  storage.Store
	source ScoreSource
	locks  *keyedMutex
	logger *zap.SugaredLogger
}

func NewRecalculator(store storage.Store, source ScoreSource, logger *zap.SugaredLogger) *Recalculator {
	return &Recalculator{store: store, source: source, locks: newKeyedMutex(), logger: logger}
}

// Recalculate updates contractorID. A contractor that no longer exists is
// skipped without error. A lost version race is retried once.
func (r *Recalculator) Recalculate(ctx context.Context, contractorID string) error {
	unlock := r.locks.Lock(contractorID)
	defer unlock()

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = r.recalculate(ctx, contractorID)
		if !errors.Is(err, apperror.ErrConflict) {
			break
		}
		r.logger.Debugw("contractor recompute lost version race", "contractor", contractorID, "attempt", attempt+1)
	}
	return err
}

func (r *Recalculator) recalculate(ctx context.Context, contractorID string) error {
	c, err := r.store.Contractors().GetByID(ctx, contractorID)
	if errors.Is(err, apperror.ErrNotFound) {
		r.logger.Infow("skipping recompute of missing contractor", "contractor", contractorID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load contractor: %w", err)
	}
	resolved, err := r.store.Issues().List(ctx, ientity.Filter{ContractorID: contractorID, Status: ientity.StatusResolved})
	if err != nil {
		return fmt.Errorf("load resolved issues: %w", err)
	}
	score, err := r.source.Score(ctx, c, resolved)
	if err != nil {
		return fmt.Errorf("score contractor: %w", err)
	}
	c.CompletedTasks, c.CostPerTask = aggregate(resolved)
	c.Rating = score.Rating
	c.Efficiency = score.Efficiency
	return r.store.Contractors().Update(ctx, c)
}

// aggregate returns the resolved count and the rounded mean fund amount.
func aggregate(resolved []*ientity.Issue) (int, int64) {
	if len(resolved) == 0 {
		return 0, 0
	}
	var sum float64
	for _, is := range resolved {
		sum += is.FundAmount
	}
	return len(resolved), int64(math.Round(sum / float64(len(resolved))))
}
