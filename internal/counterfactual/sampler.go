// Package counterfactual runs off-critical-path shadow comparisons of a
// completed request against alternative models, producing preference
// training signal without affecting user-visible responses.
package counterfactual

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synthlab/backend/pkg/config"
	"github.com/synthlab/backend/pkg/logger"
)

// Sampler decides whether to shadow-test a request and enforces the
// per-tenant daily simulation cap. The counter is in-memory only: a process
// restart resets it, which is an accepted lifecycle boundary. It resets
// whenever a new UTC calendar day is observed.
type Sampler struct {
	rates    map[string]float64
	dailyCap int

	// randFloat is swappable for tests.
	randFloat func() float64

	mu     sync.Mutex
	counts map[string]int
	day    string // UTC date of the last reset, "2006-01-02"

	// now is swappable for tests.
	now func() time.Time
}

func NewSampler(cfg config.CounterfactualConfig) *Sampler {
	limit := cfg.DailyCapPerTenant
	if limit <= 0 {
		limit = 50
	}
	s := &Sampler{
		rates:     cfg.SamplingRates,
		dailyCap:  limit,
		randFloat: rand.Float64,
		counts:    make(map[string]int),
		now:       time.Now,
	}
	s.day = s.today()
	return s
}

// ShouldSample returns true with the probability configured for the named
// reason. Unknown reasons never sample.
func (s *Sampler) ShouldSample(reason string) bool {
	rate, ok := s.rates[reason]
	if !ok || rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	return s.randFloat() < rate
}

// TryReserve atomically claims one slot of the tenant's daily cap. It
// returns false without counting anything when the cap is exhausted. The
// check and the increment happen under one lock, so concurrent callers for
// the same tenant can never reserve past the cap.
func (s *Sampler) TryReserve(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	if s.counts[tenantID] >= s.dailyCap {
		return false
	}
	s.counts[tenantID]++
	return true
}

// Release returns a previously reserved slot, for simulations that end up
// persisting nothing.
func (s *Sampler) Release(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	if s.counts[tenantID] > 0 {
		s.counts[tenantID]--
	}
}

// Count returns the tenant's simulation count for the current UTC day.
func (s *Sampler) Count(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	return s.counts[tenantID]
}

func (s *Sampler) rollDayLocked() {
	today := s.today()
	if today != s.day {
		logger.Info("Counterfactual daily counters reset",
			zap.String("previous_day", s.day),
			zap.String("day", today),
		)
		s.counts = make(map[string]int)
		s.day = today
	}
}

func (s *Sampler) today() string {
	return s.now().UTC().Format("2006-01-02")
}
