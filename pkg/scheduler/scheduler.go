// Package scheduler decides which knowledge-unit origins are grouped together
// for comparative difficulty assessment. It guarantees that every origin
// eventually receives a minimum number of evaluations while preferring
// hierarchically coherent groupings, falling back to a global same-type pool
// when the hierarchy cannot fill a group.
package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
)

const (
	// DefaultMaxAscentLevels bounds how many parent hops the neighbor search
	// climbs before giving up on the hierarchy.
	DefaultMaxAscentLevels = 1

	// neighborPoolMultiplier controls how many hierarchical candidates the
	// ascent tries to accumulate relative to the open group slots.
	neighborPoolMultiplier = 2

	// rootContextID is the synthetic context for origins without a parent.
	rootContextID = "__ROOT__"

	// budgetFloorPerOrigin bounds the iteration budget from below when the
	// configured product collapses to zero.
	budgetFloorPerOrigin = 5
)

// Coherence labels attached to comparison groups. Hierarchical labels carry
// the ascent depth at which neighbors were found.
const (
	CoherenceNoNeighbors        = "no_neighbors"
	CoherenceGlobalFallbackOnly = "global_fallback_only"
	coherenceFallbackSuffix     = "_then_fallback"
)

// Config holds the tunable parameters of an OriginDifficultyScheduler.
type Config struct {
	// MinEvaluationsPerOrigin is the coverage target: an origin stays pending
	// until its evaluation count reaches this value.
	MinEvaluationsPerOrigin int
	// BatchSize is the exact number of origins per comparison group.
	BatchSize int
	// MaxAscentLevels bounds the hierarchical neighbor search. Negative
	// values select DefaultMaxAscentLevels.
	MaxAscentLevels int
	// Seed initializes the PRNG used for shuffle-based tie breaking, so runs
	// are reproducible under a fixed seed.
	Seed int64
}

type contextKey struct {
	originType string
	level      int
}

// OriginDifficultyScheduler assembles comparison groups over an immutable
// origin snapshot. A scheduler instance owns all of its state exclusively and
// must not be shared between goroutines; construct one instance per run.
type OriginDifficultyScheduler struct {
	origins map[string]common.Origin

	// parentOf maps origin id to parent id, "" for roots.
	parentOf map[string]string
	// contextIndex maps a context (parent id or rootContextID) and a
	// (type, level) key to the origin ids sharing that context.
	contextIndex map[string]map[contextKey][]string

	evalCounts map[string]int
	pending    map[string]struct{}

	minEvaluations  int
	batchSize       int
	maxAscentLevels int
	rng             *rand.Rand
}

// New builds a scheduler over the given origin snapshot. It fails if the
// snapshot is empty or the batch size is not larger than one.
func New(origins []common.Origin, cfg Config) (*OriginDifficultyScheduler, error) {
	if len(origins) == 0 {
		return nil, errors.New("scheduler: origin list must not be empty")
	}
	if cfg.BatchSize <= 1 {
		return nil, fmt.Errorf("scheduler: batch size must be greater than 1, got %d", cfg.BatchSize)
	}

	maxAscent := cfg.MaxAscentLevels
	if maxAscent < 0 {
		maxAscent = DefaultMaxAscentLevels
	}

	s := &OriginDifficultyScheduler{
		origins:         make(map[string]common.Origin, len(origins)),
		parentOf:        make(map[string]string, len(origins)),
		contextIndex:    make(map[string]map[contextKey][]string),
		evalCounts:      make(map[string]int, len(origins)),
		pending:         make(map[string]struct{}, len(origins)),
		minEvaluations:  cfg.MinEvaluationsPerOrigin,
		batchSize:       cfg.BatchSize,
		maxAscentLevels: maxAscent,
		rng:             rand.New(rand.NewSource(cfg.Seed)),
	}

	for _, o := range origins {
		s.origins[o.OriginID] = o
		parent := ""
		if o.ParentCommunityID != nil && *o.ParentCommunityID != "" {
			parent = *o.ParentCommunityID
		}
		s.parentOf[o.OriginID] = parent

		contextID := parent
		if contextID == "" {
			contextID = rootContextID
		}
		key := contextKey{originType: o.OriginType, level: o.Level}
		byKey, ok := s.contextIndex[contextID]
		if !ok {
			byKey = make(map[contextKey][]string)
			s.contextIndex[contextID] = byKey
		}
		byKey[key] = append(byKey[key], o.OriginID)

		s.evalCounts[o.OriginID] = 0
		s.pending[o.OriginID] = struct{}{}
	}

	logger.Debug("Difficulty scheduler initialized", "origins", len(s.pending), "batch_size", s.batchSize)
	return s, nil
}

// GenerateOriginPairings runs the scheduling loop to completion and returns
// every comparison group it could assemble. The call is synchronous and
// performs no I/O; it terminates when no origin remains pending or when the
// iteration budget is exhausted. Seeds that cannot fill a full group are
// counted as failed attempts so the loop always makes forward progress.
func (s *OriginDifficultyScheduler) GenerateOriginPairings() []common.ComparisonGroup {
	var groups []common.ComparisonGroup

	budget := len(s.origins) * s.minEvaluations * s.batchSize
	if budget <= 0 {
		budget = len(s.origins) * budgetFloorPerOrigin
	}

	for iter := 0; iter < budget && len(s.pending) > 0; iter++ {
		seedID, ok := s.nextSeed()
		if !ok {
			break
		}

		needed := s.batchSize - 1
		candidates, label := s.hierarchicalCandidates(seedID)
		selected := s.pickByLowestCount(candidates, needed)

		if len(selected) < needed {
			already := make(map[string]struct{}, len(selected)+1)
			already[seedID] = struct{}{}
			for _, id := range selected {
				already[id] = struct{}{}
			}
			fallback := s.globalCandidates(seedID, already)
			extra := s.pickByLowestCount(fallback, needed-len(selected))
			if len(extra) > 0 {
				if len(candidates) == 0 {
					label = CoherenceGlobalFallbackOnly
				} else {
					label += coherenceFallbackSuffix
				}
				selected = append(selected, extra...)
			}
		}

		if len(selected) != needed {
			s.recordFailedSeed(seedID)
			continue
		}

		members := make([]string, 0, s.batchSize)
		members = append(members, seedID)
		members = append(members, selected...)
		sort.Strings(members)

		groups = append(groups, common.ComparisonGroup{
			OriginIDs:      members,
			CoherenceLevel: label,
			SeedOriginID:   seedID,
		})
		s.recordGroup(members)
	}

	logger.Debug("Difficulty pairing complete", "groups", len(groups))
	if len(s.pending) > 0 {
		logger.Warn(
			"Some origins did not reach the evaluation minimum",
			"remaining", len(s.pending),
		)
	}
	return groups
}

// EvaluationCount returns how many times the origin has participated in a
// formed group or been counted as a failed seed attempt.
func (s *OriginDifficultyScheduler) EvaluationCount(originID string) int {
	return s.evalCounts[originID]
}

// PendingCount returns the number of origins still below the evaluation
// minimum.
func (s *OriginDifficultyScheduler) PendingCount() int {
	return len(s.pending)
}

// nextSeed picks the pending origin with the lowest evaluation count,
// tie-broken by origin id ascending.
func (s *OriginDifficultyScheduler) nextSeed() (string, bool) {
	best := ""
	bestCount := 0
	for id := range s.pending {
		count := s.evalCounts[id]
		if best == "" || count < bestCount || (count == bestCount && id < best) {
			best = id
			bestCount = count
		}
	}
	return best, best != ""
}

// hierarchicalCandidates collects same-type same-level origins around the
// seed, starting at its parent context and ascending the community hierarchy.
// Candidates found at each ascent accumulate; the search stops when the pool
// is large enough, the ascent limit is reached, or the root is hit. The
// returned label records the deepest ascent that contributed neighbors.
func (s *OriginDifficultyScheduler) hierarchicalCandidates(seedID string) ([]string, string) {
	seed, ok := s.origins[seedID]
	if !ok {
		return nil, CoherenceNoNeighbors
	}
	key := contextKey{originType: seed.OriginType, level: seed.Level}

	collected := make(map[string]struct{})
	label := CoherenceNoNeighbors
	target := (s.batchSize - 1) * neighborPoolMultiplier

	contextID := s.parentOf[seedID]
	if contextID == "" {
		contextID = rootContextID
	}

	for ascent := 0; ascent <= s.maxAscentLevels; ascent++ {
		before := len(collected)
		for _, id := range s.contextIndex[contextID][key] {
			if id != seedID {
				collected[id] = struct{}{}
			}
		}
		if len(collected) > before {
			label = fmt.Sprintf("hierarchical_l%d", ascent)
		}

		if len(collected) >= target || ascent == s.maxAscentLevels || contextID == rootContextID {
			break
		}
		contextID = s.parentOf[contextID]
		if contextID == "" {
			contextID = rootContextID
		}
	}

	candidates := make([]string, 0, len(collected))
	for id := range collected {
		candidates = append(candidates, id)
	}
	return candidates, label
}

// globalCandidates scans the whole origin set for same-type same-level peers
// of the seed, excluding the seed itself and anything already selected.
func (s *OriginDifficultyScheduler) globalCandidates(seedID string, exclude map[string]struct{}) []string {
	seed := s.origins[seedID]
	var out []string
	for id, o := range s.origins {
		if _, skip := exclude[id]; skip {
			continue
		}
		if o.OriginType == seed.OriginType && o.Level == seed.Level {
			out = append(out, id)
		}
	}
	return out
}

// pickByLowestCount shuffles the candidates and then orders them by ascending
// evaluation count with origin id as tie break, returning at most n ids. The
// shuffle-then-sort sequence is the deliberate fairness mechanism inherited
// from the scheduling design; keep both steps.
func (s *OriginDifficultyScheduler) pickByLowestCount(candidates []string, n int) []string {
	if len(candidates) == 0 || n <= 0 {
		return nil
	}
	pool := make([]string, len(candidates))
	copy(pool, candidates)

	s.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	sort.Slice(pool, func(i, j int) bool {
		ci, cj := s.evalCounts[pool[i]], s.evalCounts[pool[j]]
		if ci != cj {
			return ci < cj
		}
		return pool[i] < pool[j]
	})

	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

// recordGroup bumps every participant's evaluation count and retires those
// that reached the minimum.
func (s *OriginDifficultyScheduler) recordGroup(members []string) {
	for _, id := range members {
		s.evalCounts[id]++
		if s.evalCounts[id] >= s.minEvaluations {
			delete(s.pending, id)
		}
	}
}

// recordFailedSeed counts a failed pairing attempt against the seed only,
// never against near-miss candidates, so an unpairable origin cannot stall
// the loop forever.
func (s *OriginDifficultyScheduler) recordFailedSeed(seedID string) {
	logger.Warn(
		"Seed origin could not fill a comparison group, counting attempt",
		"origin_id", seedID,
	)
	s.evalCounts[seedID]++
	if s.evalCounts[seedID] >= s.minEvaluations {
		delete(s.pending, seedID)
	}
}
