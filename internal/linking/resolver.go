// Package linking resolves extracted mentions to canonical entities and
// persists the decisions idempotently.
package linking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/domain"
	"horse.fit/atlas/internal/textnorm"
)

const (
	ResolverVersion = "atlas-resolver/1"

	DefaultLinkedThreshold   = 0.95
	DefaultProposedThreshold = 0.65

	AmbiguityPenalty = 0.8

	personRoleBoost      = 0.08
	institutionNameBoost = 0.05
	scoreEpsilon         = 1e-9
	reasonAmbiguousAlias = "ambiguous alias"
	reasonBelowThreshold = "below proposed threshold"
	reasonNoCandidates   = "no candidates"
)

var contextKeywords = []string{
	"gobernador",
	"senador",
	"diputado",
	"alcalde",
	"presidente municipal",
}

// Thresholds are the minimum scores of the linked and proposed tiers.
type Thresholds struct {
	Linked   float64
	Proposed float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Linked: DefaultLinkedThreshold, Proposed: DefaultProposedThreshold}
}

func (t Thresholds) Validate() error {
	if t.Linked <= 0 || t.Linked > 1 {
		return fmt.Errorf("linked threshold must be in (0, 1], got %v", t.Linked)
	}
	if t.Proposed <= 0 || t.Proposed > t.Linked {
		return fmt.Errorf("proposed threshold must be in (0, %v], got %v", t.Linked, t.Proposed)
	}
	return nil
}

// Tier is the outcome class of a resolution.
type Tier string

const (
	TierNone     Tier = ""
	TierLinked   Tier = "linked"
	TierProposed Tier = "proposed"
)

// ScoredCandidate is a candidate entity with its final score.
type ScoredCandidate struct {
	Candidate catalog.Candidate
	Score     float64
}

// Decision is the resolver output for one mention.
type Decision struct {
	Tier       Tier
	Entity     domain.EntityKey
	Score      float64
	Reasons    []string
	Candidates []ScoredCandidate
	Ambiguous  bool
}

// NoCandidates reports whether the alias lookup produced nothing.
func (d Decision) NoCandidates() bool {
	return len(d.Candidates) == 0
}

// Status maps the tier to the link status it writes.
func (d Decision) Status() domain.LinkStatus {
	switch d.Tier {
	case TierLinked:
		return domain.LinkLinked
	case TierProposed:
		return domain.LinkProposed
	default:
		return ""
	}
}

// Resolver scores alias candidates and assigns confidence tiers.
type Resolver struct {
	thresholds Thresholds
}

func NewResolver(thresholds Thresholds) (*Resolver, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{thresholds: thresholds}, nil
}

func (r *Resolver) Thresholds() Thresholds {
	return r.thresholds
}

// Resolve looks up the mention surface in the catalog, scores every
// candidate of the mention's kind and picks a tier for the best one.
func (r *Resolver) Resolve(m domain.Mention, c *catalog.Catalog) Decision {
	normalized := m.NormalizedSurface
	if normalized == "" {
		normalized = textnorm.Normalize(m.Surface)
	}

	raw := c.Lookup(normalized)
	scored := make([]ScoredCandidate, 0, len(raw))
	for _, candidate := range raw {
		if m.EntityKind != "" && candidate.EntityType != m.EntityKind {
			continue
		}
		quality := candidate.MatchQuality
		if quality <= 0 {
			quality = 1.0
		}
		scored = append(scored, ScoredCandidate{Candidate: candidate, Score: quality})
	}
	if len(scored) == 0 {
		return Decision{Reasons: []string{reasonNoCandidates}}
	}

	reasons := []string{"alias match: " + normalized}
	reasons = append(reasons, applyContextBoost(scored, textnorm.Normalize(m.ContextWindow))...)

	sort.SliceStable(scored, func(i, j int) bool {
		if math.Abs(scored[i].Score-scored[j].Score) > scoreEpsilon {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Candidate.EntityType != scored[j].Candidate.EntityType {
			return scored[i].Candidate.EntityType < scored[j].Candidate.EntityType
		}
		return scored[i].Candidate.EntityID < scored[j].Candidate.EntityID
	})

	decision := Decision{Candidates: scored}
	tied := 0
	for _, candidate := range scored {
		if math.Abs(candidate.Score-scored[0].Score) <= scoreEpsilon {
			tied++
		}
	}
	if tied > 1 {
		for i := range scored {
			scored[i].Score *= AmbiguityPenalty
		}
		decision.Ambiguous = true
		reasons = append(reasons, reasonAmbiguousAlias)
	}

	top := scored[0]
	decision.Entity = top.Candidate.Key()
	decision.Score = top.Score
	switch {
	case top.Score >= r.thresholds.Linked-scoreEpsilon:
		decision.Tier = TierLinked
	case top.Score >= r.thresholds.Proposed-scoreEpsilon:
		decision.Tier = TierProposed
	default:
		decision.Tier = TierNone
		reasons = append(reasons, reasonBelowThreshold)
	}
	decision.Reasons = reasons
	return decision
}

func applyContextBoost(scored []ScoredCandidate, context string) []string {
	if context == "" {
		return nil
	}

	var reasons []string
	for _, keyword := range contextKeywords {
		if !strings.Contains(context, keyword) {
			continue
		}
		boosted := false
		for i := range scored {
			candidate := scored[i].Candidate
			var boost float64
			switch candidate.EntityType {
			case domain.EntityPerson:
				if strings.Contains(textnorm.Normalize(candidate.Role), keyword) {
					boost = personRoleBoost
				}
			case domain.EntityInstitution:
				if strings.Contains(textnorm.Normalize(candidate.DisplayName), keyword) {
					boost = institutionNameBoost
				}
			}
			if boost > 0 {
				scored[i].Score = math.Min(1.0, scored[i].Score+boost)
				boosted = true
			}
		}
		if boosted {
			reasons = append(reasons, "context keyword: "+keyword)
		}
	}
	return reasons
}
