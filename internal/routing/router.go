package routing

import (
	"math"
	"sort"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/domain"
	"horse.fit/atlas/internal/textnorm"
)

const (
	StrongHitWeight   = 0.6
	StrongHitCap      = 1.0
	TotalHitWeight    = 0.2
	TotalHitCap       = 0.6
	PositiveBonus     = 0.2
	KeywordLeadWords  = 50
	scoreEpsilon      = 1e-9
	RuleNegativeVeto  = "negative_veto"
	RuleStrongHit     = "strong_hit"
	RuleThreshold     = "threshold"
	RuleBelowMinimums = "below_minimums"
)

// EntityHit is one linked entity of an article.
type EntityHit struct {
	Key    domain.EntityKey
	Strong bool
}

// Article is what the router sees of an article.
type Article struct {
	ID        int64
	Title     string
	Lead      string
	Body      string
	Summary   string
	ClusterID int64
	Entities  []EntityHit
}

// KeywordText is the normalized title followed by the first words of the
// lead, or of the body when the lead is empty.
func (a Article) KeywordText() string {
	lead := a.Lead
	if lead == "" {
		lead = a.Body
	}
	title := textnorm.Normalize(a.Title)
	leadWords := textnorm.LeadWords(lead, KeywordLeadWords)
	switch {
	case title == "":
		return leadWords
	case leadWords == "":
		return title
	}
	return title + " " + leadWords
}

// Reasons is the audit trail stored with each routing result.
type Reasons struct {
	Rule            string   `json:"rule"`
	StrongHits      []string `json:"strong_hits,omitempty"`
	Hits            []string `json:"hits,omitempty"`
	ViaParent       []string `json:"via_parent,omitempty"`
	MatchedPositive []string `json:"matched_positive,omitempty"`
	MatchedNegative []string `json:"matched_negative,omitempty"`
}

// Decision is the outcome of evaluating one article against one contract.
type Decision struct {
	Included bool
	Score    float64
	Reasons  Reasons
}

// Router evaluates section contracts. The institution tree is optional and
// only consulted for contracts with IncludeChildren.
type Router struct {
	tree *catalog.InstitutionTree
}

func NewRouter(tree *catalog.InstitutionTree) *Router {
	return &Router{tree: tree}
}

// Route evaluates article against contract. A negative keyword excludes the
// article regardless of entity hits.
func (r *Router) Route(article Article, contract Contract) Decision {
	if !contract.compiled() {
		contract = contract.Compile()
	}
	text := article.KeywordText()

	negative := matchKeywords(text, contract.negative)
	if len(negative) > 0 {
		return Decision{
			Included: false,
			Score:    0,
			Reasons: Reasons{
				Rule:            RuleNegativeVeto,
				MatchedNegative: negative,
			},
		}
	}

	reasons := Reasons{MatchedPositive: matchKeywords(text, contract.positive)}
	strong := make(map[domain.EntityKey]bool, len(article.Entities))
	for _, hit := range article.Entities {
		strong[hit.Key] = strong[hit.Key] || hit.Strong
	}
	for key, isStrong := range strong {
		watched, viaParent := r.watches(contract, key)
		if !watched {
			continue
		}
		rendered := key.String()
		reasons.Hits = append(reasons.Hits, rendered)
		if viaParent {
			reasons.ViaParent = append(reasons.ViaParent, rendered)
		}
		if isStrong {
			reasons.StrongHits = append(reasons.StrongHits, rendered)
		}
	}
	sort.Strings(reasons.Hits)
	sort.Strings(reasons.StrongHits)
	sort.Strings(reasons.ViaParent)

	score := Score(len(reasons.StrongHits), len(reasons.Hits), len(reasons.MatchedPositive) > 0)
	decision := Decision{Score: score, Reasons: reasons}
	switch {
	case len(reasons.StrongHits) > 0:
		decision.Included = true
		decision.Reasons.Rule = RuleStrongHit
	case len(reasons.Hits) >= contract.MinMentions && score >= contract.MinScore-scoreEpsilon:
		decision.Included = true
		decision.Reasons.Rule = RuleThreshold
	default:
		decision.Reasons.Rule = RuleBelowMinimums
	}
	return decision
}

// Score combines strong hits, total hits and the positive keyword bonus,
// capped at 1.
func Score(strongHits, totalHits int, positive bool) float64 {
	score := math.Min(float64(strongHits)*StrongHitWeight, StrongHitCap) +
		math.Min(float64(totalHits)*TotalHitWeight, TotalHitCap)
	if positive {
		score += PositiveBonus
	}
	return math.Min(score, 1)
}

func (r *Router) watches(contract Contract, key domain.EntityKey) (watched, viaParent bool) {
	switch key.Type {
	case domain.EntityPerson:
		return containsID(contract.Watchlist.Persons, key.ID), false
	case domain.EntityInstitution:
		if containsID(contract.Watchlist.Institutions, key.ID) {
			return true, false
		}
		if !contract.IncludeChildren || r.tree == nil {
			return false, false
		}
		for _, ancestor := range r.tree.Ancestors(key.ID) {
			if containsID(contract.Watchlist.Institutions, ancestor) {
				return true, true
			}
		}
	}
	return false, false
}

func matchKeywords(text string, keywords []string) []string {
	var out []string
	for _, keyword := range keywords {
		if textnorm.ContainsPhrase(text, keyword) {
			out = append(out, keyword)
		}
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
