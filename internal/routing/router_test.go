package routing

import (
	"math"
	"strings"
	"testing"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/domain"
)

func personHit(id int64, strong bool) EntityHit {
	return EntityHit{Key: domain.EntityKey{Type: domain.EntityPerson, ID: id}, Strong: strong}
}

func institutionHit(id int64, strong bool) EntityHit {
	return EntityHit{Key: domain.EntityKey{Type: domain.EntityInstitution, ID: id}, Strong: strong}
}

func governmentContract() Contract {
	c := NewContract("gobierno", "Gobierno")
	c.Watchlist = Watchlist{Persons: []int64{1, 2}, Institutions: []int64{10}}
	c.PositiveKeywords = []string{"Gabinete"}
	c.NegativeKeywords = []string{"esquela"}
	c.MinScore = 0.4
	c.MinMentions = 1
	return c.Compile()
}

func TestRouteNegativeKeywordVetoesStrongHit(t *testing.T) {
	t.Parallel()

	article := Article{
		ID:       1,
		Title:    "Kuri publica esquela",
		Entities: []EntityHit{personHit(1, true)},
	}
	decision := NewRouter(nil).Route(article, governmentContract())

	if decision.Included {
		t.Fatalf("negative keyword must exclude the article")
	}
	if len(decision.Reasons.MatchedNegative) == 0 || decision.Reasons.MatchedNegative[0] != "esquela" {
		t.Fatalf("matched_negative = %v", decision.Reasons.MatchedNegative)
	}
	if decision.Reasons.Rule != RuleNegativeVeto {
		t.Fatalf("rule = %q", decision.Reasons.Rule)
	}
}

func TestRouteDecisions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		article   Article
		contract  func() Contract
		included  bool
		score     float64
		rule      string
		strongHit int
	}{
		{
			name:      "strong hit includes",
			article:   Article{Title: "Informe", Entities: []EntityHit{personHit(1, true)}},
			contract:  governmentContract,
			included:  true,
			score:     0.8,
			rule:      RuleStrongHit,
			strongHit: 1,
		},
		{
			name:     "weak hits reach the threshold",
			article:  Article{Title: "Informe", Entities: []EntityHit{personHit(1, false), personHit(2, false)}},
			contract: governmentContract,
			included: true,
			score:    0.4,
			rule:     RuleThreshold,
		},
		{
			name:     "single weak hit below min score",
			article:  Article{Title: "Informe", Entities: []EntityHit{personHit(1, false)}},
			contract: governmentContract,
			included: false,
			score:    0.2,
			rule:     RuleBelowMinimums,
		},
		{
			name:     "positive keyword lifts a weak hit",
			article:  Article{Title: "Cambios en el gabinete", Entities: []EntityHit{personHit(2, false)}},
			contract: governmentContract,
			included: true,
			score:    0.4,
			rule:     RuleThreshold,
		},
		{
			name:     "keyword alone does not meet min mentions",
			article:  Article{Title: "Cambios en el gabinete"},
			contract: governmentContract,
			included: false,
			score:    0.2,
			rule:     RuleBelowMinimums,
		},
		{
			name:    "keyword only section",
			article: Article{Title: "Operativo de seguridad"},
			contract: func() Contract {
				c := NewContract("seguridad", "Seguridad")
				c.PositiveKeywords = []string{"seguridad"}
				c.MinMentions = 0
				c.MinScore = 0.2
				return c
			},
			included: true,
			score:    0.2,
			rule:     RuleThreshold,
		},
		{
			name:     "unwatched entities ignored",
			article:  Article{Title: "Informe", Entities: []EntityHit{personHit(9, true)}},
			contract: governmentContract,
			included: false,
			score:    0,
			rule:     RuleBelowMinimums,
		},
		{
			name: "duplicate entity counted once and strong wins",
			article: Article{Title: "Informe", Entities: []EntityHit{
				personHit(1, false),
				personHit(1, true),
			}},
			contract:  governmentContract,
			included:  true,
			score:     0.8,
			rule:      RuleStrongHit,
			strongHit: 1,
		},
	}

	router := NewRouter(nil)
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			decision := router.Route(tc.article, tc.contract())
			if decision.Included != tc.included {
				t.Fatalf("included = %v, want %v (%+v)", decision.Included, tc.included, decision.Reasons)
			}
			if math.Abs(decision.Score-tc.score) > 1e-9 {
				t.Fatalf("score = %v, want %v", decision.Score, tc.score)
			}
			if decision.Reasons.Rule != tc.rule {
				t.Fatalf("rule = %q, want %q", decision.Reasons.Rule, tc.rule)
			}
			if len(decision.Reasons.StrongHits) != tc.strongHit {
				t.Fatalf("strong hits = %v", decision.Reasons.StrongHits)
			}
		})
	}
}

func TestScoreCaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		strong, total int
		positive      bool
		want          float64
	}{
		{0, 0, false, 0},
		{0, 0, true, 0.2},
		{1, 1, false, 0.8},
		{1, 5, false, 1},
		{0, 5, false, 0.6},
		{0, 5, true, 0.8},
		{3, 3, true, 1},
	}
	for _, tc := range tests {
		if got := Score(tc.strong, tc.total, tc.positive); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Score(%d,%d,%v) = %v, want %v", tc.strong, tc.total, tc.positive, got, tc.want)
		}
	}
}

func TestRouteIncludeChildren(t *testing.T) {
	t.Parallel()

	tree := catalog.NewInstitutionTree(map[int64]int64{
		11: 10,
		12: 11,
		30: 31,
		31: 30,
	})
	router := NewRouter(tree)
	article := Article{Title: "Informe", Entities: []EntityHit{institutionHit(12, true)}}

	withChildren := governmentContract()
	withChildren.IncludeChildren = true
	decision := router.Route(article, withChildren)
	if !decision.Included || len(decision.Reasons.ViaParent) != 1 || decision.Reasons.ViaParent[0] != "institution:12" {
		t.Fatalf("grandchild institution should count: %+v", decision)
	}

	if router.Route(article, governmentContract()).Included {
		t.Fatalf("children must not count without include_children")
	}

	cyclic := Article{Title: "Informe", Entities: []EntityHit{institutionHit(30, true)}}
	if router.Route(cyclic, withChildren).Included {
		t.Fatalf("cyclic parents must terminate without a hit")
	}
}

func TestKeywordTextUsesLeadWords(t *testing.T) {
	t.Parallel()

	lead := strings.Repeat("palabra ", KeywordLeadWords) + "esquela"
	article := Article{Title: "Informe", Lead: lead, Entities: []EntityHit{personHit(1, true)}}
	if decision := NewRouter(nil).Route(article, governmentContract()); !decision.Included {
		t.Fatalf("keywords past the lead window must not veto: %+v", decision.Reasons)
	}

	fromBody := Article{Title: "Informe", Body: "Publican esquela del exfuncionario"}
	if got := fromBody.KeywordText(); got != "informe publican esquela del exfuncionario" {
		t.Fatalf("KeywordText = %q", got)
	}
}

func TestRouteCompilesLazily(t *testing.T) {
	t.Parallel()

	c := NewContract("gobierno", "Gobierno")
	c.Watchlist.Persons = []int64{1}
	c.NegativeKeywords = []string{"Esquéla"}
	decision := NewRouter(nil).Route(Article{Title: "La esquela", Entities: []EntityHit{personHit(1, true)}}, c)
	if decision.Included {
		t.Fatalf("uncompiled contract should still veto")
	}
}
