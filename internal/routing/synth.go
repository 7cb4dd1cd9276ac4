package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"horse.fit/atlas/internal/textnorm"
)

const (
	StoryTitleWords   = 14
	StorySummaryWords = 45
)

// Story groups the included articles of one section that share a cluster.
type Story struct {
	SectionKey  string
	ClusterID   int64
	Fingerprint string
	SortOrder   int
	Title       string
	Summary     string
	ArticleIDs  []int64
}

// Synthesize groups included articles by cluster. Articles without a cluster
// form single-article stories. Stories are ordered by size, then by their
// first article in input order.
func Synthesize(sectionKey string, included []Article) []Story {
	type group struct {
		first    int
		articles []Article
	}
	groups := map[int64]*group{}
	var order []*group
	for i, article := range included {
		if article.ClusterID <= 0 {
			g := &group{first: i, articles: []Article{article}}
			order = append(order, g)
			continue
		}
		g, ok := groups[article.ClusterID]
		if !ok {
			g = &group{first: i}
			groups[article.ClusterID] = g
			order = append(order, g)
		}
		g.articles = append(g.articles, article)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if len(order[i].articles) != len(order[j].articles) {
			return len(order[i].articles) > len(order[j].articles)
		}
		return order[i].first < order[j].first
	})

	stories := make([]Story, 0, len(order))
	for i, g := range order {
		lead := g.articles[0]
		ids := make([]int64, 0, len(g.articles))
		for _, article := range g.articles {
			ids = append(ids, article.ID)
		}
		summary := storySummary(lead)
		stories = append(stories, Story{
			SectionKey:  sectionKey,
			ClusterID:   lead.ClusterID,
			Fingerprint: Fingerprint(summary, ids),
			SortOrder:   i,
			Title:       textnorm.ClipWords(lead.Title, StoryTitleWords),
			Summary:     summary,
			ArticleIDs:  ids,
		})
	}
	return stories
}

func storySummary(article Article) string {
	for _, candidate := range []string{article.Summary, article.Lead, article.Body, article.Title} {
		if clipped := textnorm.ClipWords(candidate, StorySummaryWords); clipped != "" {
			return clipped
		}
	}
	return ""
}

// Fingerprint identifies a story by its normalized central idea and the
// sorted ids of its articles.
func Fingerprint(centralIdea string, articleIDs []int64) string {
	ids := append([]int64(nil), articleIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	sum := sha256.Sum256([]byte(textnorm.Normalize(centralIdea) + "|" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}
