// Package clustering groups articles into long-lived story clusters using
// embedding similarity gated by entity and tag overlap.
package clustering

import (
	"math"
	"sort"
	"time"
)

const (
	DefaultStrongThreshold = 0.86
	DefaultTagThreshold    = 0.90
	tagThresholdSpread     = DefaultTagThreshold - DefaultStrongThreshold

	DefaultMergeThreshold = 0.90
	MinSharedTags         = 2
	MinMergeSharedTags    = 3
	TopN                  = 6
)

// Params tune assignment and merging.
type Params struct {
	StrongThreshold float64
	TagThreshold    float64
	MergeThreshold  float64
}

func DefaultParams() Params {
	return Params{
		StrongThreshold: DefaultStrongThreshold,
		TagThreshold:    DefaultTagThreshold,
		MergeThreshold:  DefaultMergeThreshold,
	}
}

// WithThreshold overrides the strong-overlap threshold. The tag-only
// threshold keeps its spread above it, capped at 1.
func (p Params) WithThreshold(threshold float64) Params {
	if threshold <= 0 {
		return p
	}
	p.StrongThreshold = math.Min(threshold, 1)
	p.TagThreshold = math.Min(threshold+tagThresholdSpread, 1)
	return p
}

// Item is one article prepared for clustering.
type Item struct {
	ArticleID int64
	Title     string
	Summary   string
	Body      string
	Embedding []float64

	// Entities are the "type:id" keys of every linked entity; Strong is the
	// subset mentioned prominently.
	Entities    []string
	EntityNames []string
	Strong      []string
	Tags        []string
	Timestamp   time.Time

	// Surfaces holds the linked mention surfaces per entity key, used to
	// grade strength when Strong is not precomputed.
	Surfaces map[string][]string
}

// Signals explains why an article joined a cluster.
type Signals struct {
	Seed          bool     `json:"seed,omitempty"`
	StrongOverlap []string `json:"strong_overlap,omitempty"`
	TagOverlap    []string `json:"tag_overlap,omitempty"`
	Threshold     float64  `json:"threshold,omitempty"`
	MergedFrom    int64    `json:"merged_from,omitempty"`
}

// Member is an article inside a cluster with the data needed to recompute
// the cluster aggregates.
type Member struct {
	Item       Item
	Similarity float64
	Signals    Signals
	Strong     bool
}

// Cluster is a story cluster with its aggregates.
type Cluster struct {
	ID          int64
	Scope       string
	Centroid    []float64
	TopEntities []string
	TopTags     []string
	TimeStart   time.Time
	TimeEnd     time.Time
	Cohesion    float64
	Members     []Member
	CreatedAt   time.Time
}

// Contains reports whether the article is already a member.
func (c *Cluster) Contains(articleID int64) bool {
	for _, member := range c.Members {
		if member.Item.ArticleID == articleID {
			return true
		}
	}
	return false
}

// Clusterer makes assignment and merge decisions. It holds no state.
type Clusterer struct {
	params Params
}

func NewClusterer(params Params) *Clusterer {
	return &Clusterer{params: params}
}

func (c *Clusterer) Params() Params {
	return c.params
}

// Match is a gated candidate that met its similarity threshold.
type Match struct {
	Cluster    *Cluster
	Similarity float64
	Signals    Signals
}

// Assign picks the best cluster for item among candidates. Only clusters
// passing the overlap gate are scored; a strong-entity overlap needs
// StrongThreshold, a tag-only overlap needs TagThreshold. Ties keep the
// earlier candidate.
func (c *Clusterer) Assign(item Item, candidates []*Cluster) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, candidate := range candidates {
		if candidate == nil || candidate.Contains(item.ArticleID) {
			continue
		}
		strong := intersect(item.Strong, candidate.TopEntities)
		tags := intersect(item.Tags, candidate.TopTags)
		if len(strong) == 0 && len(tags) < MinSharedTags {
			continue
		}

		threshold := c.params.TagThreshold
		if len(strong) > 0 {
			threshold = c.params.StrongThreshold
		}
		similarity := Cosine(item.Embedding, candidate.Centroid)
		if similarity < threshold {
			continue
		}
		if found && similarity <= best.Similarity {
			continue
		}
		best = Match{
			Cluster:    candidate,
			Similarity: similarity,
			Signals: Signals{
				StrongOverlap: strong,
				TagOverlap:    tags,
				Threshold:     threshold,
			},
		}
		found = true
	}
	return best, found
}

// Seed builds a single-member cluster from item. Its top entities are the
// item's strong entities.
func (c *Clusterer) Seed(scope string, item Item) *Cluster {
	cluster := &Cluster{
		Scope:       scope,
		Centroid:    append([]float64(nil), item.Embedding...),
		TopEntities: firstN(sortedUnique(item.Strong), TopN),
		TopTags:     firstN(sortedUnique(item.Tags), TopN),
		TimeStart:   item.Timestamp,
		TimeEnd:     item.Timestamp,
		Cohesion:    1,
		Members: []Member{{
			Item:       item,
			Similarity: 1,
			Signals:    Signals{Seed: true},
			Strong:     true,
		}},
	}
	return cluster
}

// Join returns a copy of cluster with item appended and every aggregate
// recomputed. The input is left untouched so a failed write can be dropped.
func (c *Clusterer) Join(cluster *Cluster, match Match, item Item) *Cluster {
	next := cluster.clone()
	next.Members = append(next.Members, Member{
		Item:       item,
		Similarity: match.Similarity,
		Signals:    match.Signals,
		Strong:     len(match.Signals.StrongOverlap) > 0,
	})
	Recompute(next)
	return next
}

// Recompute refreshes centroid, top entities and tags, time span and
// cohesion from the members.
func Recompute(cluster *Cluster) {
	vectors := make([][]float64, 0, len(cluster.Members))
	entityCounts := map[string]int{}
	tagCounts := map[string]int{}
	var start, end time.Time
	for i, member := range cluster.Members {
		vectors = append(vectors, member.Item.Embedding)
		for _, key := range uniqueStrings(member.Item.Entities) {
			entityCounts[key]++
		}
		for _, tag := range uniqueStrings(member.Item.Tags) {
			tagCounts[tag]++
		}
		ts := member.Item.Timestamp
		if i == 0 || ts.Before(start) {
			start = ts
		}
		if i == 0 || ts.After(end) {
			end = ts
		}
	}

	if centroid := Mean(vectors); centroid != nil {
		cluster.Centroid = centroid
	}
	cluster.TopEntities = mostCommon(entityCounts, TopN)
	cluster.TopTags = mostCommon(tagCounts, TopN)
	cluster.TimeStart = start
	cluster.TimeEnd = end
	cluster.Cohesion = cohesion(cluster)
}

func cohesion(cluster *Cluster) float64 {
	if len(cluster.Members) == 0 {
		return 0
	}
	var sum float64
	for _, member := range cluster.Members {
		sum += Cosine(member.Item.Embedding, cluster.Centroid)
	}
	return sum / float64(len(cluster.Members))
}

func (c *Cluster) clone() *Cluster {
	out := *c
	out.Centroid = append([]float64(nil), c.Centroid...)
	out.TopEntities = append([]string(nil), c.TopEntities...)
	out.TopTags = append([]string(nil), c.TopTags...)
	out.Members = append([]Member(nil), c.Members...)
	return &out
}

// mostCommon ranks keys by count descending, ties by key ascending.
func mostCommon(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return firstN(keys, n)
}

func intersect(values, set []string) []string {
	if len(values) == 0 || len(set) == 0 {
		return nil
	}
	lookup := make(map[string]struct{}, len(set))
	for _, value := range set {
		lookup[value] = struct{}{}
	}
	var out []string
	for _, value := range uniqueStrings(values) {
		if _, ok := lookup[value]; ok {
			out = append(out, value)
		}
	}
	sort.Strings(out)
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func sortedUnique(values []string) []string {
	out := uniqueStrings(values)
	sort.Strings(out)
	return out
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
