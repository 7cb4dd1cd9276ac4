package clustering

import "sort"

// MergeOp records one merge: every member of AbsorbedID moved into Survivor.
type MergeOp struct {
	Survivor   *Cluster
	AbsorbedID int64
}

// MergePass merges qualifying pairs until no pair qualifies. A pair
// qualifies when the centroid cosine exceeds MergeThreshold and the clusters
// share a top entity or at least MinMergeSharedTags top tags. The smaller
// cluster is absorbed; on equal size the lower id survives.
func (c *Clusterer) MergePass(clusters []*Cluster) ([]*Cluster, []MergeOp) {
	current := make([]*Cluster, 0, len(clusters))
	for _, cluster := range clusters {
		if cluster != nil {
			current = append(current, cluster)
		}
	}
	sort.SliceStable(current, func(i, j int) bool { return current[i].ID < current[j].ID })

	var ops []MergeOp
	for {
		i, j, ok := c.findMergePair(current)
		if !ok {
			return current, ops
		}

		survivor, absorbed := current[i], current[j]
		if len(absorbed.Members) > len(survivor.Members) ||
			(len(absorbed.Members) == len(survivor.Members) && absorbed.ID < survivor.ID) {
			survivor, absorbed = absorbed, survivor
		}

		merged := survivor.clone()
		for _, member := range absorbed.Members {
			if merged.Contains(member.Item.ArticleID) {
				continue
			}
			member.Signals.MergedFrom = absorbed.ID
			merged.Members = append(merged.Members, member)
		}
		Recompute(merged)

		next := make([]*Cluster, 0, len(current)-1)
		for _, cluster := range current {
			switch cluster {
			case survivor:
				next = append(next, merged)
			case absorbed:
			default:
				next = append(next, cluster)
			}
		}
		current = next
		ops = append(ops, MergeOp{Survivor: merged, AbsorbedID: absorbed.ID})
	}
}

func (c *Clusterer) findMergePair(clusters []*Cluster) (int, int, bool) {
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			if c.shouldMerge(clusters[i], clusters[j]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func (c *Clusterer) shouldMerge(a, b *Cluster) bool {
	if len(a.Centroid) == 0 || len(b.Centroid) == 0 {
		return false
	}
	if Cosine(a.Centroid, b.Centroid) <= c.params.MergeThreshold {
		return false
	}
	if len(intersect(a.TopEntities, b.TopEntities)) > 0 {
		return true
	}
	return len(intersect(a.TopTags, b.TopTags)) >= MinMergeSharedTags
}
