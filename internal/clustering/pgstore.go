package clustering

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"horse.fit/atlas/internal/db"
)

// PGStore implements Store on atlas.story_clusters and atlas.cluster_members.
type PGStore struct {
	pool *db.Pool
}

func NewPGStore(pool *db.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) LoadItems(ctx context.Context, q ItemQuery) ([]Item, error) {
	const query = `
SELECT
	a.article_id,
	a.title,
	a.summary,
	a.lead,
	a.body,
	a.topics,
	a.embedding::text,
	COALESCE(a.published_at, a.fetched_at)
FROM atlas.articles a
WHERE COALESCE(a.published_at, a.fetched_at) >= $1
	AND NOT EXISTS (
		SELECT 1
		FROM atlas.cluster_members cm
		WHERE cm.scope = $2
			AND cm.article_id = a.article_id
	)
ORDER BY COALESCE(a.published_at, a.fetched_at) ASC, a.article_id ASC
LIMIT NULLIF($3, 0)
`
	rows, err := s.pool.Query(ctx, query, q.Since.UTC(), q.Scope, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query cluster items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item      Item
			lead      string
			body      string
			topics    []byte
			embedding *string
		)
		if err := rows.Scan(
			&item.ArticleID,
			&item.Title,
			&item.Summary,
			&lead,
			&body,
			&topics,
			&embedding,
			&item.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan cluster item: %w", err)
		}
		item.Body = strings.TrimSpace(lead + "\n" + body)
		if err := decodeStrings(topics, &item.Tags); err != nil {
			return nil, fmt.Errorf("decode topics article_id=%d: %w", item.ArticleID, err)
		}
		if item.Embedding, err = db.ParseVectorLiteral(embedding); err != nil {
			return nil, fmt.Errorf("parse embedding article_id=%d: %w", item.ArticleID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster items: %w", err)
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ArticleID)
	}
	entities, err := s.loadEntities(ctx, ids)
	if err != nil {
		return nil, err
	}
	surfaces, err := s.pool.LinkedSurfaces(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		info := entities[items[i].ArticleID]
		items[i].Entities = info.keys
		items[i].EntityNames = info.names
		items[i].Surfaces = surfaces[items[i].ArticleID]
	}
	return items, nil
}

func (s *PGStore) loadEntities(ctx context.Context, articleIDs []int64) (map[int64]articleEntities, error) {
	refs, err := s.pool.ArticleEntityRefs(ctx, articleIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]articleEntities, len(refs))
	for articleID, list := range refs {
		var info articleEntities
		for _, ref := range list {
			info.keys = append(info.keys, ref.Key())
			if ref.Name != "" {
				info.names = append(info.names, ref.Name)
			}
		}
		out[articleID] = info
	}
	return out, nil
}

type articleEntities struct {
	keys  []string
	names []string
}

func (s *PGStore) LoadClusters(ctx context.Context, scope string, since time.Time) ([]*Cluster, error) {
	const clustersQ = `
SELECT
	cluster_id,
	scope,
	centroid::text,
	top_entities,
	top_tags,
	time_start,
	time_end,
	COALESCE(cohesion, 0),
	created_at
FROM atlas.story_clusters
WHERE scope = $1
	AND (time_end >= $2 OR created_at >= $2)
ORDER BY cluster_id
`
	rows, err := s.pool.Query(ctx, clustersQ, scope, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var (
		clusters []*Cluster
		byID     = map[int64]*Cluster{}
	)
	for rows.Next() {
		var (
			cluster     Cluster
			centroid    *string
			topEntities []byte
			topTags     []byte
			timeStart   *time.Time
			timeEnd     *time.Time
		)
		if err := rows.Scan(
			&cluster.ID,
			&cluster.Scope,
			&centroid,
			&topEntities,
			&topTags,
			&timeStart,
			&timeEnd,
			&cluster.Cohesion,
			&cluster.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		if cluster.Centroid, err = db.ParseVectorLiteral(centroid); err != nil {
			return nil, fmt.Errorf("parse centroid cluster_id=%d: %w", cluster.ID, err)
		}
		if err := decodeStrings(topEntities, &cluster.TopEntities); err != nil {
			return nil, fmt.Errorf("decode top entities cluster_id=%d: %w", cluster.ID, err)
		}
		if err := decodeStrings(topTags, &cluster.TopTags); err != nil {
			return nil, fmt.Errorf("decode top tags cluster_id=%d: %w", cluster.ID, err)
		}
		if timeStart != nil {
			cluster.TimeStart = *timeStart
		}
		if timeEnd != nil {
			cluster.TimeEnd = *timeEnd
		}
		clusters = append(clusters, &cluster)
		byID[cluster.ID] = &cluster
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}
	if len(clusters) == 0 {
		return nil, nil
	}
	if err := s.loadMembers(ctx, byID); err != nil {
		return nil, err
	}
	return clusters, nil
}

func (s *PGStore) loadMembers(ctx context.Context, byID map[int64]*Cluster) error {
	clusterIDs := make([]int64, 0, len(byID))
	for id := range byID {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Slice(clusterIDs, func(i, j int) bool { return clusterIDs[i] < clusterIDs[j] })

	const membersQ = `
SELECT
	cm.cluster_id,
	cm.article_id,
	cm.similarity,
	cm.matched_signals,
	cm.is_strong_match,
	a.title,
	a.summary,
	a.topics,
	a.embedding::text,
	COALESCE(a.published_at, a.fetched_at)
FROM atlas.cluster_members cm
JOIN atlas.articles a ON a.article_id = cm.article_id
WHERE cm.cluster_id = ANY($1)
ORDER BY cm.cluster_id, cm.member_id
`
	rows, err := s.pool.Query(ctx, membersQ, clusterIDs)
	if err != nil {
		return fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	var articleIDs []int64
	for rows.Next() {
		var (
			clusterID int64
			member    Member
			signals   []byte
			topics    []byte
			embedding *string
		)
		if err := rows.Scan(
			&clusterID,
			&member.Item.ArticleID,
			&member.Similarity,
			&signals,
			&member.Strong,
			&member.Item.Title,
			&member.Item.Summary,
			&topics,
			&embedding,
			&member.Item.Timestamp,
		); err != nil {
			return fmt.Errorf("scan cluster member: %w", err)
		}
		if len(signals) > 0 {
			if err := json.Unmarshal(signals, &member.Signals); err != nil {
				return fmt.Errorf("decode signals article_id=%d: %w", member.Item.ArticleID, err)
			}
		}
		if err := decodeStrings(topics, &member.Item.Tags); err != nil {
			return fmt.Errorf("decode topics article_id=%d: %w", member.Item.ArticleID, err)
		}
		if member.Item.Embedding, err = db.ParseVectorLiteral(embedding); err != nil {
			return fmt.Errorf("parse embedding article_id=%d: %w", member.Item.ArticleID, err)
		}
		member.Item = PrepareItem(member.Item)
		cluster := byID[clusterID]
		cluster.Members = append(cluster.Members, member)
		articleIDs = append(articleIDs, member.Item.ArticleID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cluster members: %w", err)
	}

	entities, err := s.loadEntities(ctx, articleIDs)
	if err != nil {
		return err
	}
	for _, cluster := range byID {
		for i := range cluster.Members {
			info := entities[cluster.Members[i].Item.ArticleID]
			cluster.Members[i].Item.Entities = info.keys
			cluster.Members[i].Item.EntityNames = info.names
		}
	}
	return nil
}

func (s *PGStore) SaveEmbedding(ctx context.Context, articleID int64, vector []float64, model string) error {
	return s.pool.SetArticleEmbedding(ctx, articleID, vector, model)
}

func (s *PGStore) CreateCluster(ctx context.Context, cluster *Cluster) (int64, error) {
	if len(cluster.Members) == 0 {
		return 0, fmt.Errorf("create cluster: no members")
	}
	const insertQ = `
INSERT INTO atlas.story_clusters (
	scope,
	centroid,
	top_entities,
	top_tags,
	time_start,
	time_end,
	cohesion,
	member_count
)
VALUES ($1, $2::vector, $3::jsonb, $4::jsonb, $5, $6, $7, $8)
RETURNING cluster_id
`
	var id int64
	err := s.pool.InTx(ctx, func(tx db.Tx) error {
		args, err := aggregateArgs(cluster)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, insertQ, append([]any{cluster.Scope}, args...)...).Scan(&id); err != nil {
			return fmt.Errorf("insert cluster: %w", err)
		}
		return insertMember(ctx, tx, id, cluster.Scope, cluster.Members[0])
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PGStore) AddMember(ctx context.Context, cluster *Cluster, member Member) error {
	return s.pool.InTx(ctx, func(tx db.Tx) error {
		if err := insertMember(ctx, tx, cluster.ID, cluster.Scope, member); err != nil {
			return err
		}
		return updateAggregates(ctx, tx, cluster)
	})
}

func (s *PGStore) MergeClusters(ctx context.Context, survivor *Cluster, absorbedID int64) error {
	const moveQ = `
UPDATE atlas.cluster_members
SET
	cluster_id = $1,
	matched_signals = matched_signals || jsonb_build_object('merged_from', $2::bigint)
WHERE cluster_id = $2
	AND article_id NOT IN (
		SELECT article_id FROM atlas.cluster_members WHERE cluster_id = $1
	)
`
	const deleteMembersQ = `DELETE FROM atlas.cluster_members WHERE cluster_id = $1`
	const deleteClusterQ = `DELETE FROM atlas.story_clusters WHERE cluster_id = $1`

	return s.pool.InTx(ctx, func(tx db.Tx) error {
		if _, err := tx.Exec(ctx, moveQ, survivor.ID, absorbedID); err != nil {
			return fmt.Errorf("move merged members: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteMembersQ, absorbedID); err != nil {
			return fmt.Errorf("delete absorbed members: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteClusterQ, absorbedID); err != nil {
			return fmt.Errorf("delete absorbed cluster: %w", err)
		}
		return updateAggregates(ctx, tx, survivor)
	})
}

func insertMember(ctx context.Context, tx db.Tx, clusterID int64, scope string, member Member) error {
	const insertQ = `
INSERT INTO atlas.cluster_members (
	cluster_id,
	article_id,
	scope,
	similarity,
	matched_signals,
	is_strong_match
)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)
ON CONFLICT (scope, article_id) DO NOTHING
`
	signals, err := json.Marshal(member.Signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	tag, err := tx.Exec(ctx, insertQ,
		clusterID,
		member.Item.ArticleID,
		scope,
		member.Similarity,
		string(signals),
		member.Strong,
	)
	if err != nil {
		return fmt.Errorf("insert cluster member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAssigned
	}
	return nil
}

func updateAggregates(ctx context.Context, tx db.Tx, cluster *Cluster) error {
	const updateQ = `
UPDATE atlas.story_clusters
SET
	centroid = $2::vector,
	top_entities = $3::jsonb,
	top_tags = $4::jsonb,
	time_start = $5,
	time_end = $6,
	cohesion = $7,
	member_count = $8,
	updated_at = now()
WHERE cluster_id = $1
`
	args, err := aggregateArgs(cluster)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, updateQ, append([]any{cluster.ID}, args...)...); err != nil {
		return fmt.Errorf("update cluster aggregates: %w", err)
	}
	return nil
}

func aggregateArgs(cluster *Cluster) ([]any, error) {
	centroid, err := db.ToVectorLiteral(cluster.Centroid)
	if err != nil {
		return nil, fmt.Errorf("encode centroid: %w", err)
	}
	topEntities, err := db.JSONB(cluster.TopEntities)
	if err != nil {
		return nil, err
	}
	topTags, err := db.JSONB(cluster.TopTags)
	if err != nil {
		return nil, err
	}
	return []any{
		centroid,
		string(topEntities),
		string(topTags),
		nullableTime(cluster.TimeStart),
		nullableTime(cluster.TimeEnd),
		cluster.Cohesion,
		len(cluster.Members),
	}, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func decodeStrings(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
