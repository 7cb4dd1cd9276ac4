package db

import (
	"context"
	"fmt"
)

// EntityRef is one linked entity of an article.
type EntityRef struct {
	Type       string
	ID         int64
	Name       string
	Confidence float64
}

// Key renders the "type:id" form.
func (r EntityRef) Key() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// ArticleEntityRefs returns the article_entities rows of each article with
// the entity display name, highest confidence first.
func (p *Pool) ArticleEntityRefs(ctx context.Context, articleIDs []int64) (map[int64][]EntityRef, error) {
	out := map[int64][]EntityRef{}
	if len(articleIDs) == 0 {
		return out, nil
	}
	const q = `
SELECT
	ae.article_id,
	ae.entity_type,
	ae.entity_id,
	COALESCE(p.full_name, i.name, ''),
	ae.confidence
FROM atlas.article_entities ae
LEFT JOIN atlas.persons p
	ON ae.entity_type = 'person' AND p.person_id = ae.entity_id
LEFT JOIN atlas.institutions i
	ON ae.entity_type = 'institution' AND i.institution_id = ae.entity_id
WHERE ae.article_id = ANY($1)
ORDER BY ae.article_id, ae.confidence DESC, ae.entity_type, ae.entity_id
`
	rows, err := p.Query(ctx, q, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("query article entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			articleID int64
			ref       EntityRef
		)
		if err := rows.Scan(&articleID, &ref.Type, &ref.ID, &ref.Name, &ref.Confidence); err != nil {
			return nil, fmt.Errorf("scan article entity: %w", err)
		}
		out[articleID] = append(out[articleID], ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article entities: %w", err)
	}
	return out, nil
}

// LinkedSurfaces returns, per article, the surfaces of every mention with a
// linked entity keyed by "type:id", in text order.
func (p *Pool) LinkedSurfaces(ctx context.Context, articleIDs []int64) (map[int64]map[string][]string, error) {
	out := map[int64]map[string][]string{}
	if len(articleIDs) == 0 {
		return out, nil
	}
	const q = `
SELECT m.article_id, el.entity_type, el.entity_id, m.surface
FROM atlas.entity_links el
JOIN atlas.mentions m ON m.mention_id = el.mention_id
WHERE el.status = 'linked'
	AND m.article_id = ANY($1)
ORDER BY m.article_id, m.span_start
`
	rows, err := p.Query(ctx, q, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("query linked surfaces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			articleID int64
			ref       EntityRef
			surface   string
		)
		if err := rows.Scan(&articleID, &ref.Type, &ref.ID, &surface); err != nil {
			return nil, fmt.Errorf("scan linked surface: %w", err)
		}
		bySurface := out[articleID]
		if bySurface == nil {
			bySurface = map[string][]string{}
			out[articleID] = bySurface
		}
		bySurface[ref.Key()] = append(bySurface[ref.Key()], surface)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked surfaces: %w", err)
	}
	return out, nil
}

// ClusterAssignments maps article id to cluster id within scope.
func (p *Pool) ClusterAssignments(ctx context.Context, scope string, articleIDs []int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	if len(articleIDs) == 0 {
		return out, nil
	}
	const q = `
SELECT article_id, cluster_id
FROM atlas.cluster_members
WHERE scope = $1
	AND article_id = ANY($2)
`
	rows, err := p.Query(ctx, q, scope, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("query cluster assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var articleID, clusterID int64
		if err := rows.Scan(&articleID, &clusterID); err != nil {
			return nil, fmt.Errorf("scan cluster assignment: %w", err)
		}
		out[articleID] = clusterID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster assignments: %w", err)
	}
	return out, nil
}
