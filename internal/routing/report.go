package routing

import (
	"context"
	"encoding/json"
	"fmt"
)

// StoredResult is one persisted routing decision as read back for a run.
type StoredResult struct {
	SectionKey string          `json:"section_key"`
	ArticleID  int64           `json:"article_id"`
	Included   bool            `json:"included"`
	Score      float64         `json:"score"`
	Reasons    json.RawMessage `json:"reasons"`
}

// StoredStory is one persisted synthesis story.
type StoredStory struct {
	SectionKey  string  `json:"section_key"`
	Fingerprint string  `json:"fingerprint"`
	ClusterID   *int64  `json:"cluster_id,omitempty"`
	SortOrder   int     `json:"sort_order"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	ArticleIDs  []int64 `json:"article_ids"`
}

// RunReport groups everything the router wrote for one pipeline run.
type RunReport struct {
	Results []StoredResult `json:"results"`
	Stories []StoredStory  `json:"stories"`
}

// RunReport reads the routing results and synthesis stories of a run,
// ordered by section then score or story order.
func (s *PGStore) RunReport(ctx context.Context, runID int64) (RunReport, error) {
	const resultsQ = `
SELECT section_key, article_id, included, score, reasons::text
FROM atlas.routing_results
WHERE run_id = $1
ORDER BY section_key, score DESC, article_id
`
	const storiesQ = `
SELECT section_key, fingerprint, cluster_id, sort_order, title, summary, article_ids::text
FROM atlas.synthesis_stories
WHERE run_id = $1
ORDER BY section_key, sort_order, story_id
`
	report := RunReport{Results: []StoredResult{}, Stories: []StoredStory{}}

	rows, err := s.pool.Query(ctx, resultsQ, runID)
	if err != nil {
		return report, fmt.Errorf("query routing results run_id=%d: %w", runID, err)
	}
	for rows.Next() {
		var (
			result  StoredResult
			reasons string
		)
		if err := rows.Scan(&result.SectionKey, &result.ArticleID, &result.Included, &result.Score, &reasons); err != nil {
			rows.Close()
			return report, fmt.Errorf("scan routing result: %w", err)
		}
		result.Reasons = json.RawMessage(reasons)
		report.Results = append(report.Results, result)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return report, fmt.Errorf("iterate routing results: %w", err)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, storiesQ, runID)
	if err != nil {
		return report, fmt.Errorf("query synthesis stories run_id=%d: %w", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			story      StoredStory
			articleIDs string
		)
		if err := rows.Scan(
			&story.SectionKey,
			&story.Fingerprint,
			&story.ClusterID,
			&story.SortOrder,
			&story.Title,
			&story.Summary,
			&articleIDs,
		); err != nil {
			return report, fmt.Errorf("scan synthesis story: %w", err)
		}
		if err := json.Unmarshal([]byte(articleIDs), &story.ArticleIDs); err != nil {
			return report, fmt.Errorf("decode article_ids story=%s: %w", story.Fingerprint, err)
		}
		report.Stories = append(report.Stories, story)
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("iterate synthesis stories: %w", err)
	}
	return report, nil
}
