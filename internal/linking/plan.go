package linking

import (
	"math"
	"sort"

	"horse.fit/atlas/internal/domain"
)

// Action is the write a plan performs.
type Action string

const (
	ActionNoop    Action = "noop"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionPromote Action = "promote"
)

// Plan is the write needed to bring a mention's links in line with a
// decision. TargetID names the existing row for update and promote. Previous
// holds that row as it was before the write.
type Plan struct {
	Action   Action
	TargetID int64
	Link     domain.EntityLink
	Previous *domain.EntityLink
}

// WritesLinked reports whether applying the plan leaves a new or changed
// linked row.
func (p Plan) WritesLinked() bool {
	return p.Action != ActionNoop && p.Link.Status == domain.LinkLinked
}

// PlanLink decides how to persist decision for mentionID given the mention's
// existing links. Linked rows are never downgraded; re-resolution updates
// rows in place instead of adding duplicates.
func PlanLink(mentionID int64, existing []domain.EntityLink, decision Decision) Plan {
	status := decision.Status()
	if status == "" {
		return Plan{Action: ActionNoop}
	}

	desired := domain.EntityLink{
		MentionID:       mentionID,
		EntityType:      decision.Entity.Type,
		EntityID:        decision.Entity.ID,
		Status:          status,
		Confidence:      decision.Score,
		Reasons:         append([]string(nil), decision.Reasons...),
		ResolverVersion: ResolverVersion,
	}

	rows := append([]domain.EntityLink(nil), existing...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	var linked *domain.EntityLink
	var proposed []domain.EntityLink
	for i := range rows {
		switch rows[i].Status {
		case domain.LinkLinked:
			if linked == nil {
				linked = &rows[i]
			}
		case domain.LinkProposed:
			proposed = append(proposed, rows[i])
		}
	}

	switch status {
	case domain.LinkLinked:
		if linked != nil {
			if linked.EntityKey() == decision.Entity {
				return Plan{Action: ActionNoop, TargetID: linked.ID, Link: *linked}
			}
			return inPlace(ActionUpdate, *linked, desired)
		}
		if len(proposed) > 0 {
			target := proposed[0]
			for _, row := range proposed {
				if row.EntityKey() == decision.Entity {
					target = row
					break
				}
			}
			return inPlace(ActionPromote, target, desired)
		}
		return Plan{Action: ActionCreate, Link: desired}

	case domain.LinkProposed:
		if linked != nil {
			return Plan{Action: ActionNoop, TargetID: linked.ID, Link: *linked}
		}
		for _, row := range proposed {
			if row.EntityKey() != decision.Entity {
				continue
			}
			if sameScore(row.Confidence, desired.Confidence) && equalReasons(row.Reasons, desired.Reasons) {
				return Plan{Action: ActionNoop, TargetID: row.ID, Link: row}
			}
			return inPlace(ActionUpdate, row, desired)
		}
		return Plan{Action: ActionCreate, Link: desired}
	}
	return Plan{Action: ActionNoop}
}

func inPlace(action Action, current, desired domain.EntityLink) Plan {
	previous := current
	desired.ID = current.ID
	return Plan{Action: action, TargetID: current.ID, Link: desired, Previous: &previous}
}

func sameScore(a, b float64) bool {
	return math.Abs(a-b) <= scoreEpsilon
}

func equalReasons(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
