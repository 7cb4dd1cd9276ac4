package catalog

import "horse.fit/atlas/internal/domain"

// MaxParentDepth bounds every walk up the institution tree.
const MaxParentDepth = 16

// InstitutionTree resolves institution parents iteratively.
type InstitutionTree struct {
	parents map[int64]int64
}

func newInstitutionTree(entities []Entity) *InstitutionTree {
	tree := &InstitutionTree{parents: make(map[int64]int64)}
	for _, entity := range entities {
		if entity.Type != domain.EntityInstitution || entity.ParentID == nil {
			continue
		}
		if *entity.ParentID > 0 && *entity.ParentID != entity.ID {
			tree.parents[entity.ID] = *entity.ParentID
		}
	}
	return tree
}

// NewInstitutionTree builds a tree from child -> parent ids.
func NewInstitutionTree(parents map[int64]int64) *InstitutionTree {
	copied := make(map[int64]int64, len(parents))
	for child, parent := range parents {
		if parent > 0 && parent != child {
			copied[child] = parent
		}
	}
	return &InstitutionTree{parents: copied}
}

// Ancestors lists the parents of id, nearest first. The walk stops at the
// root, at a repeated id, or after MaxParentDepth steps.
func (t *InstitutionTree) Ancestors(id int64) []int64 {
	if t == nil {
		return nil
	}
	var out []int64
	seen := map[int64]struct{}{id: {}}
	current := id
	for depth := 0; depth < MaxParentDepth; depth++ {
		parent, ok := t.parents[current]
		if !ok {
			break
		}
		if _, loop := seen[parent]; loop {
			break
		}
		seen[parent] = struct{}{}
		out = append(out, parent)
		current = parent
	}
	return out
}

// Within reports whether id is root or sits below root.
func (t *InstitutionTree) Within(id, root int64) bool {
	if id == root {
		return true
	}
	for _, ancestor := range t.Ancestors(id) {
		if ancestor == root {
			return true
		}
	}
	return false
}
