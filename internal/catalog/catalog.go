// Package catalog indexes canonical entities by normalized alias and compiles
// the alternation matcher used to find alias occurrences in article text.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"horse.fit/atlas/internal/domain"
	"horse.fit/atlas/internal/textnorm"
)

// MinAliasLength is the shortest raw alias, in characters, that is matched.
// Shorter aliases generate too many false positives.
const MinAliasLength = 3

// Entity is a canonical person or institution.
type Entity struct {
	Type        domain.EntityType
	ID          int64
	DisplayName string
	Role        string
	ParentID    *int64
}

func (e Entity) Key() domain.EntityKey {
	return domain.EntityKey{Type: e.Type, ID: e.ID}
}

// AliasRow is one row of the alias table. NormalizedText is recomputed by
// Build and never trusted from storage.
type AliasRow struct {
	EntityType     domain.EntityType
	EntityID       int64
	RawText        string
	NormalizedText string
	MatchQuality   float64
}

// Candidate is one entity an alias can refer to.
type Candidate struct {
	EntityType   domain.EntityType
	EntityID     int64
	DisplayName  string
	Role         string
	MatchQuality float64
}

func (c Candidate) Key() domain.EntityKey {
	return domain.EntityKey{Type: c.EntityType, ID: c.EntityID}
}

// Catalog is an immutable snapshot of the alias index for one run.
type Catalog struct {
	aliases  map[string][]Candidate
	entities map[domain.EntityKey]Entity
	matcher  *Matcher
	tree     *InstitutionTree
}

// Build indexes entity display names and alias rows. Rows with an empty
// normalized form are dropped; the same (alias, entity) pair keeps its best
// match quality.
func Build(entities []Entity, aliases []AliasRow) (*Catalog, error) {
	c := &Catalog{
		aliases:  make(map[string][]Candidate),
		entities: make(map[domain.EntityKey]Entity, len(entities)),
	}

	for _, entity := range entities {
		if entity.ID <= 0 {
			return nil, fmt.Errorf("entity %q has invalid id %d", entity.DisplayName, entity.ID)
		}
		c.entities[entity.Key()] = entity
	}

	rawAliases := make([]string, 0, len(entities)+len(aliases))
	for _, entity := range entities {
		if c.add(entity.Type, entity.ID, entity.DisplayName, 1.0) {
			rawAliases = append(rawAliases, entity.DisplayName)
		}
	}
	for _, row := range aliases {
		if c.add(row.EntityType, row.EntityID, row.RawText, row.MatchQuality) {
			rawAliases = append(rawAliases, row.RawText)
		}
	}

	for normalized, candidates := range c.aliases {
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].EntityType != candidates[j].EntityType {
				return candidates[i].EntityType < candidates[j].EntityType
			}
			return candidates[i].EntityID < candidates[j].EntityID
		})
		c.aliases[normalized] = candidates
	}

	matcher, err := NewMatcher(rawAliases)
	if err != nil {
		return nil, err
	}
	c.matcher = matcher
	c.tree = newInstitutionTree(entities)
	return c, nil
}

func (c *Catalog) add(entityType domain.EntityType, entityID int64, raw string, quality float64) bool {
	normalized := textnorm.Normalize(raw)
	if normalized == "" || entityID <= 0 {
		return false
	}
	if quality <= 0 || quality > 1 {
		quality = 1.0
	}

	candidate := Candidate{
		EntityType:   entityType,
		EntityID:     entityID,
		DisplayName:  strings.TrimSpace(raw),
		MatchQuality: quality,
	}
	if entity, ok := c.entities[candidate.Key()]; ok {
		candidate.DisplayName = entity.DisplayName
		candidate.Role = entity.Role
	}

	existing := c.aliases[normalized]
	for i := range existing {
		if existing[i].Key() == candidate.Key() {
			if quality > existing[i].MatchQuality {
				existing[i].MatchQuality = quality
			}
			return true
		}
	}
	c.aliases[normalized] = append(existing, candidate)
	return true
}

// Lookup returns the candidates for a normalized alias. The returned slice
// must not be modified.
func (c *Catalog) Lookup(normalized string) []Candidate {
	if c == nil {
		return nil
	}
	return c.aliases[normalized]
}

// Entity returns the canonical entity for a key.
func (c *Catalog) Entity(key domain.EntityKey) (Entity, bool) {
	if c == nil {
		return Entity{}, false
	}
	entity, ok := c.entities[key]
	return entity, ok
}

// Matcher returns the compiled alias matcher.
func (c *Catalog) Matcher() *Matcher {
	if c == nil || c.matcher == nil {
		return &Matcher{}
	}
	return c.matcher
}

// Institutions returns the institution parent tree.
func (c *Catalog) Institutions() *InstitutionTree {
	if c == nil || c.tree == nil {
		return &InstitutionTree{parents: map[int64]int64{}}
	}
	return c.tree
}

// AliasCount is the number of distinct normalized aliases.
func (c *Catalog) AliasCount() int {
	if c == nil {
		return 0
	}
	return len(c.aliases)
}

// Empty reports whether nothing can be matched.
func (c *Catalog) Empty() bool {
	return c.AliasCount() == 0
}

func aliasLength(raw string) int {
	return utf8.RuneCountInString(strings.TrimSpace(raw))
}

// Names returns the display names of every entity, sorted.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.entities))
	for _, entity := range c.entities {
		if name := strings.TrimSpace(entity.DisplayName); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
