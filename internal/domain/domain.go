// Package domain holds the records shared by the linking, clustering and
// routing stages.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityType names the kind of canonical entity a mention can resolve to.
type EntityType string

const (
	EntityPerson      EntityType = "person"
	EntityInstitution EntityType = "institution"
)

// ParseEntityType accepts the canonical names plus the catalog's legacy
// spellings.
func ParseEntityType(raw string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "person", "persona":
		return EntityPerson, nil
	case "institution", "institucion", "org":
		return EntityInstitution, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", raw)
	}
}

// EntityKey identifies one canonical entity, rendered as "type:id".
type EntityKey struct {
	Type EntityType
	ID   int64
}

func (k EntityKey) String() string {
	return string(k.Type) + ":" + strconv.FormatInt(k.ID, 10)
}

// ParseEntityKey parses the "type:id" form.
func ParseEntityKey(raw string) (EntityKey, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return EntityKey{}, fmt.Errorf("entity key %q missing ':'", raw)
	}
	entityType, err := ParseEntityType(kind)
	if err != nil {
		return EntityKey{}, err
	}
	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return EntityKey{}, fmt.Errorf("entity key %q: %w", raw, err)
	}
	return EntityKey{Type: entityType, ID: parsed}, nil
}

// Article is one ingested news item as seen by downstream stages.
type Article struct {
	ID          int64
	URL         string
	Source      string
	Title       string
	Lead        string
	Body        string
	Summary     string
	ContentType string
	Language    string
	Topics      []string
	Embedding   []float64
	PublishedAt *time.Time
	FetchedAt   time.Time
}

// Text is the matching text of an article: title, lead and body joined by
// newlines, skipping empty parts.
func (a Article) Text() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{a.Title, a.Lead, a.Body} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}

// Timestamp returns the publish time, falling back to the fetch time.
func (a Article) Timestamp() time.Time {
	if a.PublishedAt != nil && !a.PublishedAt.IsZero() {
		return a.PublishedAt.UTC()
	}
	return a.FetchedAt.UTC()
}

// Mention is one occurrence of candidate entity text inside one article.
type Mention struct {
	ID                int64
	ArticleID         int64
	EntityKind        EntityType
	Surface           string
	NormalizedSurface string
	SpanStart         int
	SpanEnd           int
	ContextWindow     string
}

// MentionKey is the uniqueness key of a mention.
type MentionKey struct {
	ArticleID         int64
	EntityKind        EntityType
	SpanStart         int
	SpanEnd           int
	NormalizedSurface string
}

func (m Mention) Key() MentionKey {
	return MentionKey{
		ArticleID:         m.ArticleID,
		EntityKind:        m.EntityKind,
		SpanStart:         m.SpanStart,
		SpanEnd:           m.SpanEnd,
		NormalizedSurface: m.NormalizedSurface,
	}
}

// LinkStatus is the tier of an entity link.
type LinkStatus string

const (
	LinkLinked   LinkStatus = "linked"
	LinkProposed LinkStatus = "proposed"
	LinkRejected LinkStatus = "rejected"
)

// EntityLink binds a mention to a canonical entity with a confidence tier.
type EntityLink struct {
	ID              int64
	MentionID       int64
	EntityType      EntityType
	EntityID        int64
	Status          LinkStatus
	Confidence      float64
	Reasons         []string
	ResolverVersion string
	UpdatedAt       time.Time
}

func (l EntityLink) EntityKey() EntityKey {
	return EntityKey{Type: l.EntityType, ID: l.EntityID}
}

// ArticleEntity is the per-article rollup derived from linked mentions.
type ArticleEntity struct {
	ArticleID  int64
	EntityType EntityType
	EntityID   int64
	Confidence float64
	Sentiment  string
}

func (a ArticleEntity) EntityKey() EntityKey {
	return EntityKey{Type: a.EntityType, ID: a.EntityID}
}
