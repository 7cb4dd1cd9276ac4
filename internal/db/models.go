package db

import (
	"encoding/json"
	"time"
)

// Person maps atlas.persons.
type Person struct {
	PersonID   int64     `gorm:"column:person_id;primaryKey;autoIncrement"`
	PersonUUID string    `gorm:"column:person_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	FullName   string    `gorm:"column:full_name;type:text;not null"`
	Role       *string   `gorm:"column:role;type:text"`
	Active     bool      `gorm:"column:active;type:boolean;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Person) TableName() string { return "atlas.persons" }

// Institution maps atlas.institutions.
type Institution struct {
	InstitutionID   int64     `gorm:"column:institution_id;primaryKey;autoIncrement"`
	InstitutionUUID string    `gorm:"column:institution_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Name            string    `gorm:"column:name;type:text;not null"`
	ParentID        *int64    `gorm:"column:parent_id;type:bigint;index"`
	Active          bool      `gorm:"column:active;type:boolean;not null;default:true"`
	CreatedAt       time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Institution) TableName() string { return "atlas.institutions" }

// EntityAlias maps atlas.entity_aliases.
type EntityAlias struct {
	AliasID         int64     `gorm:"column:alias_id;primaryKey;autoIncrement"`
	EntityType      string    `gorm:"column:entity_type;type:text;not null;uniqueIndex:uq_entity_alias"`
	EntityID        int64     `gorm:"column:entity_id;type:bigint;not null;uniqueIndex:uq_entity_alias"`
	Alias           string    `gorm:"column:alias;type:text;not null;uniqueIndex:uq_entity_alias"`
	NormalizedAlias string    `gorm:"column:normalized_alias;type:text;not null;default:'';index"`
	MatchQuality    float64   `gorm:"column:match_quality;type:double precision;not null;default:1"`
	CreatedAt       time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (EntityAlias) TableName() string { return "atlas.entity_aliases" }

// SourceFetchRun maps atlas.source_fetch_runs.
type SourceFetchRun struct {
	FetchRunID    int64      `gorm:"column:fetch_run_id;primaryKey;autoIncrement"`
	FetchRunUUID  string     `gorm:"column:fetch_run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source        string     `gorm:"column:source;type:text;not null;index"`
	SourceKind    string     `gorm:"column:source_kind;type:text;not null"`
	StartedAt     time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt    *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status        string     `gorm:"column:status;type:atlas.fetch_run_status;not null;default:running"`
	ItemsSeen     int        `gorm:"column:items_seen;type:integer;not null;default:0"`
	ItemsCreated  int        `gorm:"column:items_created;type:integer;not null;default:0"`
	ItemsSkipped  int        `gorm:"column:items_skipped;type:integer;not null;default:0"`
	ItemErrors    int        `gorm:"column:item_errors;type:integer;not null;default:0"`
	ErrorMessage  *string    `gorm:"column:error_message;type:text"`
	PipelineRunID *int64     `gorm:"column:pipeline_run_id;type:bigint"`
}

func (SourceFetchRun) TableName() string { return "atlas.source_fetch_runs" }

// Article maps atlas.articles.
type Article struct {
	ArticleID      int64           `gorm:"column:article_id;primaryKey;autoIncrement"`
	ArticleUUID    string          `gorm:"column:article_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	URL            string          `gorm:"column:url;type:text;not null;unique"`
	Source         string          `gorm:"column:source;type:text;not null"`
	Title          string          `gorm:"column:title;type:text;not null"`
	Lead           string          `gorm:"column:lead;type:text;not null;default:''"`
	Body           string          `gorm:"column:body;type:text;not null;default:''"`
	BodyStatus     string          `gorm:"column:body_status;type:text;not null;default:pending"`
	BodyError      *string         `gorm:"column:body_error;type:text"`
	Language       *string         `gorm:"column:language;type:text"`
	ContentHash    []byte          `gorm:"column:content_hash;type:bytea;not null;unique"`
	Summary        string          `gorm:"column:summary;type:text;not null;default:''"`
	ContentType    *string         `gorm:"column:content_type;type:text"`
	Topics         json.RawMessage `gorm:"column:topics;type:jsonb;not null;default:'[]'"`
	Classification json.RawMessage `gorm:"column:classification;type:jsonb"`
	ClassifiedAt   *time.Time      `gorm:"column:classified_at;type:timestamptz"`
	SentimentAt    *time.Time      `gorm:"column:sentiment_at;type:timestamptz"`
	Embedding      *string         `gorm:"column:embedding;type:vector"`
	EmbeddingModel *string         `gorm:"column:embedding_model;type:text"`
	PublishedAt    *time.Time      `gorm:"column:published_at;type:timestamptz;index"`
	FetchedAt      time.Time       `gorm:"column:fetched_at;type:timestamptz;not null;default:now();index"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "atlas.articles" }

// Mention maps atlas.mentions.
type Mention struct {
	MentionID         int64     `gorm:"column:mention_id;primaryKey;autoIncrement"`
	ArticleID         int64     `gorm:"column:article_id;type:bigint;not null;uniqueIndex:uq_mention_span"`
	EntityKind        string    `gorm:"column:entity_kind;type:text;not null;uniqueIndex:uq_mention_span"`
	SpanStart         int       `gorm:"column:span_start;type:integer;not null;uniqueIndex:uq_mention_span"`
	SpanEnd           int       `gorm:"column:span_end;type:integer;not null;uniqueIndex:uq_mention_span"`
	NormalizedSurface string    `gorm:"column:normalized_surface;type:text;not null;uniqueIndex:uq_mention_span"`
	Surface           string    `gorm:"column:surface;type:text;not null"`
	ContextWindow     string    `gorm:"column:context_window;type:text;not null;default:''"`
	CreatedAt         time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Mention) TableName() string { return "atlas.mentions" }

// EntityLink maps atlas.entity_links. The partial unique index on linked
// rows lives in post_automigrate.sql.
type EntityLink struct {
	LinkID          int64           `gorm:"column:link_id;primaryKey;autoIncrement"`
	MentionID       int64           `gorm:"column:mention_id;type:bigint;not null;uniqueIndex:uq_entity_link"`
	EntityType      string          `gorm:"column:entity_type;type:text;not null;uniqueIndex:uq_entity_link"`
	EntityID        int64           `gorm:"column:entity_id;type:bigint;not null;uniqueIndex:uq_entity_link"`
	Status          string          `gorm:"column:status;type:atlas.link_status;not null;uniqueIndex:uq_entity_link"`
	Confidence      float64         `gorm:"column:confidence;type:double precision;not null"`
	Reasons         json.RawMessage `gorm:"column:reasons;type:jsonb;not null;default:'[]'"`
	ResolverVersion string          `gorm:"column:resolver_version;type:text;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (EntityLink) TableName() string { return "atlas.entity_links" }

// ArticleEntity maps atlas.article_entities.
type ArticleEntity struct {
	ArticleID           int64     `gorm:"column:article_id;type:bigint;primaryKey"`
	EntityType          string    `gorm:"column:entity_type;type:text;primaryKey"`
	EntityID            int64     `gorm:"column:entity_id;type:bigint;primaryKey"`
	Confidence          float64   `gorm:"column:confidence;type:double precision;not null"`
	Sentiment           *string   `gorm:"column:sentiment;type:text"`
	SentimentConfidence *float64  `gorm:"column:sentiment_confidence;type:double precision"`
	CreatedAt           time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ArticleEntity) TableName() string { return "atlas.article_entities" }

// EntityMention maps atlas.entity_mentions, the per-entity dashboard rollup.
type EntityMention struct {
	EntityType   string    `gorm:"column:entity_type;type:text;primaryKey"`
	EntityID     int64     `gorm:"column:entity_id;type:bigint;primaryKey"`
	ArticleID    int64     `gorm:"column:article_id;type:bigint;primaryKey"`
	MentionCount int       `gorm:"column:mention_count;type:integer;not null;default:0"`
	LastLinkedAt time.Time `gorm:"column:last_linked_at;type:timestamptz;not null;default:now()"`
}

func (EntityMention) TableName() string { return "atlas.entity_mentions" }

// StoryCluster maps atlas.story_clusters.
type StoryCluster struct {
	ClusterID   int64           `gorm:"column:cluster_id;primaryKey;autoIncrement"`
	ClusterUUID string          `gorm:"column:cluster_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Scope       string          `gorm:"column:scope;type:text;not null;index"`
	Centroid    *string         `gorm:"column:centroid;type:vector"`
	TopEntities json.RawMessage `gorm:"column:top_entities;type:jsonb;not null;default:'[]'"`
	TopTags     json.RawMessage `gorm:"column:top_tags;type:jsonb;not null;default:'[]'"`
	TimeStart   *time.Time      `gorm:"column:time_start;type:timestamptz"`
	TimeEnd     *time.Time      `gorm:"column:time_end;type:timestamptz"`
	Cohesion    *float64        `gorm:"column:cohesion;type:double precision"`
	MemberCount int             `gorm:"column:member_count;type:integer;not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now();index"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (StoryCluster) TableName() string { return "atlas.story_clusters" }

// ClusterMember maps atlas.cluster_members.
type ClusterMember struct {
	MemberID       int64           `gorm:"column:member_id;primaryKey;autoIncrement"`
	ClusterID      int64           `gorm:"column:cluster_id;type:bigint;not null;uniqueIndex:uq_cluster_article"`
	ArticleID      int64           `gorm:"column:article_id;type:bigint;not null;uniqueIndex:uq_cluster_article;uniqueIndex:uq_scope_article"`
	Scope          string          `gorm:"column:scope;type:text;not null;uniqueIndex:uq_scope_article"`
	Similarity     float64         `gorm:"column:similarity;type:double precision;not null"`
	MatchedSignals json.RawMessage `gorm:"column:matched_signals;type:jsonb;not null;default:'{}'"`
	IsStrongMatch  bool            `gorm:"column:is_strong_match;type:boolean;not null;default:false"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ClusterMember) TableName() string { return "atlas.cluster_members" }

// PipelineRun maps atlas.pipeline_runs.
type PipelineRun struct {
	RunID        int64           `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID      string          `gorm:"column:run_uuid;type:uuid;not null;unique"`
	Trigger      string          `gorm:"column:trigger;type:text;not null"`
	WindowStart  time.Time       `gorm:"column:window_start;type:timestamptz;not null"`
	WindowEnd    time.Time       `gorm:"column:window_end;type:timestamptz;not null"`
	Status       string          `gorm:"column:status;type:atlas.pipeline_run_status;not null;default:queued"`
	StageLog     json.RawMessage `gorm:"column:stage_log;type:jsonb;not null;default:'[]'"`
	Stats        json.RawMessage `gorm:"column:stats;type:jsonb;not null;default:'{}'"`
	ErrorMessage *string         `gorm:"column:error_message;type:text"`
	StartedAt    *time.Time      `gorm:"column:started_at;type:timestamptz"`
	FinishedAt   *time.Time      `gorm:"column:finished_at;type:timestamptz"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (PipelineRun) TableName() string { return "atlas.pipeline_runs" }

// RoutingResult maps atlas.routing_results.
type RoutingResult struct {
	ResultID   int64           `gorm:"column:result_id;primaryKey;autoIncrement"`
	RunID      int64           `gorm:"column:run_id;type:bigint;not null;uniqueIndex:uq_routing_result"`
	SectionKey string          `gorm:"column:section_key;type:text;not null;uniqueIndex:uq_routing_result"`
	ArticleID  int64           `gorm:"column:article_id;type:bigint;not null;uniqueIndex:uq_routing_result"`
	Included   bool            `gorm:"column:included;type:boolean;not null"`
	Score      float64         `gorm:"column:score;type:double precision;not null"`
	Reasons    json.RawMessage `gorm:"column:reasons;type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RoutingResult) TableName() string { return "atlas.routing_results" }

// SynthesisStory maps atlas.synthesis_stories.
type SynthesisStory struct {
	StoryID     int64           `gorm:"column:story_id;primaryKey;autoIncrement"`
	StoryUUID   string          `gorm:"column:story_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RunID       int64           `gorm:"column:run_id;type:bigint;not null;uniqueIndex:uq_synthesis_story"`
	SectionKey  string          `gorm:"column:section_key;type:text;not null;uniqueIndex:uq_synthesis_story"`
	Fingerprint string          `gorm:"column:fingerprint;type:text;not null;uniqueIndex:uq_synthesis_story"`
	ClusterID   *int64          `gorm:"column:cluster_id;type:bigint"`
	SortOrder   int             `gorm:"column:sort_order;type:integer;not null;default:0"`
	Title       string          `gorm:"column:title;type:text;not null"`
	Summary     string          `gorm:"column:summary;type:text;not null;default:''"`
	ArticleIDs  json.RawMessage `gorm:"column:article_ids;type:jsonb;not null;default:'[]'"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (SynthesisStory) TableName() string { return "atlas.synthesis_stories" }

func autoMigrateModels() []any {
	return []any{
		&Person{},
		&Institution{},
		&EntityAlias{},
		&SourceFetchRun{},
		&Article{},
		&Mention{},
		&EntityLink{},
		&ArticleEntity{},
		&EntityMention{},
		&StoryCluster{},
		&ClusterMember{},
		&PipelineRun{},
		&RoutingResult{},
		&SynthesisStory{},
	}
}
