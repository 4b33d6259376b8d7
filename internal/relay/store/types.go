// Package store implements Relay's persistence layer: state for
// pipelines, runs, metadata, column knowledge, connections, ontology
// objects, proposals, API keys, and platform events.
package store

import "time"

// PipelineKind discriminates a pipeline's tagged variant.
type PipelineKind string

const (
	PipelineRegular        PipelineKind = "regular"
	PipelineTransformation PipelineKind = "transformation"
)

// PipelineStatus tracks a pipeline's own lifecycle (distinct from run status).
type PipelineStatus string

const (
	PipelineStatusActive PipelineStatus = "active"
)

// SourceConfig is the typed configuration for a pipeline's data source.
type SourceConfig struct {
	Type       string            `json:"type"`
	URL        string            `json:"url,omitempty"`
	Query      string            `json:"query,omitempty"`
	Table      string            `json:"table,omitempty"`
	Connection string            `json:"connection,omitempty"`
	Method     string            `json:"method,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Auth       *SourceAuth       `json:"auth,omitempty"`
	Schema     map[string]string `json:"schema,omitempty"`
	RowCount   int               `json:"row_count,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
	// Pipelines lists the upstream pipeline ids a "transformation" source
	// reads from; unused by every other source type.
	Pipelines []string `json:"pipelines,omitempty"`
}

// SourceAuth carries bearer/basic auth parameters for rest_api sources.
type SourceAuth struct {
	Type     string `json:"type"` // "bearer" | "basic"
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// DestinationConfig is the typed configuration for where artifacts land.
type DestinationConfig struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
}

// PipelineOptions controls format, compression, and streaming mode.
type PipelineOptions struct {
	Format         string `json:"format"`                    // parquet | csv | json
	Compression    string `json:"compression"`               // gzip | snappy | none
	Streaming      string `json:"streaming"`                  // "auto" | "true" | "false"
	ChunkSize      int    `json:"chunk_size,omitempty"`
	CombineChunks  bool   `json:"combine_chunks,omitempty"`
	Parallel       bool   `json:"parallel,omitempty"`
	GenerateMetadata *bool `json:"generate_metadata,omitempty"` // default on
}

// Schedule describes recurring execution cadence.
type Schedule struct {
	Enabled        bool       `json:"enabled"`
	Cadence        string     `json:"cadence"` // hourly | daily | weekly | custom
	LastScheduledRun *time.Time `json:"last_scheduled_run,omitempty"`
}

// Pipeline is a reproducible unit of movement.
type Pipeline struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Kind        PipelineKind      `json:"kind"`
	Status      PipelineStatus    `json:"status"`
	Source      SourceConfig      `json:"source"`
	Destination DestinationConfig `json:"destination"`
	Options     PipelineOptions   `json:"options"`
	Schedule    Schedule          `json:"schedule"`
	CreatedAt   time.Time         `json:"created_at"`
}

// RunStatus is the three-state run lifecycle.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// PipelineRun is one execution attempt.
type PipelineRun struct {
	RunID                 string     `json:"run_id"`
	PipelineID            string     `json:"pipeline_id"`
	Status                RunStatus  `json:"status"`
	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	Progress              string     `json:"progress"`
	Streaming             bool       `json:"streaming"`
	RowsProcessed         int        `json:"rows_processed"`
	ChunksProcessed       int        `json:"chunks_processed"`
	OutputFile            string     `json:"output_file,omitempty"`
	FilesWritten          []string   `json:"files_written,omitempty"`
	DurationSeconds       float64    `json:"duration_seconds,omitempty"`
	Error                 string     `json:"error,omitempty"`
	MetadataGenerated     bool       `json:"metadata_generated"`
	ColumnsNeedingReview  []string   `json:"columns_needing_review,omitempty"`
}

// ColumnProfile is one column's entry in a DatasetMetadata document.
type ColumnProfile struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	SemanticType   string   `json:"semantic_type"`
	NullPercentage float64  `json:"null_percentage"`
	UniqueValues   int      `json:"unique_values"`
	SampleValues   []string `json:"sample_values,omitempty"`
	NeedsReview    bool     `json:"needs_review"`
	HumanVerified  bool     `json:"human_verified"`
	Description    string   `json:"description,omitempty"`
	AutoDescription string  `json:"auto_description,omitempty"`
	Min            *float64 `json:"min,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	Mean           *float64 `json:"mean,omitempty"`
}

// DatasetMetadata is the per-pipeline column profile.
type DatasetMetadata struct {
	PipelineID  string          `json:"pipeline_id"`
	Columns     []ColumnProfile `json:"columns"`
	RowCount    int             `json:"row_count"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ColumnKnowledge is a human-verified column description, keyed by
// normalized column name.
type ColumnKnowledge struct {
	NormalizedName string    `json:"normalized_name" db:"normalized_name"`
	Description    string    `json:"description" db:"description"`
	VerifiedBy     string    `json:"verified_by,omitempty" db:"verified_by"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Connection is a reusable, encrypted credential bundle.
type Connection struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Type                string     `json:"type"`
	Description         string     `json:"description,omitempty"`
	CredentialsEncrypted []byte    `json:"-"`
	LastTestedAt        *time.Time `json:"last_tested_at,omitempty"`
	LastTestStatus      string     `json:"last_test_status,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// EntityStatus tracks whether an entity participates in queries.
type EntityStatus string

const (
	EntityActive   EntityStatus = "active"
	EntityProposed EntityStatus = "proposed"
	EntityRejected EntityStatus = "rejected"
)

// ColumnRole classifies a column's semantic role within an entity.
type ColumnRole string

const (
	RolePrimaryKey ColumnRole = "primary_key"
	RoleForeignKey ColumnRole = "foreign_key"
	RoleMeasure    ColumnRole = "measure"
	RoleDimension  ColumnRole = "dimension"
	RoleAttribute  ColumnRole = "attribute"
	RoleTimestamp  ColumnRole = "timestamp"
)

// ColumnAnnotation attaches a role and description to a column.
type ColumnAnnotation struct {
	Role        ColumnRole `json:"role"`
	Description string     `json:"description,omitempty"`
}

// Entity is a named handle to a pipeline as a semantic object.
type Entity struct {
	ID                string                      `json:"id"`
	Name              string                      `json:"name"`
	DisplayName       string                      `json:"display_name"`
	Description       string                      `json:"description,omitempty"`
	PipelineID        string                      `json:"pipeline_id"`
	ColumnAnnotations map[string]ColumnAnnotation `json:"column_annotations,omitempty"`
	Status            EntityStatus                `json:"status"`
	CreatedAt         time.Time                   `json:"created_at"`
}

// RelationshipType is one of four cardinalities.
type RelationshipType string

const (
	OneToOne   RelationshipType = "one_to_one"
	OneToMany  RelationshipType = "one_to_many"
	ManyToOne  RelationshipType = "many_to_one"
	ManyToMany RelationshipType = "many_to_many"
)

// Relationship is a directed semantic edge between two entities.
type Relationship struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	FromEntity       string           `json:"from_entity"`
	ToEntity         string           `json:"to_entity"`
	FromColumn       string           `json:"from_column"`
	ToColumn         string           `json:"to_column"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Description      string           `json:"description,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// FormatType controls display formatting of a metric's value.
type FormatType string

const (
	FormatNumber     FormatType = "number"
	FormatCurrency   FormatType = "currency"
	FormatPercentage FormatType = "percentage"
)

// Metric is a named aggregate expression scoped to an entity.
type Metric struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	EntityName  string     `json:"entity_name"`
	Expression  string     `json:"expression"`
	FormatType  FormatType `json:"format_type"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DimensionType distinguishes a raw column reference from a derived expression.
type DimensionType string

const (
	DimensionDirect  DimensionType = "direct"
	DimensionDerived DimensionType = "derived"
)

// Dimension is a named grouping expression scoped to an entity.
type Dimension struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	DisplayName   string        `json:"display_name"`
	EntityName    string        `json:"entity_name"`
	Expression    string        `json:"expression"`
	DimensionType DimensionType `json:"dimension_type"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ProposalType names the kind of ontology object a proposal would create.
type ProposalType string

const (
	ProposalEntity       ProposalType = "entity"
	ProposalRelationship ProposalType = "relationship"
	ProposalMetric       ProposalType = "metric"
	ProposalDimension    ProposalType = "dimension"
)

// ProposalStatus tracks the approve/reject workflow.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// ProposedBy identifies the producer of a proposal.
type ProposedBy string

const (
	ProposedByAI        ProposedBy = "ai"
	ProposedByHeuristic ProposedBy = "heuristic"
	ProposedByUser      ProposedBy = "user"
)

// Proposal is an AI- or heuristic-generated suggestion pending review.
type Proposal struct {
	ID               string                 `json:"id"`
	ProposalType     ProposalType           `json:"proposal_type"`
	Payload          map[string]interface{} `json:"payload"`
	SourcePipelineID string                 `json:"source_pipeline_id"`
	ProposedBy       ProposedBy             `json:"proposed_by"`
	Status           ProposalStatus         `json:"status"`
	ReviewedBy       string                 `json:"reviewed_by,omitempty"`
	ReviewNotes      string                 `json:"review_notes,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	ReviewedAt       *time.Time             `json:"reviewed_at,omitempty"`
}

// Role is one of three fixed access levels with a total order.
type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
	RoleAdmin  Role = "admin"
)

// Level returns the role's position in the reader < writer < admin order.
func (r Role) Level() int {
	switch r {
	case RoleReader:
		return 0
	case RoleWriter:
		return 1
	case RoleAdmin:
		return 2
	default:
		return -1
	}
}

// Admits reports whether this role satisfies a requirement of at least required.
func (r Role) Admits(required Role) bool {
	return r.Level() >= required.Level() && r.Level() >= 0
}

// APIKey is credentials for the role-gated service.
type APIKey struct {
	ID        string    `json:"id" db:"id"`
	KeyHash   string    `json:"-" db:"key_hash"`
	KeyPrefix string    `json:"key_prefix" db:"key_prefix"`
	Name      string    `json:"name" db:"name"`
	Role      Role      `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PlatformEvent is an append-only analytics record.
type PlatformEvent struct {
	ID         string                 `json:"id"`
	EventType  string                 `json:"event_type"`
	References map[string]string      `json:"references,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// LineageSummary is the store's global view of entity ownership and edges,
// returned as part of an OntologySnapshot.
type LineageSummary struct {
	EntityPipelineMap map[string]string `json:"entity_pipeline_map"`
	Edges             []LineageEdge     `json:"edges"`
}

// LineageEdge is one (from, to, type, name) relationship edge.
type LineageEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// OntologySnapshot is a single read-consistent view of all active ontology
// rows plus a lineage summary, used by the semantic query engine.
type OntologySnapshot struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Metrics       []Metric       `json:"metrics"`
	Dimensions    []Dimension    `json:"dimensions"`
	Lineage       LineageSummary `json:"lineage"`
}
