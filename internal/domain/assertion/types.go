// Package assertion holds the vertex and edge types of the evidence graph:
// Entity, AssertionRecord, PropertyValue, ChangeEvent, ImportRun, and Source.
package assertion

import "time"

// SourceType classifies how an AssertionRecord came to be known.
type SourceType string

const (
	SourceTypeSpreadsheet SourceType = "spreadsheet"
	SourceTypeAPI         SourceType = "api"
	SourceTypeManual      SourceType = "manual"
	SourceTypeDerived     SourceType = "derived"
	SourceTypeInferred    SourceType = "inferred"
)

// ValueType classifies a PropertyValue's stored representation.
type ValueType string

const (
	ValueTypeString  ValueType = "string"
	ValueTypeNumber  ValueType = "number"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeDate    ValueType = "date"
	ValueTypeJSON    ValueType = "json"
)

// EventType classifies what produced a ChangeEvent.
type EventType string

const (
	EventTypeImport         EventType = "import"
	EventTypeManualEdit     EventType = "manual_edit"
	EventTypeManualResolve  EventType = "manual_resolve"
	EventTypeScenarioDelta  EventType = "scenario_delta"
)

// ImportStatus is the lifecycle state of an ImportRun.
type ImportStatus string

const (
	ImportStatusRunning ImportStatus = "running"
	ImportStatusOK      ImportStatus = "ok"
	ImportStatusFailed  ImportStatus = "failed"
)

// HasPropertyRelationshipType is the pseudo relationship_type used by
// property assertions, so properties and relationships share one
// AssertionRecord shape.
const HasPropertyRelationshipType = "HAS_PROPERTY"

// BaseScenario is the default scenario id representing current reality.
const BaseScenario = "base"

// NoValidTo is the sentinel valid_to value meaning "currently valid".
// Stored as the zero time; callers test IsOpen instead of comparing
// against this directly.
var NoValidTo = time.Time{}

// Entity is a domain object identified by (workspace_id, entity_type, primary_key).
type Entity struct {
	ID          string
	WorkspaceID string
	EntityType  string
	PrimaryKey  string
	DisplayName string
	// ConvenienceProperties mirrors the current resolved property values,
	// regenerated on every import. Derived data; never the source of truth.
	ConvenienceProperties map[string]PropertyValue
	CreatedAt             time.Time
}

// AssertionRecord is a versioned, evidence-backed claim.
type AssertionRecord struct {
	ID               string
	WorkspaceID      string
	AssertionKey     string
	RelationshipType string
	PropertyKey      string // present iff RelationshipType == HasPropertyRelationshipType

	RawHash        string
	NormalizedHash string

	SourceType SourceType
	SourceRef  string
	SourceID   string

	ImportRunID string
	RecordedAt  time.Time

	ValidFrom time.Time
	ValidTo   time.Time // zero value means open (valid_to = infinity)

	ScenarioID string
	Confidence float64

	Supersedes string

	// SubjectEntityID is the Entity this assertion is about.
	SubjectEntityID string
	// ObjectEntityID is set for relationship assertions.
	ObjectEntityID string
	// ObjectPropertyValueID is set for property assertions.
	ObjectPropertyValueID string
}

// IsOpen reports whether the record has not yet been closed.
func (a *AssertionRecord) IsOpen() bool {
	return a.ValidTo.IsZero()
}

// IsProperty reports whether the record is a property assertion.
func (a *AssertionRecord) IsProperty() bool {
	return a.RelationshipType == HasPropertyRelationshipType
}

// ContentHashEqual compares against a freshly computed candidate
// content-hash (C7 step 5's "content hash equal" test). RawHash and
// NormalizedHash are written identically at materialization time — the
// mode (strict vs normalized) is chosen once, before hashing, not after.
func (a *AssertionRecord) ContentHashEqual(contentHash string) bool {
	return a.RawHash == contentHash
}

// PropertyValue is a typed value object created only via property assertions.
type PropertyValue struct {
	ID          string
	WorkspaceID string
	PropertyKey string
	Value       string
	ValueType   ValueType
}

// ChangeStats summarizes the effect of the mutation bound to a ChangeEvent.
type ChangeStats struct {
	Created   int
	Closed    int
	Unchanged int
}

// ChangeEvent is the causal container for a batch of created/closed assertions.
type ChangeEvent struct {
	ID          string
	WorkspaceID string
	EventType   EventType
	Timestamp   time.Time
	Actor       string
	Stats       ChangeStats
	Descr       string

	ImportRunID        string
	CreatedAssertionIDs []string
	ClosedAssertionIDs  []string
}

// ImportRun is the metadata record for one ingestion run.
type ImportRun struct {
	ID             string
	WorkspaceID    string
	SpecName       string
	SourceFilename string
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         ImportStatus
	Stats          ChangeStats
	ErrorMessage   string
}

// Source is a registered provenance source with an authority ranking.
type Source struct {
	ID               string
	WorkspaceID      string
	SourceName       string
	SourceType       SourceType
	AuthorityDomains []string
	// AuthorityRank: lower value wins. A missing rank is represented by
	// NoAuthorityRank and treated as +Inf during resolution.
	AuthorityRank int
}

// NoAuthorityRank marks a Source with no declared authority rank.
const NoAuthorityRank = -1
