// Package specloader parses and validates ingestion mapping specifications:
// the YAML documents that tell the row parser how to read a spreadsheet
// and map its columns onto entity and relationship candidates.
package specloader

import (
	"fmt"

	"github.com/yungbote/neurobridge-backend/internal/platform/hashutil"
)

// SchemaLookup is the minimal view of a workspace's domain schema that
// spec validation needs. internal/workspace's DomainSchema satisfies it;
// declared here (rather than imported) to avoid a loader↔registry cycle.
type SchemaLookup interface {
	HasEntityType(entityType string) bool
	HasRelationshipType(relationshipType string) bool
}

// RawHashSerialization mirrors spec.md §4.3's raw_hash_serialization block.
type RawHashSerialization struct {
	CellOrder          string         `yaml:"cell_order"`
	Delimiter          string         `yaml:"delimiter"`
	NullRepresentation string         `yaml:"null_representation"`
	NumberFormat       string         `yaml:"number_format"`
	DateFormat         string         `yaml:"date_format"`
	IncludeFormatting  bool           `yaml:"include_formatting"`
}

// NormalizationRule mirrors change_detection.normalization_rules.
type NormalizationRule struct {
	TrimWhitespace    bool     `yaml:"trim_whitespace"`
	LowercaseStrings  bool     `yaml:"lowercase_strings"`
	NormalizeNulls    []string `yaml:"normalize_nulls"`
	NumberDecimalPlaces int    `yaml:"number_decimal_places"`
	DateISO8601       bool     `yaml:"date_iso8601"`
}

// ToHashutil converts the wire rule set into the form hashutil consumes.
func (n NormalizationRule) ToHashutil() hashutil.NormalizationRules {
	return hashutil.NormalizationRules{
		TrimWhitespace:      n.TrimWhitespace,
		CollapseWhitespace:  true,
		Lowercase:           n.LowercaseStrings,
		NullTokens:          n.NormalizeNulls,
		NumberDecimalPlaces: n.NumberDecimalPlaces,
		DateISO8601:         n.DateISO8601,
	}
}

// ChangeDetection mode and rules for a spec.
type ChangeDetection struct {
	Mode                string            `yaml:"mode"` // "strict" or "normalized"
	NormalizationRules  NormalizationRule `yaml:"normalization_rules"`
}

// ColumnMapping maps one source column to one target property, with an
// optional value transform applied before hashing (strip, lower, upper,
// int, float — see excel_parser.py's _apply_transform).
type ColumnMapping struct {
	SourceColumn   string `yaml:"source_column"`
	TargetProperty string `yaml:"target_property"`
	Transform      string `yaml:"transform,omitempty"`
	ValueType      string `yaml:"value_type,omitempty"`
}

// EntityMapping declares how to extract one entity candidate from a row.
type EntityMapping struct {
	EntityType  string          `yaml:"entity_type"`
	KeyColumns  []string        `yaml:"key_columns"`
	KeyTemplate string          `yaml:"key_template"`
	Properties  []ColumnMapping `yaml:"properties"`
}

// RelationshipMapping declares how to extract one relationship candidate
// between two entity aliases resolved earlier in the same row.
type RelationshipMapping struct {
	RelationshipType string          `yaml:"relationship_type"`
	FromEntity       string          `yaml:"from_entity"`
	ToEntity         string          `yaml:"to_entity"`
	Properties       []ColumnMapping `yaml:"properties,omitempty"`
}

// SheetSpec describes how to read one worksheet.
type SheetSpec struct {
	SheetName     string                   `yaml:"sheet_name,omitempty"`
	SheetIndex    *int                     `yaml:"sheet_index,omitempty"`
	HeaderRow     int                      `yaml:"header_row"`
	SkipRows      []int                    `yaml:"skip_rows,omitempty"`
	Entities      map[string]EntityMapping `yaml:"entities"`
	Relationships []RelationshipMapping    `yaml:"relationships,omitempty"`
}

// SourceAuthority registers the Source this spec's assertions are
// attributed to (spec.md §4.3's source_authority block).
type SourceAuthority struct {
	SourceName       string   `yaml:"source_name"`
	AuthorityRank    int      `yaml:"authority_rank"`
	AuthorityDomains []string `yaml:"authority_domains"`
}

// IngestionSpec is the root mapping specification document.
type IngestionSpec struct {
	SpecName             string                `yaml:"spec_name"`
	SpecVersion           string                `yaml:"spec_version"`
	WorkspaceID          string                `yaml:"workspace_id"`
	SourceType           string                `yaml:"source_type"`
	RawHashSerialization RawHashSerialization  `yaml:"raw_hash_serialization"`
	ChangeDetection      ChangeDetection       `yaml:"change_detection"`
	SourceAuthority      SourceAuthority       `yaml:"source_authority"`
	Sheets               []SheetSpec           `yaml:"sheets"`
}

// ToHashutilCfg converts the wire raw_hash_serialization block.
func (s *IngestionSpec) ToHashutilCfg() hashutil.RawHashSerialization {
	cellOrder := []string(nil)
	if s.RawHashSerialization.CellOrder != "" && s.RawHashSerialization.CellOrder != "column_order" {
		// An explicit comma-free name list is not representable in the
		// scalar "cell_order" field beyond the "column_order" sentinel
		// in this spec version; named orders are declared per-sheet via
		// EntityMapping/ColumnMapping instead, so cell_order here only
		// toggles between sheet order (the common case) and itself.
		cellOrder = nil
	}
	return hashutil.RawHashSerialization{
		CellOrder:          cellOrder,
		Delimiter:          s.RawHashSerialization.Delimiter,
		NullRepresentation: s.RawHashSerialization.NullRepresentation,
		NumberFormat: hashutil.NumberFormat{
			AsDisplayed: s.RawHashSerialization.NumberFormat == "as_displayed",
		},
		DateFormat: hashutil.DateFormat{
			AsDisplayed: s.RawHashSerialization.DateFormat == "as_displayed",
		},
		IncludeFormatting: s.RawHashSerialization.IncludeFormatting,
	}
}

// Validate enforces spec.md §4.3's structural invariants: referenced
// entity/relationship types must exist in the workspace's domain schema;
// key_columns non-empty; hash settings fully specified (no implicit
// defaults), so that runs are reproducible.
func (s *IngestionSpec) Validate(schema SchemaLookup) []error {
	var errs []error

	if s.SpecName == "" {
		errs = append(errs, fmt.Errorf("spec_name is required"))
	}
	if s.WorkspaceID == "" {
		errs = append(errs, fmt.Errorf("workspace_id is required"))
	}
	if s.RawHashSerialization.Delimiter == "" {
		errs = append(errs, fmt.Errorf("raw_hash_serialization.delimiter must be set explicitly"))
	}
	if s.RawHashSerialization.NullRepresentation == "" {
		errs = append(errs, fmt.Errorf("raw_hash_serialization.null_representation must be set explicitly"))
	}
	if s.ChangeDetection.Mode != "strict" && s.ChangeDetection.Mode != "normalized" {
		errs = append(errs, fmt.Errorf("change_detection.mode must be 'strict' or 'normalized', got %q", s.ChangeDetection.Mode))
	}

	for sheetIdx, sheet := range s.Sheets {
		for alias, em := range sheet.Entities {
			if len(em.KeyColumns) == 0 {
				errs = append(errs, fmt.Errorf("sheet %d entity %q: key_columns must be non-empty", sheetIdx, alias))
			}
			if em.KeyTemplate == "" {
				errs = append(errs, fmt.Errorf("sheet %d entity %q: key_template must be set", sheetIdx, alias))
			}
			if schema != nil && !schema.HasEntityType(em.EntityType) {
				errs = append(errs, fmt.Errorf("sheet %d entity %q: entity_type %q not declared in workspace schema", sheetIdx, alias, em.EntityType))
			}
		}
		for relIdx, rm := range sheet.Relationships {
			if _, ok := sheet.Entities[rm.FromEntity]; !ok {
				errs = append(errs, fmt.Errorf("sheet %d relationship %d: from_entity alias %q not declared on this sheet", sheetIdx, relIdx, rm.FromEntity))
			}
			if _, ok := sheet.Entities[rm.ToEntity]; !ok {
				errs = append(errs, fmt.Errorf("sheet %d relationship %d: to_entity alias %q not declared on this sheet", sheetIdx, relIdx, rm.ToEntity))
			}
			if schema != nil && !schema.HasRelationshipType(rm.RelationshipType) {
				errs = append(errs, fmt.Errorf("sheet %d relationship %d: relationship_type %q not declared in workspace schema", sheetIdx, relIdx, rm.RelationshipType))
			}
		}
	}

	return errs
}
