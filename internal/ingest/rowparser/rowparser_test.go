package rowparser

import (
	"testing"

	"github.com/yungbote/neurobridge-backend/internal/ingest/specloader"
)

func sampleEntityMapping() specloader.EntityMapping {
	return specloader.EntityMapping{
		EntityType:  "Location",
		KeyColumns:  []string{"loc_id"},
		KeyTemplate: "{loc_id}",
		Properties: []specloader.ColumnMapping{
			{SourceColumn: "loc_id", TargetProperty: "loc_id"},
			{SourceColumn: "region", TargetProperty: "region", Transform: "lower"},
		},
	}
}

func TestExtractEntityAppliesTransformAndResolvesKey(t *testing.T) {
	header := map[string]int{"loc_id": 0, "region": 1}
	values := []any{"1001", "EAST"}

	candidate, ok := extractEntity("loc", sampleEntityMapping(), values, header, "Sheet1", 1)
	if !ok {
		t.Fatalf("expected candidate to be extracted")
	}
	if candidate.PrimaryKey != "1001" {
		t.Fatalf("primary key: want=1001 got=%q", candidate.PrimaryKey)
	}
	if candidate.Properties["region"] != "east" {
		t.Fatalf("transform not applied: got=%v", candidate.Properties["region"])
	}
}

func TestExtractEntityDropsCandidateOnMissingKeyColumn(t *testing.T) {
	header := map[string]int{"loc_id": 0, "region": 1}
	values := []any{"", "east"}

	_, ok := extractEntity("loc", sampleEntityMapping(), values, header, "Sheet1", 1)
	if ok {
		t.Fatalf("expected candidate to be dropped when key column is blank")
	}
}

func TestExtractRelationshipRequiresBothEndpoints(t *testing.T) {
	entities := map[string]EntityCandidate{
		"from": {EntityType: "Connection", PrimaryKey: "c1"},
	}
	rm := specloader.RelationshipMapping{
		RelationshipType: "FEEDS",
		FromEntity:       "from",
		ToEntity:          "to",
	}
	if _, ok := extractRelationship(rm, entities, nil, nil, "Sheet1", 1); ok {
		t.Fatalf("expected relationship extraction to fail without both endpoints")
	}

	entities["to"] = EntityCandidate{EntityType: "Location", PrimaryKey: "1001"}
	rel, ok := extractRelationship(rm, entities, nil, nil, "Sheet1", 1)
	if !ok {
		t.Fatalf("expected relationship to resolve with both endpoints present")
	}
	if rel.FromPrimaryKey != "c1" || rel.ToPrimaryKey != "1001" {
		t.Fatalf("unexpected relationship endpoints: %+v", rel)
	}
}

func TestAllNilSkipsBlankRows(t *testing.T) {
	if !allNil([]any{nil, "", "  "}) {
		t.Fatalf("row of blanks should be considered all-nil")
	}
	if allNil([]any{nil, "x"}) {
		t.Fatalf("row with one non-blank cell should not be all-nil")
	}
}

func TestResolveKeyTemplateComposite(t *testing.T) {
	got, ok := resolveKeyTemplate("{location_id}_{suffix}", map[string]any{
		"location_id": "1001",
		"suffix":      "A",
	})
	if !ok {
		t.Fatalf("expected template to resolve")
	}
	if got != "1001_A" {
		t.Fatalf("want=1001_A got=%q", got)
	}
}
