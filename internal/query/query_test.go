package query

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/domain/assertion"
	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
)

type fakeGraph struct {
	entities   []*assertion.Entity
	assertions []*assertion.AssertionRecord
	sources    []*assertion.Source
	runs       map[string]*assertion.ImportRun
	values     map[string]*assertion.PropertyValue
	events     map[string]*assertion.ChangeEvent
}

func (f *fakeGraph) SearchEntities(ctx context.Context, workspaceID, entityType, needle string, limit int) ([]*assertion.Entity, error) {
	var out []*assertion.Entity
	for _, e := range f.entities {
		if e.WorkspaceID != workspaceID {
			continue
		}
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeGraph) FindEntityByID(ctx context.Context, workspaceID, entityID string) (*assertion.Entity, error) {
	for _, e := range f.entities {
		if e.WorkspaceID == workspaceID && e.ID == entityID {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeGraph) OpenAssertionsForEntity(ctx context.Context, workspaceID, entityID string) ([]*assertion.AssertionRecord, error) {
	var out []*assertion.AssertionRecord
	for _, a := range f.assertions {
		if a.WorkspaceID == workspaceID && a.IsOpen() && (a.SubjectEntityID == entityID || a.ObjectEntityID == entityID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeGraph) ChangeEventByImportRun(ctx context.Context, importRunID string) (*assertion.ChangeEvent, error) {
	return f.events[importRunID], nil
}

func (f *fakeGraph) AssertionsByIDs(ctx context.Context, ids []string) ([]*assertion.AssertionRecord, error) {
	var out []*assertion.AssertionRecord
	for _, id := range ids {
		for _, a := range f.assertions {
			if a.ID == id {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeGraph) GetImportRun(ctx context.Context, workspaceID, importRunID string) (*assertion.ImportRun, error) {
	ir, ok := f.runs[importRunID]
	if !ok || ir.WorkspaceID != workspaceID {
		return nil, nil
	}
	return ir, nil
}

func (f *fakeGraph) ListSources(ctx context.Context, workspaceID string) ([]*assertion.Source, error) {
	var out []*assertion.Source
	for _, s := range f.sources {
		if s.WorkspaceID == workspaceID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeGraph) PropertyValuesByID(ctx context.Context, ids []string) (map[string]*assertion.PropertyValue, error) {
	out := make(map[string]*assertion.PropertyValue, len(ids))
	for _, id := range ids {
		if pv, ok := f.values[id]; ok {
			out[id] = pv
		}
	}
	return out, nil
}

func TestSearchEntitiesClampsPageSize(t *testing.T) {
	f := &fakeGraph{}
	for i := 0; i < 10; i++ {
		f.entities = append(f.entities, &assertion.Entity{ID: "e", WorkspaceID: "ws1", EntityType: "Location", PrimaryKey: "x"})
	}
	s := New(f)
	out, err := s.SearchEntities(context.Background(), "ws1", "", "", 5)
	if err != nil {
		t.Fatalf("SearchEntities: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 results, got %d", len(out))
	}
}

func TestEntityDetailReturnsNotFoundWhenEntityUnknown(t *testing.T) {
	s := New(&fakeGraph{})
	_, err := s.EntityDetail(context.Background(), "ws1", "missing", EntityDetailOptions{})
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		t.Fatalf("expected *apierr.Error, got %T (%v)", err, err)
	}
	if apiErr.Category != apierr.CategoryNotFound {
		t.Fatalf("expected not_found, got %s", apiErr.Category)
	}
}

func TestEntityDetailReturnsEmptyClaimsWhenEntityHasNone(t *testing.T) {
	f := &fakeGraph{
		entities: []*assertion.Entity{
			{ID: "entity_1", WorkspaceID: "ws1", EntityType: "Location", PrimaryKey: "1001"},
		},
	}
	s := New(f)
	detail, err := s.EntityDetail(context.Background(), "ws1", "entity_1", EntityDetailOptions{})
	if err != nil {
		t.Fatalf("EntityDetail: %v", err)
	}
	if detail.Entity == nil || detail.Entity.ID != "entity_1" {
		t.Fatalf("expected entity to be populated, got %+v", detail.Entity)
	}
	if len(detail.Properties) != 0 || len(detail.Relationships) != 0 {
		t.Fatalf("expected no claims, got %+v", detail)
	}
}

func TestEntityDetailResolvedViewPicksWinnerAcrossSources(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeGraph{
		entities: []*assertion.Entity{
			{ID: "entity_1", WorkspaceID: "ws1", EntityType: "Location", PrimaryKey: "1001"},
		},
		sources: []*assertion.Source{
			{ID: "src_erp", WorkspaceID: "ws1", AuthorityRank: 1},
			{ID: "src_spreadsheet", WorkspaceID: "ws1", AuthorityRank: 5},
		},
		values: map[string]*assertion.PropertyValue{
			"pv_erp":   {ID: "pv_erp", Value: "east"},
			"pv_sheet": {ID: "pv_sheet", Value: "west"},
		},
		assertions: []*assertion.AssertionRecord{
			{
				ID: "a_erp", WorkspaceID: "ws1", AssertionKey: "ws1:Location:1001:prop:region",
				RelationshipType: assertion.HasPropertyRelationshipType, PropertyKey: "region",
				SourceID: "src_erp", SourceType: assertion.SourceTypeAPI,
				RecordedAt: now, ValidFrom: now.Add(-time.Hour), ScenarioID: assertion.BaseScenario,
				SubjectEntityID: "entity_1", ObjectPropertyValueID: "pv_erp",
			},
			{
				ID: "a_sheet", WorkspaceID: "ws1", AssertionKey: "ws1:Location:1001:prop:region",
				RelationshipType: assertion.HasPropertyRelationshipType, PropertyKey: "region",
				SourceID: "src_spreadsheet", SourceType: assertion.SourceTypeSpreadsheet,
				RecordedAt: now, ValidFrom: now.Add(-time.Hour), ScenarioID: assertion.BaseScenario,
				SubjectEntityID: "entity_1", ObjectPropertyValueID: "pv_sheet",
			},
		},
	}

	s := New(f)
	detail, err := s.EntityDetail(context.Background(), "ws1", "entity_1", EntityDetailOptions{AsOf: now})
	if err != nil {
		t.Fatalf("EntityDetail: %v", err)
	}
	if len(detail.Properties) != 1 {
		t.Fatalf("resolved view should return exactly one winner, got %d", len(detail.Properties))
	}
	if detail.Properties[0].PropertyValue != "east" {
		t.Fatalf("expected the higher-authority erp value to win, got %q", detail.Properties[0].PropertyValue)
	}
}

func TestEntityDetailAllClaimsIncludesLosers(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeGraph{
		entities: []*assertion.Entity{
			{ID: "entity_1", WorkspaceID: "ws1", EntityType: "Location", PrimaryKey: "1001"},
		},
		sources: []*assertion.Source{
			{ID: "src_erp", WorkspaceID: "ws1", AuthorityRank: 1},
			{ID: "src_spreadsheet", WorkspaceID: "ws1", AuthorityRank: 5},
		},
		assertions: []*assertion.AssertionRecord{
			{
				ID: "a_erp", WorkspaceID: "ws1", AssertionKey: "ws1:Location:1001:prop:region",
				RelationshipType: assertion.HasPropertyRelationshipType, PropertyKey: "region",
				SourceID: "src_erp", SourceType: assertion.SourceTypeAPI,
				RecordedAt: now, ValidFrom: now.Add(-time.Hour), ScenarioID: assertion.BaseScenario,
				SubjectEntityID: "entity_1",
			},
			{
				ID: "a_sheet", WorkspaceID: "ws1", AssertionKey: "ws1:Location:1001:prop:region",
				RelationshipType: assertion.HasPropertyRelationshipType, PropertyKey: "region",
				SourceID: "src_spreadsheet", SourceType: assertion.SourceTypeSpreadsheet,
				RecordedAt: now, ValidFrom: now.Add(-time.Hour), ScenarioID: assertion.BaseScenario,
				SubjectEntityID: "entity_1",
			},
		},
	}

	s := New(f)
	detail, err := s.EntityDetail(context.Background(), "ws1", "entity_1", EntityDetailOptions{ViewMode: ViewAllClaims, AsOf: now})
	if err != nil {
		t.Fatalf("EntityDetail: %v", err)
	}
	if len(detail.Properties) != 2 {
		t.Fatalf("all_claims view should keep both records, got %d", len(detail.Properties))
	}
	winners := 0
	for _, p := range detail.Properties {
		if p.IsWinner {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner among all claims, got %d", winners)
	}
}

func TestImportDiffSeparatesCreatedAndClosed(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeGraph{
		runs: map[string]*assertion.ImportRun{
			"imp_1": {ID: "imp_1", WorkspaceID: "ws1"},
		},
		assertions: []*assertion.AssertionRecord{
			{ID: "a_new", WorkspaceID: "ws1", ImportRunID: "imp_1", ValidFrom: now},
			{ID: "a_old", WorkspaceID: "ws1", ImportRunID: "imp_1", ValidFrom: now.Add(-time.Hour), ValidTo: now},
		},
		events: map[string]*assertion.ChangeEvent{
			"imp_1": {
				ID: "ce_1", WorkspaceID: "ws1", ImportRunID: "imp_1",
				CreatedAssertionIDs: []string{"a_new"},
				ClosedAssertionIDs:  []string{"a_old"},
			},
		},
	}
	s := New(f)
	diff, err := s.ImportDiff(context.Background(), "ws1", "imp_1")
	if err != nil {
		t.Fatalf("ImportDiff: %v", err)
	}
	if len(diff.Created) != 1 || diff.Created[0].AssertionID != "a_new" {
		t.Fatalf("expected a_new in Created, got %+v", diff.Created)
	}
	if len(diff.Closed) != 1 || diff.Closed[0].AssertionID != "a_old" {
		t.Fatalf("expected a_old in Closed, got %+v", diff.Closed)
	}
}

func TestImportDiffNotFoundForUnknownWorkspace(t *testing.T) {
	f := &fakeGraph{runs: map[string]*assertion.ImportRun{"imp_1": {ID: "imp_1", WorkspaceID: "ws1"}}}
	s := New(f)
	_, err := s.ImportDiff(context.Background(), "ws2", "imp_1")
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Category != apierr.CategoryNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}
