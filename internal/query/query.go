// Package query implements the workspace-scoped read surface (C8):
// entity search, entity detail assembled through the resolution engine,
// and import diffs, backed by the C5 graph gateway.
package query

import (
	"context"
	"sort"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/domain/assertion"
	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
	"github.com/yungbote/neurobridge-backend/internal/resolution"
)

// GraphGateway is the subset of the C5 gateway contract this surface reads.
type GraphGateway interface {
	SearchEntities(ctx context.Context, workspaceID, entityType, needle string, limit int) ([]*assertion.Entity, error)
	FindEntityByID(ctx context.Context, workspaceID, entityID string) (*assertion.Entity, error)
	OpenAssertionsForEntity(ctx context.Context, workspaceID, entityID string) ([]*assertion.AssertionRecord, error)
	ChangeEventByImportRun(ctx context.Context, importRunID string) (*assertion.ChangeEvent, error)
	AssertionsByIDs(ctx context.Context, ids []string) ([]*assertion.AssertionRecord, error)
	GetImportRun(ctx context.Context, workspaceID, importRunID string) (*assertion.ImportRun, error)
	ListSources(ctx context.Context, workspaceID string) ([]*assertion.Source, error)
	PropertyValuesByID(ctx context.Context, ids []string) (map[string]*assertion.PropertyValue, error)
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ViewMode selects entity-detail shape.
type ViewMode string

const (
	ViewResolved  ViewMode = "resolved"
	ViewAllClaims ViewMode = "all_claims"
)

type Surface struct {
	graph GraphGateway
}

func New(graph GraphGateway) *Surface {
	return &Surface{graph: graph}
}

// EntitySummary is one row of a search result page.
type EntitySummary struct {
	ID          string
	EntityType  string
	PrimaryKey  string
	DisplayName string
}

// SearchEntities returns a bounded page of entities for a workspace.
func (s *Surface) SearchEntities(ctx context.Context, workspaceID, entityType, q string, limit int) ([]EntitySummary, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	entities, err := s.graph.SearchEntities(ctx, workspaceID, entityType, q, limit)
	if err != nil {
		return nil, err
	}
	out := make([]EntitySummary, 0, len(entities))
	for _, e := range entities {
		out = append(out, EntitySummary{ID: e.ID, EntityType: e.EntityType, PrimaryKey: e.PrimaryKey, DisplayName: e.DisplayName})
	}
	return out, nil
}

// ClaimView is one assertion as presented to a detail-view caller.
type ClaimView struct {
	AssertionID string
	SourceType  assertion.SourceType
	SourceID    string
	RecordedAt  time.Time
	ValidFrom   time.Time
	ValidTo     time.Time
	ScenarioID  string
	Confidence  float64
	IsWinner    bool
	LossReason  resolution.LossReason

	// Property-only fields.
	PropertyKey   string
	PropertyValue string

	// Relationship-only fields.
	RelationshipType string
	ObjectEntityID   string
}

// EntityDetail is the assembled resolved-or-all-claims view over one entity.
type EntityDetail struct {
	Entity        *assertion.Entity
	Properties    []ClaimView
	Relationships []ClaimView
}

// EntityDetailOptions mirrors spec.md §4.8's entity-detail inputs.
type EntityDetailOptions struct {
	ViewMode   ViewMode
	ScenarioID string
	AsOf       time.Time
}

func (o EntityDetailOptions) normalize() EntityDetailOptions {
	if o.ViewMode == "" {
		o.ViewMode = ViewResolved
	}
	if o.ScenarioID == "" {
		o.ScenarioID = assertion.BaseScenario
	}
	if o.AsOf.IsZero() {
		o.AsOf = time.Now().UTC()
	}
	return o
}

// EntityDetail loads the entity and assembles the resolved or all-claims
// view per spec.md §4.8's five-step procedure.
func (s *Surface) EntityDetail(ctx context.Context, workspaceID, entityID string, opts EntityDetailOptions) (*EntityDetail, error) {
	opts = opts.normalize()

	entity, err := s.graph.FindEntityByID(ctx, workspaceID, entityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, apierr.New(apierr.CategoryNotFound, "entity not found", nil).WithDetail("entity_id", entityID)
	}

	open, err := s.graph.OpenAssertionsForEntity(ctx, workspaceID, entityID)
	if err != nil {
		return nil, err
	}

	authority, err := s.buildAuthorityLookup(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*assertion.AssertionRecord)
	for _, a := range open {
		if a.SubjectEntityID != entityID {
			continue
		}
		grouped[a.AssertionKey] = append(grouped[a.AssertionKey], a)
	}

	detail := &EntityDetail{Entity: entity}
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var views []ClaimView
	var kept []*assertion.AssertionRecord
	for _, key := range keys {
		records := grouped[key]
		_, annotated := resolution.Resolve(records, opts.ScenarioID, opts.AsOf, authority)
		for _, ann := range annotated {
			if opts.ViewMode == ViewResolved && !ann.IsWinner {
				continue
			}
			views = append(views, claimViewFrom(ann))
			kept = append(kept, ann.Record)
		}
	}

	values, err := s.propertyValuesFor(ctx, kept)
	if err != nil {
		return nil, err
	}
	for i, a := range kept {
		view := views[i]
		if pv, ok := values[a.ObjectPropertyValueID]; ok {
			view.PropertyValue = pv.Value
		}
		if a.IsProperty() {
			detail.Properties = append(detail.Properties, view)
		} else {
			detail.Relationships = append(detail.Relationships, view)
		}
	}
	return detail, nil
}

func (s *Surface) propertyValuesFor(ctx context.Context, records []*assertion.AssertionRecord) (map[string]*assertion.PropertyValue, error) {
	var ids []string
	for _, a := range records {
		if a.ObjectPropertyValueID != "" {
			ids = append(ids, a.ObjectPropertyValueID)
		}
	}
	return s.graph.PropertyValuesByID(ctx, ids)
}

func claimViewFrom(ann resolution.Annotated) ClaimView {
	a := ann.Record
	return ClaimView{
		AssertionID:      a.ID,
		SourceType:       a.SourceType,
		SourceID:         a.SourceID,
		RecordedAt:       a.RecordedAt,
		ValidFrom:        a.ValidFrom,
		ValidTo:          a.ValidTo,
		ScenarioID:       a.ScenarioID,
		Confidence:       a.Confidence,
		IsWinner:         ann.IsWinner,
		LossReason:       ann.Reason,
		PropertyKey:      a.PropertyKey,
		RelationshipType: a.RelationshipType,
		ObjectEntityID:   a.ObjectEntityID,
	}
}

type sourceAuthority struct {
	ranks map[string]int
}

func (s *sourceAuthority) AuthorityRank(sourceID string) (int, bool) {
	rank, ok := s.ranks[sourceID]
	return rank, ok
}

func (s *Surface) buildAuthorityLookup(ctx context.Context, workspaceID string) (resolution.AuthorityLookup, error) {
	sources, err := s.graph.ListSources(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	ranks := make(map[string]int, len(sources))
	for _, src := range sources {
		if src.AuthorityRank != assertion.NoAuthorityRank {
			ranks[src.ID] = src.AuthorityRank
		}
	}
	return &sourceAuthority{ranks: ranks}, nil
}

// ImportDiff is the dereferenced created/closed assertion lists for one
// ImportRun, per spec.md §4.8.
type ImportDiff struct {
	ImportRun *assertion.ImportRun
	Created   []ClaimView
	Closed    []ClaimView
}

// GetImportRun returns one ImportRun's status and counters, for
// GET /workspaces/{workspace_id}/imports/{id} (spec.md §6).
func (s *Surface) GetImportRun(ctx context.Context, workspaceID, importRunID string) (*assertion.ImportRun, error) {
	ir, err := s.graph.GetImportRun(ctx, workspaceID, importRunID)
	if err != nil {
		return nil, err
	}
	if ir == nil {
		return nil, apierr.New(apierr.CategoryNotFound, "import run not found", nil).WithDetail("import_run_id", importRunID)
	}
	return ir, nil
}

// ImportDiff loads the ImportRun and the assertions it touched.
func (s *Surface) ImportDiff(ctx context.Context, workspaceID, importRunID string) (*ImportDiff, error) {
	ir, err := s.graph.GetImportRun(ctx, workspaceID, importRunID)
	if err != nil {
		return nil, err
	}
	if ir == nil {
		return nil, apierr.New(apierr.CategoryNotFound, "import run not found", nil).WithDetail("import_run_id", importRunID)
	}

	diff := &ImportDiff{ImportRun: ir}

	ce, err := s.graph.ChangeEventByImportRun(ctx, importRunID)
	if err != nil {
		return nil, err
	}
	if ce == nil {
		return diff, nil
	}

	created, err := s.graph.AssertionsByIDs(ctx, ce.CreatedAssertionIDs)
	if err != nil {
		return nil, err
	}
	closed, err := s.graph.AssertionsByIDs(ctx, ce.ClosedAssertionIDs)
	if err != nil {
		return nil, err
	}

	all := make([]*assertion.AssertionRecord, 0, len(created)+len(closed))
	all = append(all, created...)
	all = append(all, closed...)
	values, err := s.propertyValuesFor(ctx, all)
	if err != nil {
		return nil, err
	}

	claimView := func(a *assertion.AssertionRecord) ClaimView {
		view := ClaimView{
			AssertionID:      a.ID,
			SourceType:       a.SourceType,
			SourceID:         a.SourceID,
			RecordedAt:       a.RecordedAt,
			ValidFrom:        a.ValidFrom,
			ValidTo:          a.ValidTo,
			ScenarioID:       a.ScenarioID,
			Confidence:       a.Confidence,
			PropertyKey:      a.PropertyKey,
			RelationshipType: a.RelationshipType,
			ObjectEntityID:   a.ObjectEntityID,
		}
		if pv, ok := values[a.ObjectPropertyValueID]; ok {
			view.PropertyValue = pv.Value
		}
		return view
	}

	for _, a := range created {
		diff.Created = append(diff.Created, claimView(a))
	}
	for _, a := range closed {
		diff.Closed = append(diff.Closed, claimView(a))
	}
	return diff, nil
}
