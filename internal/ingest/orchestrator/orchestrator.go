// Package orchestrator implements the ingestion algorithm (C7): load the
// spec, parse the workbook, upsert entities, materialize candidate
// assertions, change-detect them against the graph, detect disappeared
// keys, persist the result, and emit one ChangeEvent per run.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/domain/assertion"
	"github.com/yungbote/neurobridge-backend/internal/ingest/rowparser"
	"github.com/yungbote/neurobridge-backend/internal/ingest/specloader"
	"github.com/yungbote/neurobridge-backend/internal/platform/hashutil"
	"github.com/yungbote/neurobridge-backend/internal/platform/idgen"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
	"github.com/yungbote/neurobridge-backend/internal/resolution"
)

// GraphGateway is the subset of the C5 gateway contract the orchestrator
// drives. Declared here rather than imported from assertiongraph so this
// package can be tested against a fake without pulling in the Neo4j driver.
type GraphGateway interface {
	FindEntity(ctx context.Context, workspaceID, entityType, primaryKey string) (*assertion.Entity, error)
	InsertEntity(ctx context.Context, e *assertion.Entity) error
	UpdateEntityConvenienceProperties(ctx context.Context, workspaceID, entityID string, props map[string]assertion.PropertyValue) error
	InsertAssertion(ctx context.Context, a *assertion.AssertionRecord) error
	CloseAssertion(ctx context.Context, assertionID string, validTo time.Time) error
	OpenAssertionsForKey(ctx context.Context, workspaceID, assertionKey, scenarioID string) ([]*assertion.AssertionRecord, error)
	OpenAssertionsBySource(ctx context.Context, workspaceID, sourceID string) ([]*assertion.AssertionRecord, error)
	OpenAssertionsForEntity(ctx context.Context, workspaceID, entityID string) ([]*assertion.AssertionRecord, error)
	InsertPropertyValue(ctx context.Context, pv *assertion.PropertyValue) error
	PropertyValuesByID(ctx context.Context, ids []string) (map[string]*assertion.PropertyValue, error)
	InsertChangeEvent(ctx context.Context, ce *assertion.ChangeEvent, triggerID string) error
	InsertImportRun(ctx context.Context, ir *assertion.ImportRun) error
	FinishImportRun(ctx context.Context, ir *assertion.ImportRun) error
	UpsertSource(ctx context.Context, s *assertion.Source) error
	ListSources(ctx context.Context, workspaceID string) ([]*assertion.Source, error)
}

// Clock abstracts "now" so recorded_at/started_at/ts are explicit
// parameters the orchestrator never reads from the system clock
// implicitly, matching spec.md's "implicit now" redesign flag.
type Clock func() time.Time

// Orchestrator runs one import at a time per (workspace_id, spec_name);
// concurrent imports for distinct specs or workspaces proceed independently.
type Orchestrator struct {
	graph GraphGateway
	log   *logger.Logger
	clock Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(graph GraphGateway, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		graph: graph,
		log:   log,
		clock: func() time.Time { return time.Now().UTC() },
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the clock, for deterministic tests.
func (o *Orchestrator) WithClock(c Clock) *Orchestrator {
	o.clock = c
	return o
}

func (o *Orchestrator) lockFor(workspaceID, specName string) *sync.Mutex {
	key := workspaceID + "\x1f" + specName
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[key]
	if !ok {
		l = &sync.Mutex{}
		o.locks[key] = l
	}
	return l
}

// Result is the effect of one Run call.
type Result struct {
	ImportRun   *assertion.ImportRun
	ChangeEvent *assertion.ChangeEvent
}

// candidateAssertion is a materialized candidate before change detection,
// carrying enough to insert an AssertionRecord if it survives.
type candidateAssertion struct {
	assertionKey     string
	relationshipType string
	propertyKey      string
	contentHash      string
	subjectEntityID  string
	objectEntityID   string
	propertyValue    *assertion.PropertyValue // non-nil for property candidates
}

// Run executes the full 9-step algorithm for one spreadsheet import.
func (o *Orchestrator) Run(ctx context.Context, workspaceID, specName, sourceFilename, actor string, spec *specloader.IngestionSpec, workbookPath string) (*Result, error) {
	lock := o.lockFor(workspaceID, specName)
	lock.Lock()
	defer lock.Unlock()

	now := o.clock()

	// (1) Load + validate; open ImportRun.
	importRun := &assertion.ImportRun{
		ID:             idgen.New("imp_"),
		WorkspaceID:    workspaceID,
		SpecName:       specName,
		SourceFilename: sourceFilename,
		StartedAt:      now,
		Status:         assertion.ImportStatusRunning,
	}
	if err := o.graph.InsertImportRun(ctx, importRun); err != nil {
		return nil, err
	}

	source, err := o.resolveSource(ctx, workspaceID, spec)
	if err != nil {
		o.fail(ctx, importRun, err)
		return nil, err
	}

	result, runErr := o.runSteps(ctx, workspaceID, specName, actor, spec, workbookPath, source, importRun, now)
	if runErr != nil {
		o.fail(ctx, importRun, runErr)
		return nil, runErr
	}
	return result, nil
}

func (o *Orchestrator) fail(ctx context.Context, importRun *assertion.ImportRun, err error) {
	importRun.Status = assertion.ImportStatusFailed
	importRun.FinishedAt = o.clock()
	importRun.ErrorMessage = err.Error()
	if finErr := o.graph.FinishImportRun(ctx, importRun); finErr != nil && o.log != nil {
		o.log.Warn("failed to record failed import run", "error", finErr)
	}
}

func (o *Orchestrator) resolveSource(ctx context.Context, workspaceID string, spec *specloader.IngestionSpec) (*assertion.Source, error) {
	sa := spec.SourceAuthority
	rank := sa.AuthorityRank
	if rank == 0 {
		rank = assertion.NoAuthorityRank
	}
	src := &assertion.Source{
		ID:               idgen.New("src_"),
		WorkspaceID:      workspaceID,
		SourceName:       sa.SourceName,
		SourceType:       assertion.SourceType(spec.SourceType),
		AuthorityDomains: sa.AuthorityDomains,
		AuthorityRank:    rank,
	}
	if existing, err := o.findExistingSource(ctx, workspaceID, sa.SourceName); err != nil {
		return nil, err
	} else if existing != nil {
		src.ID = existing.ID
	}
	if err := o.graph.UpsertSource(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

func (o *Orchestrator) findExistingSource(ctx context.Context, workspaceID, sourceName string) (*assertion.Source, error) {
	sources, err := o.graph.ListSources(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		if s.SourceName == sourceName {
			return s, nil
		}
	}
	return nil, nil
}

func (o *Orchestrator) runSteps(
	ctx context.Context,
	workspaceID, specName, actor string,
	spec *specloader.IngestionSpec,
	workbookPath string,
	source *assertion.Source,
	importRun *assertion.ImportRun,
	now time.Time,
) (*Result, error) {
	// (2) Parse.
	staged, err := rowparser.ParseWorkbook(workbookPath, spec)
	if err != nil {
		return nil, err
	}

	hashCfg := spec.ToHashutilCfg()
	normRules := spec.ChangeDetection.NormalizationRules.ToHashutil()
	normalizedMode := spec.ChangeDetection.Mode == "normalized"

	entitiesByAlias := make(map[string]*assertion.Entity)
	var candidates []candidateAssertion

	for _, row := range staged {
		// (3) Upsert entities.
		rowEntities := make(map[string]*assertion.Entity, len(row.Entities))
		for _, ec := range row.Entities {
			ent, err := o.upsertEntity(ctx, workspaceID, ec.EntityType, ec.PrimaryKey, ec.DisplayName, now)
			if err != nil {
				return nil, err
			}
			rowEntities[ec.Alias] = ent
			entitiesByAlias[ec.EntityType+":"+ec.PrimaryKey] = ent
		}

		// (4) Materialize candidate assertions.
		for _, ec := range row.Entities {
			subject := rowEntities[ec.Alias]
			for propKey, propVal := range ec.Properties {
				if isNullToken(propVal, hashCfg.NullRepresentation) {
					continue
				}
				cand := propertyCandidate(workspaceID, ec.EntityType, ec.PrimaryKey, propKey, propVal, subject.ID, normalizedMode, normRules)
				candidates = append(candidates, cand)
			}
		}
		for _, rc := range row.Relationships {
			from := entitiesByAlias[rc.FromEntityType+":"+rc.FromPrimaryKey]
			to := entitiesByAlias[rc.ToEntityType+":"+rc.ToPrimaryKey]
			if from == nil || to == nil {
				continue
			}
			cand := relationshipCandidate(workspaceID, rc, from.ID, to.ID, normalizedMode, normRules)
			candidates = append(candidates, cand)
		}
	}

	// (5) Change detect.
	var createdIDs, closedIDs []string
	created, closedCount, unchanged := 0, 0, 0
	seenKeys := make(map[string]bool, len(candidates))

	for _, cand := range candidates {
		seenKeys[cand.assertionKey] = true
		open, err := o.graph.OpenAssertionsForKey(ctx, workspaceID, cand.assertionKey, assertion.BaseScenario)
		if err != nil {
			return nil, err
		}

		var sameSource *assertion.AssertionRecord
		for _, a := range open {
			if a.SourceID == source.ID {
				sameSource = a
				break
			}
		}

		switch {
		case sameSource == nil:
			newID, err := o.materializeCandidate(ctx, cand, source, importRun, now, "")
			if err != nil {
				return nil, err
			}
			createdIDs = append(createdIDs, newID)
			created++
		case sameSource.ContentHashEqual(cand.contentHash):
			unchanged++
		default:
			if err := o.graph.CloseAssertion(ctx, sameSource.ID, now); err != nil {
				return nil, err
			}
			closedIDs = append(closedIDs, sameSource.ID)
			closedCount++
			newID, err := o.materializeCandidate(ctx, cand, source, importRun, now, sameSource.ID)
			if err != nil {
				return nil, err
			}
			createdIDs = append(createdIDs, newID)
			created++
		}
	}

	// (6) Disappearance detection: keys previously open for this source
	// but absent from the current candidate set are closed.
	previouslyOpen, err := o.graph.OpenAssertionsBySource(ctx, workspaceID, source.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range previouslyOpen {
		if seenKeys[a.AssertionKey] {
			continue
		}
		if alreadyClosedThisRun(closedIDs, a.ID) {
			continue
		}
		if err := o.graph.CloseAssertion(ctx, a.ID, now); err != nil {
			return nil, err
		}
		closedIDs = append(closedIDs, a.ID)
		closedCount++
	}

	// (7) already persisted incrementally above; convenience properties
	// are regenerated per affected entity from the resolved view.
	for _, ent := range entitiesByAlias {
		if err := o.regenerateConvenienceProperties(ctx, ent, now); err != nil && o.log != nil {
			o.log.Warn("convenience property regeneration failed (continuing)", "entity_id", ent.ID, "error", err)
		}
	}

	// (8) Emit ChangeEvent.
	stats := assertion.ChangeStats{Created: created, Closed: closedCount, Unchanged: unchanged}
	ce := &assertion.ChangeEvent{
		ID:                  idgen.New("evt_"),
		WorkspaceID:         workspaceID,
		EventType:           assertion.EventTypeImport,
		Timestamp:           now,
		Actor:               actor,
		Stats:               stats,
		Descr:               fmt.Sprintf("import %s: %d created, %d closed, %d unchanged", specName, created, closedCount, unchanged),
		ImportRunID:         importRun.ID,
		CreatedAssertionIDs: createdIDs,
		ClosedAssertionIDs:  closedIDs,
	}
	if err := o.graph.InsertChangeEvent(ctx, ce, importRun.ID); err != nil {
		return nil, err
	}

	importRun.Status = assertion.ImportStatusOK
	importRun.FinishedAt = o.clock()
	importRun.Stats = stats
	if err := o.graph.FinishImportRun(ctx, importRun); err != nil {
		return nil, err
	}

	return &Result{ImportRun: importRun, ChangeEvent: ce}, nil
}

func alreadyClosedThisRun(closedIDs []string, id string) bool {
	for _, c := range closedIDs {
		if c == id {
			return true
		}
	}
	return false
}

func (o *Orchestrator) upsertEntity(ctx context.Context, workspaceID, entityType, primaryKey, displayName string, now time.Time) (*assertion.Entity, error) {
	existing, err := o.graph.FindEntity(ctx, workspaceID, entityType, primaryKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	ent := &assertion.Entity{
		ID:          idgen.New("entity_"),
		WorkspaceID: workspaceID,
		EntityType:  entityType,
		PrimaryKey:  primaryKey,
		DisplayName: displayName,
		CreatedAt:   now,
	}
	if err := o.graph.InsertEntity(ctx, ent); err != nil {
		return nil, err
	}
	return ent, nil
}

func isNullToken(v any, nullRepresentation string) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	return s == "" || s == nullRepresentation
}

// inferValueType classifies a cell value the way the original's
// _infer_value_type does: bool before number (bool is a distinct kind
// from the reader, never a Go numeric type under a bool guise), then
// number, then date, defaulting to string. The returned string is the
// value's canonical, type-stable rendering, used both as the stored
// PropertyValue.Value and as the hash input.
func inferValueType(value any) (assertion.ValueType, string) {
	switch v := value.(type) {
	case bool:
		if v {
			return assertion.ValueTypeBoolean, "true"
		}
		return assertion.ValueTypeBoolean, "false"
	case float64:
		return assertion.ValueTypeNumber, strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return assertion.ValueTypeNumber, strconv.Itoa(v)
	case int64:
		return assertion.ValueTypeNumber, strconv.FormatInt(v, 10)
	case time.Time:
		return assertion.ValueTypeDate, v.Format(time.RFC3339)
	default:
		return assertion.ValueTypeString, fmt.Sprintf("%v", value)
	}
}

func propertyCandidate(workspaceID, entityType, primaryKey, propertyKey string, value any, subjectEntityID string, normalized bool, rules hashutil.NormalizationRules) candidateAssertion {
	valueType, valueStr := inferValueType(value)
	var hash string
	if normalized {
		hash = hashutil.CandidateContentHash([]string{propertyKey, valueStr}, &rules)
	} else {
		hash = hashutil.CandidateContentHash([]string{propertyKey, valueStr}, nil)
	}
	return candidateAssertion{
		assertionKey:    hashutil.PropertyAssertionKey(workspaceID, entityType, primaryKey, propertyKey),
		propertyKey:     propertyKey,
		contentHash:     hash,
		subjectEntityID: subjectEntityID,
		propertyValue: &assertion.PropertyValue{
			ID:          idgen.New("pv_"),
			WorkspaceID: workspaceID,
			PropertyKey: propertyKey,
			Value:       valueStr,
			ValueType:   valueType,
		},
	}
}

func relationshipCandidate(workspaceID string, rc rowparser.RelationshipCandidate, fromID, toID string, normalized bool, rules hashutil.NormalizationRules) candidateAssertion {
	fields := []string{rc.FromEntityType, rc.FromPrimaryKey, rc.RelationshipType, rc.ToEntityType, rc.ToPrimaryKey}
	var hash string
	if normalized {
		hash = hashutil.CandidateContentHash(fields, &rules)
	} else {
		hash = hashutil.CandidateContentHash(fields, nil)
	}
	return candidateAssertion{
		assertionKey: hashutil.RelationshipAssertionKey(
			workspaceID, rc.FromEntityType, rc.FromPrimaryKey, rc.RelationshipType, rc.ToEntityType, rc.ToPrimaryKey,
		),
		relationshipType: rc.RelationshipType,
		contentHash:      hash,
		subjectEntityID:  fromID,
		objectEntityID:   toID,
	}
}

// materializeCandidate persists a surviving candidate's PropertyValue (if
// any) and AssertionRecord, returning the new assertion's id.
func (o *Orchestrator) materializeCandidate(ctx context.Context, cand candidateAssertion, source *assertion.Source, importRun *assertion.ImportRun, now time.Time, supersedes string) (string, error) {
	a := &assertion.AssertionRecord{
		ID:               idgen.New("asrt_"),
		WorkspaceID:       source.WorkspaceID,
		AssertionKey:      cand.assertionKey,
		RelationshipType:  cand.relationshipType,
		PropertyKey:       cand.propertyKey,
		RawHash:           cand.contentHash,
		NormalizedHash:    cand.contentHash,
		SourceType:        source.SourceType,
		SourceID:          source.ID,
		ImportRunID:       importRun.ID,
		RecordedAt:        now,
		ValidFrom:         now,
		ScenarioID:        assertion.BaseScenario,
		Confidence:        1.0,
		Supersedes:        supersedes,
		SubjectEntityID:   cand.subjectEntityID,
		ObjectEntityID:    cand.objectEntityID,
	}
	if cand.relationshipType == "" {
		a.RelationshipType = assertion.HasPropertyRelationshipType
	}
	if cand.propertyValue != nil {
		cand.propertyValue.WorkspaceID = source.WorkspaceID
		if err := o.graph.InsertPropertyValue(ctx, cand.propertyValue); err != nil {
			return "", err
		}
		a.ObjectPropertyValueID = cand.propertyValue.ID
	}
	if err := o.graph.InsertAssertion(ctx, a); err != nil {
		return "", err
	}
	return a.ID, nil
}

// regenerateConvenienceProperties resolves every open assertion touching
// an entity and rebuilds its ConvenienceProperties cache from the winners.
// Best-effort: a failure here never fails the import, since the cache is
// advisory (see DESIGN.md's Open Question decisions).
func (o *Orchestrator) regenerateConvenienceProperties(ctx context.Context, ent *assertion.Entity, asOf time.Time) error {
	open, err := o.graph.OpenAssertionsForEntity(ctx, ent.WorkspaceID, ent.ID)
	if err != nil {
		return err
	}
	byKey := make(map[string][]*assertion.AssertionRecord)
	for _, a := range open {
		if !a.IsProperty() || a.SubjectEntityID != ent.ID {
			continue
		}
		byKey[a.AssertionKey] = append(byKey[a.AssertionKey], a)
	}
	winners := make(map[string]*assertion.AssertionRecord, len(byKey))
	var valueIDs []string
	for key, records := range byKey {
		winner, _ := resolution.Resolve(records, assertion.BaseScenario, asOf, nil)
		if winner == nil {
			continue
		}
		winners[key] = winner
		if winner.ObjectPropertyValueID != "" {
			valueIDs = append(valueIDs, winner.ObjectPropertyValueID)
		}
	}
	values, err := o.graph.PropertyValuesByID(ctx, valueIDs)
	if err != nil {
		return err
	}

	props := make(map[string]assertion.PropertyValue, len(winners))
	for key, winner := range winners {
		pv := assertion.PropertyValue{PropertyKey: winner.PropertyKey, WorkspaceID: ent.WorkspaceID}
		if resolved, ok := values[winner.ObjectPropertyValueID]; ok {
			pv.ID = resolved.ID
			pv.Value = resolved.Value
			pv.ValueType = resolved.ValueType
		}
		props[key] = pv
	}
	ent.ConvenienceProperties = props
	return o.graph.UpdateEntityConvenienceProperties(ctx, ent.WorkspaceID, ent.ID, props)
}
