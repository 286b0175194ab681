// Package assertiongraph implements the graph-store gateway (C5): it turns
// Entity, AssertionRecord, ChangeEvent, ImportRun, and Source vertices, and
// the ASSERTED_REL/TRIGGERED_BY/CREATED_ASSERTION/CLOSED_ASSERTION edges,
// into parameterized Cypher against Neo4j. It owns the portability rules
// the rest of the system must not have to know about: a graph query
// language can't always filter on "this property is null" at the store
// side, so open-assertion lookups fetch candidates by key and filter
// valid_to in Go rather than in Cypher.
package assertiongraph

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/neurobridge-backend/internal/domain/assertion"
	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
	"github.com/yungbote/neurobridge-backend/internal/platform/neo4jdb"
)

// Gateway is the only component in the system that issues Cypher. Every
// other component speaks in domain types.
type Gateway struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func New(client *neo4jdb.Client, log *logger.Logger) *Gateway {
	return &Gateway{client: client, log: log}
}

// EnsureSchema creates uniqueness constraints. Best-effort: a constraint
// that already exists or a store that doesn't support IF NOT EXISTS on a
// given label is logged and skipped, never fatal.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE CONSTRAINT entity_business_key_unique IF NOT EXISTS FOR (e:Entity) REQUIRE (e.workspace_id, e.entity_type, e.primary_key) IS UNIQUE`,
		`CREATE CONSTRAINT assertion_id_unique IF NOT EXISTS FOR (a:AssertionRecord) REQUIRE a.id IS UNIQUE`,
		`CREATE CONSTRAINT change_event_id_unique IF NOT EXISTS FOR (c:ChangeEvent) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT import_run_id_unique IF NOT EXISTS FOR (i:ImportRun) REQUIRE i.id IS UNIQUE`,
		`CREATE CONSTRAINT source_id_unique IF NOT EXISTS FOR (s:Source) REQUIRE s.id IS UNIQUE`,
		`CREATE CONSTRAINT property_value_id_unique IF NOT EXISTS FOR (p:PropertyValue) REQUIRE p.id IS UNIQUE`,
	}
	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.client.Database})
	defer session.Close(ctx)
	for _, stmt := range stmts {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			if g.log != nil {
				g.log.Warn("assertiongraph schema init failed (continuing)", "error", err)
			}
			continue
		}
		if _, err := res.Consume(ctx); err != nil && g.log != nil {
			g.log.Warn("assertiongraph schema init consume failed (continuing)", "error", err)
		}
	}
	return nil
}

func (g *Gateway) read(ctx context.Context) neo4j.SessionWithContext {
	return g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: g.client.Database,
	})
}

func (g *Gateway) write(ctx context.Context) neo4j.SessionWithContext {
	return g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.client.Database,
	})
}

func storeErr(action string, err error) error {
	return apierr.New(apierr.CategoryStoreError, action, err)
}

// --- Entity -----------------------------------------------------------

func (g *Gateway) FindEntity(ctx context.Context, workspaceID, entityType, primaryKey string) (*assertion.Entity, error) {
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {workspace_id: $workspace_id, entity_type: $entity_type, primary_key: $primary_key})
RETURN e.id AS id, e.display_name AS display_name, e.created_at AS created_at
LIMIT 1
`, map[string]any{
			"workspace_id": workspaceID,
			"entity_type":  entityType,
			"primary_key":  primaryKey,
		})
		if err != nil {
			return nil, err
		}
		return collectOne(ctx, res, parseEntityRecord(workspaceID, entityType, primaryKey))
	})
	if err != nil {
		return nil, storeErr("find entity", err)
	}
	if result == nil {
		return nil, nil
	}
	return result.(*assertion.Entity), nil
}

func parseEntityRecord(workspaceID, entityType, primaryKey string) func(neo4j.Record) any {
	return func(rec neo4j.Record) any {
		displayName, _ := rec.Get("display_name")
		id, _ := rec.Get("id")
		createdAt, _ := rec.Get("created_at")
		return &assertion.Entity{
			ID:          asString(id),
			WorkspaceID: workspaceID,
			EntityType:  entityType,
			PrimaryKey:  primaryKey,
			DisplayName: asString(displayName),
			CreatedAt:   asTime(createdAt),
		}
	}
}

func (g *Gateway) FindEntityByID(ctx context.Context, workspaceID, entityID string) (*assertion.Entity, error) {
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {id: $id, workspace_id: $workspace_id})
RETURN e.entity_type AS entity_type, e.primary_key AS primary_key, e.display_name AS display_name, e.created_at AS created_at
LIMIT 1
`, map[string]any{
			"id":           entityID,
			"workspace_id": workspaceID,
		})
		if err != nil {
			return nil, err
		}
		return collectOne(ctx, res, func(rec neo4j.Record) any {
			entityType, _ := rec.Get("entity_type")
			primaryKey, _ := rec.Get("primary_key")
			displayName, _ := rec.Get("display_name")
			createdAt, _ := rec.Get("created_at")
			return &assertion.Entity{
				ID:          entityID,
				WorkspaceID: workspaceID,
				EntityType:  asString(entityType),
				PrimaryKey:  asString(primaryKey),
				DisplayName: asString(displayName),
				CreatedAt:   asTime(createdAt),
			}
		})
	})
	if err != nil {
		return nil, storeErr("find entity by id", err)
	}
	if result == nil {
		return nil, nil
	}
	return result.(*assertion.Entity), nil
}

// InsertEntity creates a new Entity vertex, enforcing spec.md §4.5's
// uniqueness contract on (workspace_id, entity_type, primary_key)
// atomically: the MERGE matches on the business key rather than the
// freshly minted id, so a concurrent insert for the same key can never
// slip past the check the way a separate FindEntity-then-InsertEntity
// race could. Callers should still call FindEntity first to avoid
// minting an id they'll discard, but InsertEntity is itself safe to
// call without that precondition.
func (g *Gateway) InsertEntity(ctx context.Context, e *assertion.Entity) error {
	session := g.write(ctx)
	defer session.Close(ctx)

	now := e.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (e:Entity {workspace_id: $workspace_id, entity_type: $entity_type, primary_key: $primary_key})
ON CREATE SET e.id = $id, e.display_name = $display_name, e.created_at = $created_at
RETURN e.id AS id
`, map[string]any{
			"id":           e.ID,
			"workspace_id": e.WorkspaceID,
			"entity_type":  e.EntityType,
			"primary_key":  e.PrimaryKey,
			"display_name": e.DisplayName,
			"created_at":   now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		return collectOne(ctx, res, func(rec neo4j.Record) any {
			id, _ := rec.Get("id")
			return asString(id)
		})
	})
	if err != nil {
		return storeErr("insert entity", err)
	}
	existingID, _ := result.(string)
	if existingID != e.ID {
		return apierr.New(apierr.CategoryConflict, "entity already exists for this workspace_id/entity_type/primary_key", nil).
			WithDetail("workspace_id", e.WorkspaceID).
			WithDetail("entity_type", e.EntityType).
			WithDetail("primary_key", e.PrimaryKey)
	}
	e.CreatedAt = now
	return nil
}

func (g *Gateway) SearchEntities(ctx context.Context, workspaceID, entityType, primaryKeyContains string, limit int) ([]*assertion.Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {workspace_id: $workspace_id})
WHERE ($entity_type = '' OR e.entity_type = $entity_type)
  AND ($needle = '' OR toLower(e.primary_key) CONTAINS toLower($needle) OR toLower(e.display_name) CONTAINS toLower($needle))
RETURN e.id AS id, e.entity_type AS entity_type, e.primary_key AS primary_key,
       e.display_name AS display_name, e.created_at AS created_at
LIMIT $limit
`, map[string]any{
			"workspace_id": workspaceID,
			"entity_type":  entityType,
			"needle":       primaryKeyContains,
			"limit":        int64(limit),
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*assertion.Entity, 0, len(records))
		for _, rec := range records {
			out = append(out, fullEntityFromRecord(workspaceID, *rec))
		}
		return out, nil
	})
	if err != nil {
		return nil, storeErr("search entities", err)
	}
	return result.([]*assertion.Entity), nil
}

// UpdateEntityConvenienceProperties overwrites an Entity's cached,
// derived property snapshot (step 7 of the ingestion algorithm). This
// is the only field on Entity that is ever rewritten after creation;
// it is a performance optimization the resolution engine never reads
// from (see DESIGN.md's Open Question decisions), so a failed write
// here is logged by the caller and never fails the surrounding import.
func (g *Gateway) UpdateEntityConvenienceProperties(ctx context.Context, workspaceID, entityID string, props map[string]assertion.PropertyValue) error {
	encoded, err := json.Marshal(props)
	if err != nil {
		return apierr.New(apierr.CategoryInternalError, "encode convenience properties", err)
	}

	session := g.write(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {id: $id, workspace_id: $workspace_id})
SET e.convenience_properties = $convenience_properties
`, map[string]any{
			"id":                      entityID,
			"workspace_id":            workspaceID,
			"convenience_properties": string(encoded),
		})
		if err != nil {
			return nil, err
		}
		return nil, consumeOnly(ctx, res)
	})
	if err != nil {
		return storeErr("update entity convenience properties", err)
	}
	return nil
}

func fullEntityFromRecord(workspaceID string, rec neo4j.Record) *assertion.Entity {
	id, _ := rec.Get("id")
	entityType, _ := rec.Get("entity_type")
	primaryKey, _ := rec.Get("primary_key")
	displayName, _ := rec.Get("display_name")
	createdAt, _ := rec.Get("created_at")
	return &assertion.Entity{
		ID:          asString(id),
		WorkspaceID: workspaceID,
		EntityType:  asString(entityType),
		PrimaryKey:  asString(primaryKey),
		DisplayName: asString(displayName),
		CreatedAt:   asTime(createdAt),
	}
}

// --- AssertionRecord ----------------------------------------------------

// InsertAssertion writes the AssertionRecord vertex and the two
// ASSERTED_REL edges (subject->assertion, assertion->object or
// assertion->property-value) in one write transaction.
func (g *Gateway) InsertAssertion(ctx context.Context, a *assertion.AssertionRecord) error {
	session := g.write(ctx)
	defer session.Close(ctx)

	params := assertionParams(a)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (a:AssertionRecord {id: $id})
SET a += $props
WITH a
MATCH (subject:Entity {id: $subject_entity_id})
MERGE (subject)-[:ASSERTED_REL]->(a)
`, params)
		if err != nil {
			return nil, err
		}
		if err := consumeOnly(ctx, res); err != nil {
			return nil, err
		}

		if a.ObjectEntityID != "" {
			res, err := tx.Run(ctx, `
MATCH (a:AssertionRecord {id: $id})
MATCH (object:Entity {id: $object_entity_id})
MERGE (a)-[:ASSERTED_REL]->(object)
`, map[string]any{"id": a.ID, "object_entity_id": a.ObjectEntityID})
			if err != nil {
				return nil, err
			}
			return nil, consumeOnly(ctx, res)
		}
		if a.ObjectPropertyValueID != "" {
			res, err := tx.Run(ctx, `
MATCH (a:AssertionRecord {id: $id})
MATCH (pv:PropertyValue {id: $pv_id})
MERGE (a)-[:ASSERTED_REL]->(pv)
`, map[string]any{"id": a.ID, "pv_id": a.ObjectPropertyValueID})
			if err != nil {
				return nil, err
			}
			return nil, consumeOnly(ctx, res)
		}
		return nil, nil
	})
	if err != nil {
		return storeErr("insert assertion", err)
	}
	return nil
}

func assertionParams(a *assertion.AssertionRecord) map[string]any {
	props := map[string]any{
		"workspace_id":      a.WorkspaceID,
		"assertion_key":     a.AssertionKey,
		"relationship_type": a.RelationshipType,
		"property_key":      a.PropertyKey,
		"raw_hash":          a.RawHash,
		"normalized_hash":   a.NormalizedHash,
		"source_type":       string(a.SourceType),
		"source_ref":        a.SourceRef,
		"source_id":         a.SourceID,
		"import_run_id":     a.ImportRunID,
		"recorded_at":       a.RecordedAt.Format(time.RFC3339Nano),
		"valid_from":        a.ValidFrom.Format(time.RFC3339Nano),
		"scenario_id":              a.ScenarioID,
		"confidence":               a.Confidence,
		"supersedes":               a.Supersedes,
		"subject_entity_id":        a.SubjectEntityID,
		"object_entity_id":         a.ObjectEntityID,
		"object_property_value_id": a.ObjectPropertyValueID,
	}
	if !a.ValidTo.IsZero() {
		props["valid_to"] = a.ValidTo.Format(time.RFC3339Nano)
	}
	return map[string]any{
		"id":                a.ID,
		"props":             props,
		"subject_entity_id": a.SubjectEntityID,
	}
}

// closeCheck reports what CloseAssertion found before deciding whether
// the SET is safe to issue, inside the same write transaction.
type closeCheck struct {
	found  bool
	closed bool
}

// CloseAssertion patches valid_to, refusing to re-close an assertion
// that's already closed (spec.md §4.5, §7's Conflict example). The
// portability rule means this can't be expressed as a single
// "WHERE a.valid_to IS NULL" Cypher guard, so the current value is
// fetched and checked in Go, inside the same write transaction as the
// SET, to keep the check-then-act atomic.
func (g *Gateway) CloseAssertion(ctx context.Context, assertionID string, validTo time.Time) error {
	session := g.write(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (a:AssertionRecord {id: $id}) RETURN a.valid_to AS valid_to`, map[string]any{"id": assertionID})
		if err != nil {
			return nil, err
		}
		current, err := collectOne(ctx, res, func(rec neo4j.Record) any {
			vt, _ := rec.Get("valid_to")
			return asString(vt)
		})
		if err != nil {
			return nil, err
		}
		if current == nil {
			return closeCheck{found: false}, nil
		}
		if current.(string) != "" {
			return closeCheck{found: true, closed: true}, nil
		}

		res2, err := tx.Run(ctx, `MATCH (a:AssertionRecord {id: $id}) SET a.valid_to = $valid_to`, map[string]any{
			"id": assertionID, "valid_to": validTo.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		if err := consumeOnly(ctx, res2); err != nil {
			return nil, err
		}
		return closeCheck{found: true, closed: false}, nil
	})
	if err != nil {
		return storeErr("close assertion", err)
	}
	check := result.(closeCheck)
	if !check.found {
		return apierr.New(apierr.CategoryNotFound, "assertion not found", nil).WithDetail("assertion_id", assertionID)
	}
	if check.closed {
		return apierr.New(apierr.CategoryConflict, "assertion is already closed", nil).WithDetail("assertion_id", assertionID)
	}
	return nil
}

// OpenAssertionsForKey returns the currently-open assertions for an
// assertion key in a scenario. The store has no reliable "valid_to IS
// NULL" filter across graph backends, so the Cypher fetches every
// assertion for the key and valid_to is filtered here in Go.
func (g *Gateway) OpenAssertionsForKey(ctx context.Context, workspaceID, assertionKey, scenarioID string) ([]*assertion.AssertionRecord, error) {
	all, err := g.assertionsForKey(ctx, workspaceID, assertionKey, scenarioID)
	if err != nil {
		return nil, err
	}
	out := make([]*assertion.AssertionRecord, 0, len(all))
	for _, a := range all {
		if a.IsOpen() {
			out = append(out, a)
		}
	}
	return out, nil
}

// AllAssertionsForKey returns every assertion (open and closed) for a key,
// e.g. for the "all claims" view over an entity's history.
func (g *Gateway) AllAssertionsForKey(ctx context.Context, workspaceID, assertionKey, scenarioID string) ([]*assertion.AssertionRecord, error) {
	return g.assertionsForKey(ctx, workspaceID, assertionKey, scenarioID)
}

func (g *Gateway) assertionsForKey(ctx context.Context, workspaceID, assertionKey, scenarioID string) ([]*assertion.AssertionRecord, error) {
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:AssertionRecord {workspace_id: $workspace_id, assertion_key: $assertion_key, scenario_id: $scenario_id})
RETURN a
`, map[string]any{
			"workspace_id":  workspaceID,
			"assertion_key": assertionKey,
			"scenario_id":   scenarioID,
		})
		if err != nil {
			return nil, err
		}
		return collectAssertions(ctx, res)
	})
	if err != nil {
		return nil, storeErr("assertions for key", err)
	}
	return result.([]*assertion.AssertionRecord), nil
}

// OpenAssertionsForEntity walks ASSERTED_REL both directions from an
// entity and returns the open assertions touching it, used by the entity
// detail view.
func (g *Gateway) OpenAssertionsForEntity(ctx context.Context, workspaceID, entityID string) ([]*assertion.AssertionRecord, error) {
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {id: $entity_id})-[:ASSERTED_REL]-(a:AssertionRecord {workspace_id: $workspace_id})
RETURN DISTINCT a
`, map[string]any{"entity_id": entityID, "workspace_id": workspaceID})
		if err != nil {
			return nil, err
		}
		return collectAssertions(ctx, res)
	})
	if err != nil {
		return nil, storeErr("assertions for entity", err)
	}
	all := result.([]*assertion.AssertionRecord)
	out := make([]*assertion.AssertionRecord, 0, len(all))
	for _, a := range all {
		if a.IsOpen() {
			out = append(out, a)
		}
	}
	return out, nil
}

// OpenAssertionsBySource returns every currently-open assertion
// attributed to a source, across every import that has ever run it —
// the set the orchestrator's disappearance-detection step (C7 step 6)
// diffs the current import's candidate keys against.
func (g *Gateway) OpenAssertionsBySource(ctx context.Context, workspaceID, sourceID string) ([]*assertion.AssertionRecord, error) {
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:AssertionRecord {workspace_id: $workspace_id, source_id: $source_id})
RETURN a
`, map[string]any{"workspace_id": workspaceID, "source_id": sourceID})
		if err != nil {
			return nil, err
		}
		return collectAssertions(ctx, res)
	})
	if err != nil {
		return nil, storeErr("assertions by source", err)
	}
	all := result.([]*assertion.AssertionRecord)
	out := make([]*assertion.AssertionRecord, 0, len(all))
	for _, a := range all {
		if a.IsOpen() {
			out = append(out, a)
		}
	}
	return out, nil
}

func collectAssertions(ctx context.Context, res neo4j.ResultWithContext) ([]*assertion.AssertionRecord, error) {
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*assertion.AssertionRecord, 0, len(records))
	for _, rec := range records {
		node, ok := rec.Get("a")
		if !ok {
			continue
		}
		n, ok := node.(neo4j.Node)
		if !ok {
			continue
		}
		out = append(out, assertionFromProps(n.Props))
	}
	return out, nil
}

func assertionFromProps(props map[string]any) *assertion.AssertionRecord {
	a := &assertion.AssertionRecord{
		ID:                    asString(props["id"]),
		WorkspaceID:           asString(props["workspace_id"]),
		AssertionKey:          asString(props["assertion_key"]),
		RelationshipType:      asString(props["relationship_type"]),
		PropertyKey:           asString(props["property_key"]),
		RawHash:               asString(props["raw_hash"]),
		NormalizedHash:        asString(props["normalized_hash"]),
		SourceType:            assertion.SourceType(asString(props["source_type"])),
		SourceRef:             asString(props["source_ref"]),
		SourceID:              asString(props["source_id"]),
		ImportRunID:           asString(props["import_run_id"]),
		RecordedAt:            asTime(props["recorded_at"]),
		ValidFrom:             asTime(props["valid_from"]),
		ScenarioID:            asString(props["scenario_id"]),
		Confidence:            asFloat(props["confidence"]),
		Supersedes:            asString(props["supersedes"]),
		SubjectEntityID:       asString(props["subject_entity_id"]),
		ObjectEntityID:        asString(props["object_entity_id"]),
		ObjectPropertyValueID: asString(props["object_property_value_id"]),
	}
	if v, ok := props["valid_to"]; ok && v != nil {
		a.ValidTo = asTime(v)
	}
	return a
}

// --- PropertyValue ------------------------------------------------------

func (g *Gateway) InsertPropertyValue(ctx context.Context, pv *assertion.PropertyValue) error {
	session := g.write(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (pv:PropertyValue {id: $id})
SET pv.workspace_id = $workspace_id,
    pv.property_key = $property_key,
    pv.value = $value,
    pv.value_type = $value_type
`, map[string]any{
			"id":           pv.ID,
			"workspace_id": pv.WorkspaceID,
			"property_key": pv.PropertyKey,
			"value":        pv.Value,
			"value_type":   string(pv.ValueType),
		})
		if err != nil {
			return nil, err
		}
		return nil, consumeOnly(ctx, res)
	})
	if err != nil {
		return storeErr("insert property value", err)
	}
	return nil
}

// PropertyValuesByID dereferences a batch of PropertyValue ids, as needed
// whenever a query-side caller renders an AssertionRecord's
// ObjectPropertyValueID as an actual value.
func (g *Gateway) PropertyValuesByID(ctx context.Context, ids []string) (map[string]*assertion.PropertyValue, error) {
	out := make(map[string]*assertion.PropertyValue, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (pv:PropertyValue)
WHERE pv.id IN $ids
RETURN pv
`, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		values := make(map[string]*assertion.PropertyValue, len(records))
		for _, rec := range records {
			raw, ok := rec.Get("pv")
			if !ok {
				continue
			}
			node, ok := raw.(neo4j.Node)
			if !ok {
				continue
			}
			props := node.Props
			pv := &assertion.PropertyValue{
				ID:          asString(props["id"]),
				WorkspaceID: asString(props["workspace_id"]),
				PropertyKey: asString(props["property_key"]),
				Value:       asString(props["value"]),
				ValueType:   assertion.ValueType(asString(props["value_type"])),
			}
			values[pv.ID] = pv
		}
		return values, nil
	})
	if err != nil {
		return nil, storeErr("property values by id", err)
	}
	return result.(map[string]*assertion.PropertyValue), nil
}

// --- ChangeEvent ----------------------------------------------------------

// InsertChangeEvent writes the ChangeEvent vertex plus its CREATED_ASSERTION,
// CLOSED_ASSERTION, and TRIGGERED_BY edges in one write transaction.
func (g *Gateway) InsertChangeEvent(ctx context.Context, ce *assertion.ChangeEvent, triggerID string) error {
	session := g.write(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (c:ChangeEvent {id: $id})
SET c.workspace_id = $workspace_id,
    c.event_type = $event_type,
    c.ts = $ts,
    c.actor = $actor,
    c.description = $description,
    c.import_run_id = $import_run_id,
    c.stats_created = $stats_created,
    c.stats_closed = $stats_closed,
    c.stats_unchanged = $stats_unchanged
`, map[string]any{
			"id":              ce.ID,
			"workspace_id":    ce.WorkspaceID,
			"event_type":      string(ce.EventType),
			"ts":              ce.Timestamp.Format(time.RFC3339Nano),
			"actor":           ce.Actor,
			"description":     ce.Descr,
			"import_run_id":   ce.ImportRunID,
			"stats_created":   int64(ce.Stats.Created),
			"stats_closed":    int64(ce.Stats.Closed),
			"stats_unchanged": int64(ce.Stats.Unchanged),
		})
		if err != nil {
			return nil, err
		}
		if err := consumeOnly(ctx, res); err != nil {
			return nil, err
		}

		if len(ce.CreatedAssertionIDs) > 0 {
			res, err := tx.Run(ctx, `
MATCH (c:ChangeEvent {id: $id})
UNWIND $ids AS aid
MATCH (a:AssertionRecord {id: aid})
MERGE (c)-[:CREATED_ASSERTION]->(a)
`, map[string]any{"id": ce.ID, "ids": ce.CreatedAssertionIDs})
			if err != nil {
				return nil, err
			}
			if err := consumeOnly(ctx, res); err != nil {
				return nil, err
			}
		}

		if len(ce.ClosedAssertionIDs) > 0 {
			res, err := tx.Run(ctx, `
MATCH (c:ChangeEvent {id: $id})
UNWIND $ids AS aid
MATCH (a:AssertionRecord {id: aid})
MERGE (c)-[:CLOSED_ASSERTION]->(a)
`, map[string]any{"id": ce.ID, "ids": ce.ClosedAssertionIDs})
			if err != nil {
				return nil, err
			}
			if err := consumeOnly(ctx, res); err != nil {
				return nil, err
			}
		}

		if triggerID != "" {
			res, err := tx.Run(ctx, `
MATCH (c:ChangeEvent {id: $id})
MATCH (t:ImportRun {id: $trigger_id})
MERGE (c)-[:TRIGGERED_BY]->(t)
`, map[string]any{"id": ce.ID, "trigger_id": triggerID})
			if err != nil {
				return nil, err
			}
			return nil, consumeOnly(ctx, res)
		}
		return nil, nil
	})
	if err != nil {
		return storeErr("insert change event", err)
	}
	return nil
}

// ChangeEventByImportRun returns the ChangeEvent triggered by an import
// run together with the IDs of the assertions it created and closed, for
// the diff view. Returns nil if the run never produced one.
func (g *Gateway) ChangeEventByImportRun(ctx context.Context, importRunID string) (*assertion.ChangeEvent, error) {
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:ChangeEvent {import_run_id: $import_run_id})
OPTIONAL MATCH (c)-[:CREATED_ASSERTION]->(created:AssertionRecord)
OPTIONAL MATCH (c)-[:CLOSED_ASSERTION]->(closed:AssertionRecord)
RETURN c, collect(DISTINCT created.id) AS created_ids, collect(DISTINCT closed.id) AS closed_ids
`, map[string]any{"import_run_id": importRunID})
		if err != nil {
			return nil, err
		}
		return collectOne(ctx, res, func(rec neo4j.Record) any {
			node, ok := rec.Get("c")
			if !ok {
				return nil
			}
			n, ok := node.(neo4j.Node)
			if !ok {
				return nil
			}
			ce := &assertion.ChangeEvent{
				ID:          asString(n.Props["id"]),
				WorkspaceID: asString(n.Props["workspace_id"]),
				EventType:   assertion.EventType(asString(n.Props["event_type"])),
				Timestamp:   asTime(n.Props["ts"]),
				Actor:       asString(n.Props["actor"]),
				Descr:       asString(n.Props["description"]),
				ImportRunID: asString(n.Props["import_run_id"]),
				Stats: assertion.ChangeStats{
					Created:   int(asFloat(n.Props["stats_created"])),
					Closed:    int(asFloat(n.Props["stats_closed"])),
					Unchanged: int(asFloat(n.Props["stats_unchanged"])),
				},
			}
			if ids, ok := rec.Get("created_ids"); ok {
				ce.CreatedAssertionIDs = stringSlice(ids)
			}
			if ids, ok := rec.Get("closed_ids"); ok {
				ce.ClosedAssertionIDs = stringSlice(ids)
			}
			return ce
		})
	})
	if err != nil {
		return nil, storeErr("change event by import run", err)
	}
	if result == nil {
		return nil, nil
	}
	return result.(*assertion.ChangeEvent), nil
}

// AssertionsByIDs dereferences a set of assertion IDs, for assembling a
// diff view from a ChangeEvent's created/closed ID lists.
func (g *Gateway) AssertionsByIDs(ctx context.Context, ids []string) ([]*assertion.AssertionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:AssertionRecord)
WHERE a.id IN $ids
RETURN a
`, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		return collectAssertions(ctx, res)
	})
	if err != nil {
		return nil, storeErr("assertions by ids", err)
	}
	return result.([]*assertion.AssertionRecord), nil
}

// stringSlice converts a Cypher collect() result (an []any of strings,
// with possible empty-string entries from unmatched OPTIONAL MATCHes)
// into a clean []string.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := asString(item)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// --- ImportRun ------------------------------------------------------------

func (g *Gateway) InsertImportRun(ctx context.Context, ir *assertion.ImportRun) error {
	session := g.write(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (i:ImportRun {id: $id})
SET i.workspace_id = $workspace_id,
    i.spec_name = $spec_name,
    i.source_filename = $source_filename,
    i.started_at = $started_at,
    i.status = $status
`, map[string]any{
			"id":              ir.ID,
			"workspace_id":    ir.WorkspaceID,
			"spec_name":       ir.SpecName,
			"source_filename": ir.SourceFilename,
			"started_at":      ir.StartedAt.Format(time.RFC3339Nano),
			"status":          string(ir.Status),
		})
		if err != nil {
			return nil, err
		}
		return nil, consumeOnly(ctx, res)
	})
	if err != nil {
		return storeErr("insert import run", err)
	}
	return nil
}

func (g *Gateway) FinishImportRun(ctx context.Context, ir *assertion.ImportRun) error {
	session := g.write(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (i:ImportRun {id: $id})
SET i.finished_at = $finished_at,
    i.status = $status,
    i.stats_created = $stats_created,
    i.stats_closed = $stats_closed,
    i.stats_unchanged = $stats_unchanged,
    i.error_message = $error_message
`, map[string]any{
			"id":              ir.ID,
			"finished_at":     ir.FinishedAt.Format(time.RFC3339Nano),
			"status":          string(ir.Status),
			"stats_created":   int64(ir.Stats.Created),
			"stats_closed":    int64(ir.Stats.Closed),
			"stats_unchanged": int64(ir.Stats.Unchanged),
			"error_message":   ir.ErrorMessage,
		})
		if err != nil {
			return nil, err
		}
		return nil, consumeOnly(ctx, res)
	})
	if err != nil {
		return storeErr("finish import run", err)
	}
	return nil
}

func (g *Gateway) GetImportRun(ctx context.Context, workspaceID, importRunID string) (*assertion.ImportRun, error) {
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (i:ImportRun {id: $id, workspace_id: $workspace_id})
RETURN i
LIMIT 1
`, map[string]any{"id": importRunID, "workspace_id": workspaceID})
		if err != nil {
			return nil, err
		}
		return collectOne(ctx, res, func(rec neo4j.Record) any {
			node, _ := rec.Get("i")
			n, ok := node.(neo4j.Node)
			if !ok {
				return nil
			}
			return importRunFromProps(n.Props)
		})
	})
	if err != nil {
		return nil, storeErr("get import run", err)
	}
	if result == nil {
		return nil, nil
	}
	return result.(*assertion.ImportRun), nil
}

func (g *Gateway) ListImportRuns(ctx context.Context, workspaceID string, limit int) ([]*assertion.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (i:ImportRun {workspace_id: $workspace_id})
RETURN i
ORDER BY i.started_at DESC
LIMIT $limit
`, map[string]any{"workspace_id": workspaceID, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*assertion.ImportRun, 0, len(records))
		for _, rec := range records {
			node, ok := rec.Get("i")
			if !ok {
				continue
			}
			n, ok := node.(neo4j.Node)
			if !ok {
				continue
			}
			out = append(out, importRunFromProps(n.Props))
		}
		return out, nil
	})
	if err != nil {
		return nil, storeErr("list import runs", err)
	}
	return result.([]*assertion.ImportRun), nil
}

func importRunFromProps(props map[string]any) *assertion.ImportRun {
	ir := &assertion.ImportRun{
		ID:              asString(props["id"]),
		WorkspaceID:     asString(props["workspace_id"]),
		SpecName:        asString(props["spec_name"]),
		SourceFilename:  asString(props["source_filename"]),
		StartedAt:       asTime(props["started_at"]),
		Status:          assertion.ImportStatus(asString(props["status"])),
		ErrorMessage:    asString(props["error_message"]),
		Stats: assertion.ChangeStats{
			Created:   int(asFloat(props["stats_created"])),
			Closed:    int(asFloat(props["stats_closed"])),
			Unchanged: int(asFloat(props["stats_unchanged"])),
		},
	}
	if v, ok := props["finished_at"]; ok && v != nil {
		ir.FinishedAt = asTime(v)
	}
	return ir
}

// --- Source -----------------------------------------------------------

func (g *Gateway) UpsertSource(ctx context.Context, s *assertion.Source) error {
	session := g.write(ctx)
	defer session.Close(ctx)

	authorityRank := s.AuthorityRank
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (s:Source {workspace_id: $workspace_id, source_name: $source_name})
SET s.id = coalesce(s.id, $id),
    s.source_type = $source_type,
    s.authority_rank = $authority_rank,
    s.authority_domains = $authority_domains
`, map[string]any{
			"workspace_id":      s.WorkspaceID,
			"source_name":       s.SourceName,
			"id":                s.ID,
			"source_type":       string(s.SourceType),
			"authority_rank":    int64(authorityRank),
			"authority_domains": s.AuthorityDomains,
		})
		if err != nil {
			return nil, err
		}
		return nil, consumeOnly(ctx, res)
	})
	if err != nil {
		return storeErr("upsert source", err)
	}
	return nil
}

func (g *Gateway) ListSources(ctx context.Context, workspaceID string) ([]*assertion.Source, error) {
	session := g.read(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Source {workspace_id: $workspace_id})
RETURN s
`, map[string]any{"workspace_id": workspaceID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*assertion.Source, 0, len(records))
		for _, rec := range records {
			node, ok := rec.Get("s")
			if !ok {
				continue
			}
			n, ok := node.(neo4j.Node)
			if !ok {
				continue
			}
			out = append(out, sourceFromProps(n.Props))
		}
		return out, nil
	})
	if err != nil {
		return nil, storeErr("list sources", err)
	}
	return result.([]*assertion.Source), nil
}

func sourceFromProps(props map[string]any) *assertion.Source {
	s := &assertion.Source{
		ID:            asString(props["id"]),
		WorkspaceID:   asString(props["workspace_id"]),
		SourceName:    asString(props["source_name"]),
		SourceType:    assertion.SourceType(asString(props["source_type"])),
		AuthorityRank: assertion.NoAuthorityRank,
	}
	if v, ok := props["authority_rank"]; ok && v != nil {
		s.AuthorityRank = int(asFloat(v))
	}
	if v, ok := props["authority_domains"].([]any); ok {
		for _, d := range v {
			s.AuthorityDomains = append(s.AuthorityDomains, asString(d))
		}
	} else if v, ok := props["authority_domains"].([]string); ok {
		s.AuthorityDomains = v
	}
	return s
}

// --- decoding helpers ---------------------------------------------------

// collectOne runs decode over the first record only, unifying the
// store's "no rows" with Go's nil rather than distinguishing them at
// every call site.
func collectOne(ctx context.Context, res neo4j.ResultWithContext, decode func(neo4j.Record) any) (any, error) {
	if !res.Next(ctx) {
		return nil, res.Err()
	}
	return decode(*res.Record()), nil
}

func consumeOnly(ctx context.Context, res neo4j.ResultWithContext) error {
	_, err := res.Consume(ctx)
	return err
}

// asString unifies the store's native null with Go's zero value for a
// missing or unset property, rather than letting callers juggle `any`.
func asString(v any) string {
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

// asTime decodes the store's native temporal type or, for backends that
// round-trip timestamps as RFC3339 strings, parses the string form.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case neo4j.Date:
		return t.Time().UTC()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed.UTC()
	default:
		return time.Time{}
	}
}
