package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

const validSchemaYAML = `
workspace: acme
version: "1"
entity_types:
  Location:
    primary_key: loc_id
    properties:
      loc_id: {type: string, required: true}
      region: {type: string}
  Connection:
    primary_key: conn_id
    properties:
      conn_id: {type: string, required: true}
      speed: {type: number}
relationship_types:
  FEEDS:
    from: Connection
    to: Location
`

func writeSchemaFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write schema fixture: %v", err)
	}
}

func TestRegistryLoadFromDiskAndValidate(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "acme.yaml", validSchemaYAML)

	reg := New(dir)
	schema, err := reg.Get("acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !schema.HasEntityType("Location") {
		t.Fatalf("expected Location entity type")
	}
	if !schema.HasRelationshipType("FEEDS") {
		t.Fatalf("expected FEEDS relationship type")
	}
}

func TestRegistryGetUnknownWorkspaceNotFound(t *testing.T) {
	dir := t.TempDir()
	reg := New(dir)
	if _, err := reg.Get("missing"); err == nil {
		t.Fatalf("expected not-found error")
	}
}

func TestDomainSchemaValidateCatchesBadPrimaryKey(t *testing.T) {
	schema := &DomainSchema{
		Workspace: "acme",
		Version:   "1",
		EntityTypes: map[string]EntityTypeDef{
			"Location": {
				PrimaryKey: "loc_id",
				Properties: map[string]PropertyDef{
					"region": {Type: "string"},
				},
			},
		},
	}
	errs := schema.Validate()
	if len(errs) == 0 {
		t.Fatalf("expected validation error for missing primary_key property")
	}
}

func TestDomainSchemaValidateCatchesUnknownRelationshipEndpoint(t *testing.T) {
	schema := &DomainSchema{
		Workspace: "acme",
		Version:   "1",
		EntityTypes: map[string]EntityTypeDef{
			"Location": {PrimaryKey: "loc_id", Properties: map[string]PropertyDef{"loc_id": {Type: "string"}}},
		},
		RelationshipTypes: map[string]RelationshipTypeDef{
			"FEEDS": {FromType: "Connection", ToType: "Location"},
		},
	}
	errs := schema.Validate()
	if len(errs) == 0 {
		t.Fatalf("expected validation error for unknown from_type 'Connection'")
	}
}

func TestRegistryListFindsDiskAndRegisteredWorkspaces(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "acme.yaml", validSchemaYAML)

	reg := New(dir)
	if err := reg.Register(&DomainSchema{
		Workspace: "other",
		Version:   "1",
		EntityTypes: map[string]EntityTypeDef{
			"Thing": {PrimaryKey: "id", Properties: map[string]PropertyDef{"id": {Type: "string"}}},
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	workspaces := reg.List()
	found := map[string]bool{}
	for _, w := range workspaces {
		found[w] = true
	}
	if !found["acme"] || !found["other"] {
		t.Fatalf("want both acme and other listed, got %v", workspaces)
	}
}
