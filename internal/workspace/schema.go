// Package workspace is the per-workspace domain schema registry (C9): it
// loads, validates, and caches the entity/relationship/property
// declarations a spec's types are checked against.
package workspace

import "regexp"

// ValidPropertyTypes enumerates the property value types a domain schema
// may declare.
var ValidPropertyTypes = map[string]bool{
	"string": true, "number": true, "date": true, "boolean": true, "json": true,
}

// PropertyDef declares one property of an entity or relationship type.
type PropertyDef struct {
	Type        string   `yaml:"type"`
	Required    bool     `yaml:"required"`
	Pattern     string   `yaml:"pattern,omitempty"`
	Enum        []string `yaml:"enum,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// EntityTypeDef declares one entity type.
type EntityTypeDef struct {
	PrimaryKey  string                 `yaml:"primary_key"`
	Properties  map[string]PropertyDef `yaml:"properties"`
	Description string                 `yaml:"description,omitempty"`
}

// RelationshipTypeDef declares one relationship type.
type RelationshipTypeDef struct {
	FromType    string                 `yaml:"from"`
	ToType      string                 `yaml:"to"`
	Properties  map[string]PropertyDef `yaml:"properties,omitempty"`
	Description string                 `yaml:"description,omitempty"`
}

// AliasConfig declares that one entity type is an alias of another, so
// two sheets naming the same physical concept differently resolve to one
// entity stream (supplemental to spec.md, grounded on schema_registry.py).
type AliasConfig struct {
	EntityType      string `yaml:"entity_type"`
	AliasEntityType string `yaml:"alias_entity_type"`
	AliasKey        string `yaml:"alias_key"`
}

// DomainSchema is a workspace's entity/relationship/property declarations.
type DomainSchema struct {
	Workspace           string                          `yaml:"workspace"`
	Version             string                          `yaml:"version"`
	DisplayName         string                          `yaml:"display_name,omitempty"`
	EntityTypes         map[string]EntityTypeDef         `yaml:"entity_types"`
	RelationshipTypes   map[string]RelationshipTypeDef   `yaml:"relationship_types"`
	AliasConfig         *AliasConfig                    `yaml:"alias_config,omitempty"`
}

// HasEntityType satisfies specloader.SchemaLookup.
func (s *DomainSchema) HasEntityType(entityType string) bool {
	if s == nil {
		return false
	}
	_, ok := s.EntityTypes[entityType]
	return ok
}

// HasRelationshipType satisfies specloader.SchemaLookup.
func (s *DomainSchema) HasRelationshipType(relationshipType string) bool {
	if s == nil {
		return false
	}
	_, ok := s.RelationshipTypes[relationshipType]
	return ok
}

// Validate checks schema integrity: every entity's primary_key must be a
// declared property; every property type must be valid; every regex
// pattern must compile; every relationship's from/to type must exist.
func (s *DomainSchema) Validate() []string {
	var errs []string

	for typeName, def := range s.EntityTypes {
		if _, ok := def.Properties[def.PrimaryKey]; !ok {
			errs = append(errs, "entity '"+typeName+"': primary_key '"+def.PrimaryKey+"' not found in properties")
		}
		for propName, prop := range def.Properties {
			if !ValidPropertyTypes[prop.Type] {
				errs = append(errs, "entity '"+typeName+"'."+propName+": invalid type '"+prop.Type+"'")
			}
			if prop.Pattern != "" {
				if _, err := regexp.Compile(prop.Pattern); err != nil {
					errs = append(errs, "entity '"+typeName+"'."+propName+": invalid regex pattern '"+prop.Pattern+"': "+err.Error())
				}
			}
		}
	}

	for relName, rel := range s.RelationshipTypes {
		if !s.HasEntityType(rel.FromType) {
			errs = append(errs, "relationship '"+relName+"': from type '"+rel.FromType+"' not found in entity_types")
		}
		if !s.HasEntityType(rel.ToType) {
			errs = append(errs, "relationship '"+relName+"': to type '"+rel.ToType+"' not found in entity_types")
		}
		for propName, prop := range rel.Properties {
			if !ValidPropertyTypes[prop.Type] {
				errs = append(errs, "relationship '"+relName+"'."+propName+": invalid type '"+prop.Type+"'")
			}
		}
	}

	return errs
}
