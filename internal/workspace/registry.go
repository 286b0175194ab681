package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
)

// Registry loads, validates, and caches domain schemas per workspace. It
// is the single point C7 consults to reject spec references the schema
// does not declare.
type Registry struct {
	dir string

	mu      sync.RWMutex
	schemas map[string]*DomainSchema
}

// New builds a Registry rooted at dir (the schemas directory).
func New(dir string) *Registry {
	return &Registry{dir: dir, schemas: make(map[string]*DomainSchema)}
}

// LoadFromYAML parses and validates a domain schema document without
// registering it — used by POST /workspaces to validate before commit.
func (r *Registry) LoadFromYAML(content []byte) (*DomainSchema, error) {
	var schema DomainSchema
	if err := yaml.Unmarshal(content, &schema); err != nil {
		return nil, apierr.New(apierr.CategoryValidationError, "invalid schema YAML", err)
	}
	if schema.Workspace == "" {
		return nil, apierr.New(apierr.CategoryValidationError, "schema workspace is required", nil)
	}
	return &schema, nil
}

// Validate returns the schema's structural errors (empty = valid).
func (r *Registry) Validate(schema *DomainSchema) []string {
	return schema.Validate()
}

// Register caches a validated schema in memory, keyed by workspace id.
// Returns a ValidationError if the schema fails integrity checks.
func (r *Registry) Register(schema *DomainSchema) error {
	if errs := schema.Validate(); len(errs) > 0 {
		return apierr.New(apierr.CategoryValidationError, fmt.Sprintf("schema validation errors: %v", errs), nil)
	}
	r.mu.Lock()
	r.schemas[schema.Workspace] = schema
	r.mu.Unlock()
	return nil
}

// Get returns the cached schema for workspaceID, loading it from disk on
// first access.
func (r *Registry) Get(workspaceID string) (*DomainSchema, error) {
	r.mu.RLock()
	schema, ok := r.schemas[workspaceID]
	r.mu.RUnlock()
	if ok {
		return schema, nil
	}
	return r.loadFromDisk(workspaceID)
}

// Reload forces the next Get for workspaceID to re-read from disk.
func (r *Registry) Reload(workspaceID string) {
	r.mu.Lock()
	delete(r.schemas, workspaceID)
	r.mu.Unlock()
}

// List returns every known workspace id: cached plus discoverable on disk.
func (r *Registry) List() []string {
	r.mu.RLock()
	seen := make(map[string]bool, len(r.schemas))
	out := make([]string, 0, len(r.schemas))
	for ws := range r.schemas {
		seen[ws] = true
		out = append(out, ws)
	}
	r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			continue
		}
		var probe struct {
			Workspace string `yaml:"workspace"`
		}
		if err := yaml.Unmarshal(raw, &probe); err != nil || probe.Workspace == "" {
			continue
		}
		if !seen[probe.Workspace] {
			seen[probe.Workspace] = true
			out = append(out, probe.Workspace)
		}
	}
	return out
}

func (r *Registry) loadFromDisk(workspaceID string) (*DomainSchema, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, apierr.New(apierr.CategoryNotFound, fmt.Sprintf("workspace %q not found", workspaceID), err)
	}

	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var schema DomainSchema
		if err := yaml.Unmarshal(raw, &schema); err != nil {
			continue
		}
		if schema.Workspace != workspaceID {
			continue
		}
		if errs := schema.Validate(); len(errs) > 0 {
			return nil, apierr.New(apierr.CategoryInternalError, fmt.Sprintf("schema validation errors for %q: %v", workspaceID, errs), nil)
		}
		r.mu.Lock()
		r.schemas[workspaceID] = &schema
		r.mu.Unlock()
		return &schema, nil
	}

	return nil, apierr.New(apierr.CategoryNotFound, fmt.Sprintf("no schema file found for workspace %q", workspaceID), nil)
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
