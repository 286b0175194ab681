package specloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
)

// Loader loads ingestion specs from {dir}/{spec_name}.yaml, caching parsed
// specs and invalidating entries whose backing file's mtime has changed
// (spec.md §5's read-mostly spec cache).
type Loader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	spec    *IngestionSpec
	modTime time.Time
}

// New builds a Loader rooted at dir.
func New(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]cacheEntry)}
}

// Load returns the parsed spec named specName, reading
// {dir}/{specName}.yaml. A cached copy is reused unless the file's mtime
// has advanced.
func (l *Loader) Load(specName string) (*IngestionSpec, error) {
	path := l.pathFor(specName)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.New(apierr.CategoryNotFound, fmt.Sprintf("ingestion spec %q not found", specName), nil)
		}
		return nil, apierr.New(apierr.CategoryStoreError, "stat ingestion spec file", err)
	}

	l.mu.RLock()
	entry, ok := l.cache[specName]
	l.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.spec, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.New(apierr.CategoryStoreError, "read ingestion spec file", err)
	}

	var spec IngestionSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, apierr.New(apierr.CategoryValidationError, fmt.Sprintf("invalid ingestion spec YAML in %q", path), err)
	}
	applyDefaults(&spec)

	l.mu.Lock()
	l.cache[specName] = cacheEntry{spec: &spec, modTime: info.ModTime()}
	l.mu.Unlock()

	return &spec, nil
}

// Reload drops the cached entry for specName, forcing the next Load to
// re-read the file even if mtime is unchanged.
func (l *Loader) Reload(specName string) {
	l.mu.Lock()
	delete(l.cache, specName)
	l.mu.Unlock()
}

// List returns the available spec names (file stem, extension stripped)
// under the loader's directory, excluding names prefixed with "_".
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierr.New(apierr.CategoryStoreError, "list ingestion spec directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		if strings.HasPrefix(stem, "_") {
			continue
		}
		names = append(names, stem)
	}
	return names, nil
}

func (l *Loader) pathFor(specName string) string {
	return filepath.Join(l.dir, specName+".yaml")
}

// applyDefaults fills in the spec's hash/normalization defaults the way
// the original's Pydantic model defaults did, except where spec.md
// requires hash settings to be fully specified: defaults here seed a
// template a caller may still override, they never silently substitute
// for a missing raw_hash_serialization.delimiter/null_representation at
// validation time (see Validate).
func applyDefaults(spec *IngestionSpec) {
	if spec.RawHashSerialization.CellOrder == "" {
		spec.RawHashSerialization.CellOrder = "column_order"
	}
	if spec.SourceType == "" {
		spec.SourceType = "spreadsheet"
	}
	if spec.ChangeDetection.Mode == "" {
		spec.ChangeDetection.Mode = "normalized"
	}
}
