// Package idgen mints time-sortable globally unique identifiers for every
// vertex kind in the evidence graph.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// Common prefixes. New keeps the prefix in the id it returns, and that
// prefixed id is what gets stored; Bare strips a known prefix.
const (
	PrefixEntity      = "entity_"
	PrefixAssertion   = "asrt_"
	PrefixChangeEvent = "evt_"
	PrefixImportRun   = "imp_"
	PrefixProperty    = "pv_"
	PrefixSource      = "src_"
)

// New mints a 32-hex-character, lexicographically time-sortable id with
// an optional human-readable prefix. Two calls within the same
// millisecond still yield distinct, correctly ordered ids because
// uuid.NewV7 fills the 12 bits after its 48-bit millisecond timestamp
// with a sub-millisecond clock sequence that it keeps increasing
// within the process.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global entropy source errors;
		// fall back to a random v4 rather than panic on id generation.
		id = uuid.New()
	}
	hex := strings.ReplaceAll(id.String(), "-", "")
	if prefix == "" {
		return hex
	}
	return prefix + hex
}

// Bare strips any of the known prefixes, returning the fixed-width hex id.
// Unknown prefixes (or none) are returned unchanged.
func Bare(id string) string {
	for _, p := range []string{PrefixEntity, PrefixAssertion, PrefixChangeEvent, PrefixImportRun, PrefixProperty, PrefixSource} {
		if strings.HasPrefix(id, p) {
			return strings.TrimPrefix(id, p)
		}
	}
	return id
}
