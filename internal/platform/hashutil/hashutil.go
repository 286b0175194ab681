// Package hashutil implements canonical row serialization and the
// dual-hash (raw + normalized) change-detection digests, plus the
// assertion-key composers.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NumberFormat controls decimal formatting during normalization.
type NumberFormat struct {
	AsDisplayed  bool
	DecimalPlaces int
}

// DateFormat controls date formatting during normalization.
type DateFormat struct {
	AsDisplayed bool
}

// RawHashSerialization is the spec's raw_hash_serialization block.
type RawHashSerialization struct {
	CellOrder         []string // explicit column name order; empty means sheet column order
	Delimiter         string
	NullRepresentation string
	NumberFormat      NumberFormat
	DateFormat        DateFormat
	IncludeFormatting bool
}

// NormalizationRules is change_detection.normalization_rules.
type NormalizationRules struct {
	TrimWhitespace    bool
	CollapseWhitespace bool
	Lowercase         bool
	NullTokens        []string
	NumberDecimalPlaces int
	DateISO8601       bool
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CellString renders one cell value to its canonical string form per the
// raw_hash_serialization rules: null token when empty, lowercase literal
// booleans, time.Time as YYYY-MM-DD, and float64 per NumberFormat. The
// row parser hands over typed values rather than display strings, so
// displayed number/date formatting is not preserved, and
// DateFormat.AsDisplayed is not consulted.
func CellString(value any, cfg RawHashSerialization) string {
	if value == nil {
		return cfg.NullRepresentation
	}
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return cfg.NullRepresentation
		}
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case time.Time:
		return v.Format("2006-01-02")
	case float64:
		return formatNumber(v, cfg.NumberFormat.DecimalPlaces, cfg.NumberFormat.AsDisplayed)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatNumber(v float64, decimalPlaces int, asDisplayed bool) string {
	if asDisplayed || decimalPlaces <= 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', decimalPlaces, 64)
}

// SerializeRow selects cells by cell_order, renders each, and joins them
// with the delimiter. header must map column name to its row-value index
// when CellOrder is an explicit name list; when CellOrder is empty the
// row's natural column order (values, as given) is used.
func SerializeRow(values []any, header map[string]int, cfg RawHashSerialization) string {
	cells := orderedCells(values, header, cfg.CellOrder)
	rendered := make([]string, len(cells))
	for i, v := range cells {
		rendered[i] = CellString(v, cfg)
	}
	return strings.Join(rendered, cfg.Delimiter)
}

func orderedCells(values []any, header map[string]int, cellOrder []string) []any {
	if len(cellOrder) == 0 {
		return values
	}
	out := make([]any, len(cellOrder))
	for i, name := range cellOrder {
		if idx, ok := header[name]; ok && idx < len(values) {
			out[i] = values[idx]
		}
	}
	return out
}

// NormalizeCellString applies the normalization rules to one already
// rendered (canonical) cell string. A positive NumberDecimalPlaces
// reformats a numeric string to that many decimals; DateISO8601
// reformats an RFC 3339 timestamp as YYYY-MM-DD.
func NormalizeCellString(s string, rules NormalizationRules) string {
	for _, tok := range rules.NullTokens {
		if s == tok {
			return "null"
		}
	}
	if rules.TrimWhitespace {
		s = strings.TrimSpace(s)
	}
	if rules.CollapseWhitespace {
		s = whitespaceRun.ReplaceAllString(s, " ")
	}
	if rules.NumberDecimalPlaces > 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			s = strconv.FormatFloat(f, 'f', rules.NumberDecimalPlaces, 64)
		}
	}
	if rules.DateISO8601 {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			s = t.Format("2006-01-02")
		}
	}
	if rules.Lowercase {
		s = strings.ToLower(s)
	}
	return s
}

// SHA256Hex digests a byte sequence, returning the 64-hex-char digest.
func SHA256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// RawHash computes the raw_hash of a staged row's cells.
func RawHash(values []any, header map[string]int, cfg RawHashSerialization) string {
	return SHA256Hex(SerializeRow(values, header, cfg))
}

// NormalizedHash computes the normalized_hash: canonical serialization,
// per-cell normalization, then digest.
func NormalizedHash(values []any, header map[string]int, cfg RawHashSerialization, rules NormalizationRules) string {
	cells := orderedCells(values, header, cfg.CellOrder)
	rendered := make([]string, len(cells))
	for i, v := range cells {
		rendered[i] = NormalizeCellString(CellString(v, cfg), rules)
	}
	return SHA256Hex(strings.Join(rendered, cfg.Delimiter))
}

// PropertyAssertionKey composes the stable composite key for a property
// assertion: {workspace_id}:{entity_type}:{primary_key}:prop:{property_key}.
func PropertyAssertionKey(workspaceID, entityType, primaryKey, propertyKey string) string {
	return strings.Join([]string{workspaceID, entityType, primaryKey, "prop", propertyKey}, ":")
}

// RelationshipAssertionKey composes the stable composite key for a
// relationship assertion:
// {workspace_id}:{from_type}:{from_pk}:{relationship_type}:{to_type}:{to_pk}.
func RelationshipAssertionKey(workspaceID, fromType, fromPK, relationshipType, toType, toPK string) string {
	return strings.Join([]string{workspaceID, fromType, fromPK, relationshipType, toType, toPK}, ":")
}

// CandidateContentHash digests a single candidate assertion's own content
// (not the whole row), isolating per-assertion change detection from
// per-row noise when a row yields multiple assertions. A nil rules
// selects strict mode (raw string join); non-nil rules are applied per
// field (normalized mode).
func CandidateContentHash(fields []string, rules *NormalizationRules) string {
	parts := make([]string, len(fields))
	copy(parts, fields)
	if rules != nil {
		for i, f := range parts {
			parts[i] = NormalizeCellString(f, *rules)
		}
	}
	return SHA256Hex(strings.Join(parts, "\x1f"))
}
