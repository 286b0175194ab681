// Package rowparser reads a spreadsheet according to an IngestionSpec and
// emits staged rows: entity candidates, relationship candidates, and the
// row's provenance, ready for hashing and ingestion (C4).
package rowparser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yungbote/neurobridge-backend/internal/ingest/specloader"
	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
)

// EntityCandidate is one entity extracted from a row.
type EntityCandidate struct {
	Alias       string
	EntityType  string
	PrimaryKey  string
	DisplayName string
	Properties  map[string]any
	SourceRef   string
}

// RelationshipCandidate is one relationship extracted from a row.
type RelationshipCandidate struct {
	RelationshipType string
	FromEntityType   string
	FromPrimaryKey   string
	ToEntityType     string
	ToPrimaryKey     string
	Properties       map[string]any
	SourceRef        string
}

// StagedRow is one parsed spreadsheet row ready for change detection.
type StagedRow struct {
	SheetName     string
	RowIndex      int // 1-based spreadsheet row number, the same one SourceRef carries
	RawValues     []any
	Header        map[string]int
	Entities      []EntityCandidate
	Relationships []RelationshipCandidate
}

// ParseWorkbook reads every sheet declared by spec.Sheets, reading
// computed cell values (not formulas), and returns the staged rows in
// sheet-then-row order.
func ParseWorkbook(path string, spec *specloader.IngestionSpec) ([]StagedRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apierr.New(apierr.CategoryValidationError, "open spreadsheet", err)
	}
	defer f.Close()

	var all []StagedRow
	for _, sheetSpec := range spec.Sheets {
		sheetName, ok := resolveSheetName(f, sheetSpec)
		if !ok {
			continue
		}
		rows, err := parseSheet(f, sheetName, sheetSpec)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

func resolveSheetName(f *excelize.File, sheetSpec specloader.SheetSpec) (string, bool) {
	names := f.GetSheetList()
	if sheetSpec.SheetName != "" {
		for _, n := range names {
			if n == sheetSpec.SheetName {
				return n, true
			}
		}
		return "", false
	}
	if sheetSpec.SheetIndex != nil {
		idx := *sheetSpec.SheetIndex
		if idx < 0 || idx >= len(names) {
			return "", false
		}
		return names[idx], true
	}
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

func parseSheet(f *excelize.File, sheetName string, sheetSpec specloader.SheetSpec) ([]StagedRow, error) {
	// GetRows gives display strings and, crucially, the sheet's shape
	// (row/column counts, header text) without decoding every cell;
	// each data row's actual values are re-read cell-by-cell below so
	// numbers, dates, and booleans survive as typed Go values instead
	// of display-formatted strings (spec.md §6).
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, apierr.New(apierr.CategoryValidationError, fmt.Sprintf("read sheet %q", sheetName), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	headerRowIdx := sheetSpec.HeaderRow
	if headerRowIdx >= len(rows) {
		return nil, nil
	}
	header := buildHeaderMap(rows[headerRowIdx])

	skip := make(map[int]bool, len(sheetSpec.SkipRows)+1)
	for _, r := range sheetSpec.SkipRows {
		skip[r] = true
	}
	skip[headerRowIdx] = true

	var staged []StagedRow
	for rowIdx, row := range rows {
		if skip[rowIdx] {
			continue
		}
		values := typedRowValues(f, sheetName, rowIdx, len(row))
		if allNil(values) {
			continue
		}
		rowNum := rowIdx + 1

		entitiesByAlias := make(map[string]EntityCandidate)
		var entityList []EntityCandidate
		for alias, mapping := range sheetSpec.Entities {
			candidate, ok := extractEntity(alias, mapping, values, header, sheetName, rowNum)
			if !ok {
				continue
			}
			entitiesByAlias[alias] = candidate
			entityList = append(entityList, candidate)
		}
		if len(entityList) == 0 {
			continue
		}

		var relList []RelationshipCandidate
		for _, rm := range sheetSpec.Relationships {
			rel, ok := extractRelationship(rm, entitiesByAlias, values, header, sheetName, rowNum)
			if !ok {
				continue
			}
			relList = append(relList, rel)
		}

		staged = append(staged, StagedRow{
			SheetName:     sheetName,
			RowIndex:      rowNum,
			RawValues:     values,
			Header:        header,
			Entities:      entityList,
			Relationships: relList,
		})
	}

	return staged, nil
}

func buildHeaderMap(headerRow []string) map[string]int {
	m := make(map[string]int, len(headerRow))
	for i, h := range headerRow {
		name := strings.TrimSpace(h)
		if name != "" {
			m[name] = i
		}
	}
	return m
}

// typedRowValues re-reads one row cell-by-cell so numbers, dates, and
// booleans come back as float64/time.Time/bool rather than the
// display-formatted strings f.GetRows returns.
func typedRowValues(f *excelize.File, sheetName string, rowIdx, numCols int) []any {
	out := make([]any, numCols)
	for col := 0; col < numCols; col++ {
		axis, err := excelize.CoordinatesToCellName(col+1, rowIdx+1)
		if err != nil {
			continue
		}
		out[col] = typedCellValue(f, sheetName, axis)
	}
	return out
}

// typedCellValue classifies one cell the way openpyxl's cell.value does
// for the original ingestion engine: a stored number comes back as a
// Go number, a date-formatted number comes back as a time.Time, a
// boolean cell comes back as bool, everything else (shared/inline
// strings, formula results) comes back as the display string, and an
// empty cell comes back as nil.
func typedCellValue(f *excelize.File, sheetName, axis string) any {
	cellType, err := f.GetCellType(sheetName, axis)
	if err != nil {
		cellType = excelize.CellTypeUnset
	}

	switch cellType {
	case excelize.CellTypeNumber:
		raw, err := f.GetCellValue(sheetName, axis, excelize.Options{RawCellValue: true})
		if err != nil || raw == "" {
			return nil
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		if isDateFormattedCell(f, sheetName, axis) {
			if t, err := excelize.ExcelDateToTime(n, false); err == nil {
				return t
			}
		}
		return n
	case excelize.CellTypeBool:
		raw, err := f.GetCellValue(sheetName, axis, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil
		}
		return raw == "1" || strings.EqualFold(raw, "TRUE")
	default:
		display, err := f.GetCellValue(sheetName, axis)
		if err != nil || display == "" {
			return nil
		}
		return display
	}
}

// isDateFormattedCell reports whether a numeric cell's style applies a
// date/time number format, mirroring openpyxl's builtin-date-format
// detection: builtin format ids 14-22 are the OOXML date/time formats,
// and a custom format string containing date/time tokens is treated
// the same way.
func isDateFormattedCell(f *excelize.File, sheetName, axis string) bool {
	styleID, err := f.GetCellStyle(sheetName, axis)
	if err != nil {
		return false
	}
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if style.NumFmt >= 14 && style.NumFmt <= 22 {
		return true
	}
	if style.CustomNumFmt == nil {
		return false
	}
	fmtStr := strings.ToLower(*style.CustomNumFmt)
	for _, token := range []string{"y", "m", "d", "h", "s"} {
		if strings.Contains(fmtStr, token) {
			return true
		}
	}
	return false
}

func allNil(values []any) bool {
	for _, v := range values {
		if s, ok := v.(string); ok {
			if strings.TrimSpace(s) != "" {
				return false
			}
			continue
		}
		if v != nil {
			return false
		}
	}
	return true
}

func cellValue(values []any, header map[string]int, column string) any {
	idx, ok := header[column]
	if !ok || idx >= len(values) {
		return nil
	}
	return values[idx]
}

// applyTransform mirrors excel_parser.py's _apply_transform: strip,
// lower, upper, int, float. A transform error leaves the original value
// in place rather than failing the row.
func applyTransform(value any, transform string) any {
	if value == nil || transform == "" {
		return value
	}
	switch transform {
	case "strip":
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	case "lower":
		return strings.ToLower(fmt.Sprintf("%v", value))
	case "upper":
		return strings.ToUpper(fmt.Sprintf("%v", value))
	case "int":
		if f, ok := value.(float64); ok {
			return int(f)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprintf("%v", value)), 64)
		if err != nil {
			return value
		}
		return int(f)
	case "float":
		if f, ok := value.(float64); ok {
			return f
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprintf("%v", value)), 64)
		if err != nil {
			return value
		}
		return f
	default:
		return value
	}
}

// coerceValueType enforces an explicit ColumnMapping.value_type
// declaration over whatever the cell's own storage type/format implied,
// for specs that know more about a column than the spreadsheet's
// formatting does (e.g. a "number" column stored as text).
func coerceValueType(value any, valueType string) any {
	if value == nil || valueType == "" {
		return value
	}
	switch valueType {
	case "number":
		switch v := value.(type) {
		case float64, int:
			return value
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	case "boolean":
		switch v := value.(type) {
		case bool:
			return value
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%v", value)
		}
	}
	return value
}

// cellDisplayString renders a typed cell value for places that need a
// string (display names, key templates) rather than fmt's verbose
// default for time.Time.
func cellDisplayString(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return fmt.Sprintf("%v", v)
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func extractEntity(alias string, mapping specloader.EntityMapping, values []any, header map[string]int, sheetName string, rowIdx int) (EntityCandidate, bool) {
	rowData := make(map[string]any, len(mapping.Properties))
	properties := make(map[string]any, len(mapping.Properties))
	for _, prop := range mapping.Properties {
		v := cellValue(values, header, prop.SourceColumn)
		if prop.Transform != "" {
			v = applyTransform(v, prop.Transform)
		}
		v = coerceValueType(v, prop.ValueType)
		rowData[prop.TargetProperty] = v
		properties[prop.TargetProperty] = v
	}

	for _, col := range mapping.KeyColumns {
		if isBlank(rowData[col]) {
			return EntityCandidate{}, false
		}
	}

	primaryKey, ok := resolveKeyTemplate(mapping.KeyTemplate, rowData)
	if !ok {
		return EntityCandidate{}, false
	}

	displayName := primaryKey
	keyColSet := make(map[string]bool, len(mapping.KeyColumns))
	for _, c := range mapping.KeyColumns {
		keyColSet[c] = true
	}
	for _, prop := range mapping.Properties {
		if keyColSet[prop.TargetProperty] {
			continue
		}
		if v := properties[prop.TargetProperty]; !isBlank(v) {
			displayName = cellDisplayString(v)
			break
		}
	}

	return EntityCandidate{
		Alias:       alias,
		EntityType:  mapping.EntityType,
		PrimaryKey:  primaryKey,
		DisplayName: displayName,
		Properties:  properties,
		SourceRef:   fmt.Sprintf("sheet:%s,row:%d", sheetName, rowIdx),
	}, true
}

// resolveKeyTemplate formats a Python-style "{col}" template against
// rowData. A placeholder whose value is present but blank fails the
// candidate rather than the row; a placeholder with no entry in rowData
// is kept literally.
func resolveKeyTemplate(template string, rowData map[string]any) (string, bool) {
	var b strings.Builder
	i := 0
	for i < len(template) {
		c := template[i]
		if c == '{' {
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", false
			}
			key := template[i+1 : i+end]
			val, ok := rowData[key]
			if ok && !isBlank(val) {
				b.WriteString(cellDisplayString(val))
			} else if ok {
				return "", false
			} else {
				// Literal content inside braces not found in rowData is
				// kept as-is; this supports constant segments some specs
				// embed in key_template.
				b.WriteString(template[i : i+end+1])
			}
			i += end + 1
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), true
}

func extractRelationship(rm specloader.RelationshipMapping, entitiesByAlias map[string]EntityCandidate, values []any, header map[string]int, sheetName string, rowIdx int) (RelationshipCandidate, bool) {
	from, ok := entitiesByAlias[rm.FromEntity]
	if !ok {
		return RelationshipCandidate{}, false
	}
	to, ok := entitiesByAlias[rm.ToEntity]
	if !ok {
		return RelationshipCandidate{}, false
	}

	var props map[string]any
	if len(rm.Properties) > 0 {
		props = make(map[string]any, len(rm.Properties))
		for _, p := range rm.Properties {
			v := cellValue(values, header, p.SourceColumn)
			if p.Transform != "" {
				v = applyTransform(v, p.Transform)
			}
			v = coerceValueType(v, p.ValueType)
			props[p.TargetProperty] = v
		}
	}

	return RelationshipCandidate{
		RelationshipType: rm.RelationshipType,
		FromEntityType:   from.EntityType,
		FromPrimaryKey:   from.PrimaryKey,
		ToEntityType:      to.EntityType,
		ToPrimaryKey:      to.PrimaryKey,
		Properties:        props,
		SourceRef:         fmt.Sprintf("sheet:%s,row:%d", sheetName, rowIdx),
	}, true
}
