package assertiongraph

import (
	"testing"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/domain/assertion"
)

func TestAsTimeParsesRFC3339String(t *testing.T) {
	got := asTime("2024-03-05T12:30:00Z")
	want := time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("want=%v got=%v", want, got)
	}
}

func TestAsTimeReturnsZeroOnGarbage(t *testing.T) {
	if got := asTime("not-a-time"); !got.IsZero() {
		t.Fatalf("want zero time, got=%v", got)
	}
	if got := asTime(nil); !got.IsZero() {
		t.Fatalf("want zero time for nil, got=%v", got)
	}
}

func TestAssertionFromPropsLeavesValidToZeroWhenUnset(t *testing.T) {
	props := map[string]any{
		"id":                asString("asrt_1"),
		"workspace_id":      "ws1",
		"assertion_key":     "ws1:Location:1001:prop:region",
		"relationship_type": assertion.HasPropertyRelationshipType,
		"recorded_at":       "2024-01-01T00:00:00Z",
		"valid_from":        "2024-01-01T00:00:00Z",
		"confidence":        0.9,
	}
	a := assertionFromProps(props)
	if !a.IsOpen() {
		t.Fatalf("expected assertion with no valid_to to be open")
	}
	if !a.IsProperty() {
		t.Fatalf("expected HAS_PROPERTY relationship_type to report IsProperty")
	}
}

func TestAssertionFromPropsDecodesClosedWindow(t *testing.T) {
	props := map[string]any{
		"id":            "asrt_2",
		"workspace_id":  "ws1",
		"assertion_key": "ws1:Location:1001:prop:region",
		"recorded_at":   "2024-01-01T00:00:00Z",
		"valid_from":    "2024-01-01T00:00:00Z",
		"valid_to":      "2024-06-01T00:00:00Z",
	}
	a := assertionFromProps(props)
	if a.IsOpen() {
		t.Fatalf("expected assertion with valid_to set to be closed")
	}
}

func TestSourceFromPropsDefaultsAuthorityRankWhenAbsent(t *testing.T) {
	s := sourceFromProps(map[string]any{
		"id":           "src_1",
		"workspace_id": "ws1",
		"source_name":  "erp",
	})
	if s.AuthorityRank != assertion.NoAuthorityRank {
		t.Fatalf("want=%d got=%d", assertion.NoAuthorityRank, s.AuthorityRank)
	}
}

func TestSourceFromPropsDecodesAuthorityDomains(t *testing.T) {
	s := sourceFromProps(map[string]any{
		"id":                "src_1",
		"workspace_id":      "ws1",
		"source_name":       "erp",
		"authority_domains": []any{"region", "speed"},
	})
	if len(s.AuthorityDomains) != 2 || s.AuthorityDomains[0] != "region" {
		t.Fatalf("unexpected authority domains: %v", s.AuthorityDomains)
	}
}

func TestImportRunFromPropsDecodesStats(t *testing.T) {
	ir := importRunFromProps(map[string]any{
		"id":              "imp_1",
		"workspace_id":    "ws1",
		"started_at":      "2024-01-01T00:00:00Z",
		"status":          string(assertion.ImportStatusOK),
		"stats_created":   int64(3),
		"stats_closed":    int64(1),
		"stats_unchanged": int64(7),
	})
	if ir.Stats.Created != 3 || ir.Stats.Closed != 1 || ir.Stats.Unchanged != 7 {
		t.Fatalf("unexpected stats: %+v", ir.Stats)
	}
	if !ir.FinishedAt.IsZero() {
		t.Fatalf("expected zero FinishedAt when absent")
	}
}
