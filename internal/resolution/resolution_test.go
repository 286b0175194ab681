package resolution

import (
	"testing"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/domain/assertion"
)

type staticAuthority map[string]int

func (s staticAuthority) AuthorityRank(sourceID string) (int, bool) {
	rank, ok := s[sourceID]
	return rank, ok
}

func rec(id, sourceID string, sourceType assertion.SourceType, recordedAt time.Time, confidence float64) *assertion.AssertionRecord {
	return &assertion.AssertionRecord{
		ID:         id,
		SourceID:   sourceID,
		SourceType: sourceType,
		ScenarioID: assertion.BaseScenario,
		ValidFrom:  recordedAt.Add(-time.Hour),
		RecordedAt: recordedAt,
		Confidence: confidence,
	}
}

func TestResolveMultiSourceConflictPrefersHigherAuthority(t *testing.T) {
	now := time.Now()
	a := rec("asrt_a", "src_a", assertion.SourceTypeAPI, now, 0.9)
	b := rec("asrt_b", "src_b", assertion.SourceTypeAPI, now, 0.9)
	authority := staticAuthority{"src_a": 1, "src_b": 2}

	winner, annotated := Resolve([]*assertion.AssertionRecord{a, b}, assertion.BaseScenario, now, authority)
	if winner != a {
		t.Fatalf("expected a (lower authority_rank) to win, got %v", winner)
	}
	for _, ann := range annotated {
		if ann.Record == b && ann.Reason != LossLowerAuthority {
			t.Fatalf("want reason=%s got=%s", LossLowerAuthority, ann.Reason)
		}
	}
}

func TestResolveManualOverrideBeatsAuthority(t *testing.T) {
	now := time.Now()
	fromSpec := rec("asrt_a", "src_a", assertion.SourceTypeAPI, now, 0.9)
	manual := rec("asrt_m", "", assertion.SourceTypeManual, now.Add(-time.Minute), 0.5)
	authority := staticAuthority{"src_a": 1}

	winner, _ := Resolve([]*assertion.AssertionRecord{fromSpec, manual}, assertion.BaseScenario, now, authority)
	if winner != manual {
		t.Fatalf("expected manual override to win regardless of authority_rank, got %v", winner)
	}
}

func TestResolveScenarioPreferenceFallsBackToBase(t *testing.T) {
	now := time.Now()
	base := rec("asrt_base", "src_a", assertion.SourceTypeAPI, now, 0.9)
	winner, _ := Resolve([]*assertion.AssertionRecord{base}, "what_if_1", now, nil)
	if winner != base {
		t.Fatalf("expected base record to win when no scenario-specific record exists")
	}
}

func TestResolveScenarioRecordBeatsBaseWhenPresent(t *testing.T) {
	now := time.Now()
	base := rec("asrt_base", "src_a", assertion.SourceTypeAPI, now, 0.9)
	scenario := rec("asrt_scn", "src_a", assertion.SourceTypeAPI, now, 0.9)
	scenario.ScenarioID = "what_if_1"

	winner, _ := Resolve([]*assertion.AssertionRecord{base, scenario}, "what_if_1", now, nil)
	if winner != scenario {
		t.Fatalf("expected scenario-specific record to win once present")
	}
}

func TestResolveRecencyThenConfidenceThenTiebreak(t *testing.T) {
	now := time.Now()
	older := rec("asrt_b", "src_a", assertion.SourceTypeAPI, now.Add(-time.Hour), 0.9)
	newer := rec("asrt_a", "src_a", assertion.SourceTypeAPI, now, 0.5)

	winner, _ := Resolve([]*assertion.AssertionRecord{older, newer}, assertion.BaseScenario, now, nil)
	if winner != newer {
		t.Fatalf("expected more recent record to win over older-but-confident record")
	}
}

func TestResolveDeterministicTiebreakOnFullTie(t *testing.T) {
	now := time.Now()
	x := rec("asrt_zzz", "src_a", assertion.SourceTypeAPI, now, 0.9)
	y := rec("asrt_aaa", "src_a", assertion.SourceTypeAPI, now, 0.9)

	winner, _ := Resolve([]*assertion.AssertionRecord{x, y}, assertion.BaseScenario, now, nil)
	if winner.ID != "asrt_aaa" {
		t.Fatalf("expected lexicographically smaller assertion_id to win, got %s", winner.ID)
	}
}

func TestResolveOutsideTemporalWindowExcluded(t *testing.T) {
	now := time.Now()
	r := rec("asrt_a", "src_a", assertion.SourceTypeAPI, now, 0.9)
	r.ValidFrom = now.Add(time.Hour) // starts in the future relative to as_of

	winner, annotated := Resolve([]*assertion.AssertionRecord{r}, assertion.BaseScenario, now, nil)
	if winner != nil {
		t.Fatalf("expected no winner when the only record is outside the temporal window")
	}
	if annotated[0].Reason != LossOutsideTemporal {
		t.Fatalf("want=%s got=%s", LossOutsideTemporal, annotated[0].Reason)
	}
}

func TestResolveOrderIndependence(t *testing.T) {
	now := time.Now()
	a := rec("asrt_a", "src_a", assertion.SourceTypeAPI, now, 0.9)
	b := rec("asrt_b", "src_b", assertion.SourceTypeAPI, now, 0.9)
	c := rec("asrt_c", "src_c", assertion.SourceTypeAPI, now, 0.9)
	authority := staticAuthority{"src_a": 1, "src_b": 2, "src_c": 3}

	w1, _ := Resolve([]*assertion.AssertionRecord{a, b, c}, assertion.BaseScenario, now, authority)
	w2, _ := Resolve([]*assertion.AssertionRecord{c, a, b}, assertion.BaseScenario, now, authority)
	if w1 != a || w2 != a {
		t.Fatalf("resolution must be independent of input order, got w1=%v w2=%v", w1, w2)
	}
}
