// Package resolution implements the deterministic ordering (C6) that
// selects the single winning AssertionRecord for a conceptual fact out of
// a multiset of competing, evidence-backed claims.
package resolution

import (
	"sort"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/domain/assertion"
)

// LossReason explains why a record lost at a given step, surfaced on the
// all-claims view.
type LossReason string

const (
	LossNone              LossReason = ""
	LossOutsideTemporal   LossReason = "outside_temporal_window"
	LossScenarioMismatch  LossReason = "scenario_mismatch"
	LossNotManualOverride LossReason = "not_manual_override"
	LossLowerAuthority    LossReason = "lower_authority"
	LossLessRecent        LossReason = "less_recent"
	LossLowerConfidence   LossReason = "lower_confidence"
	LossTiebreak          LossReason = "tiebreak"
)

// Annotated pairs a record with its resolution outcome.
type Annotated struct {
	Record   *assertion.AssertionRecord
	IsWinner bool
	Reason   LossReason
}

// AuthorityLookup resolves a record's Source to its authority_rank.
// Missing ranks are treated as +Inf per spec.
type AuthorityLookup interface {
	AuthorityRank(sourceID string) (rank int, known bool)
}

const infRank = int(^uint(0) >> 1) // max int, stands in for +Inf

// Resolve applies the 7-step algorithm against records sharing one
// assertion_key and returns the winner (nil if no record survives step 1)
// plus every record annotated with why it lost.
func Resolve(records []*assertion.AssertionRecord, targetScenario string, asOf time.Time, authority AuthorityLookup) (*assertion.AssertionRecord, []Annotated) {
	annotated := make([]Annotated, len(records))
	for i, r := range records {
		annotated[i] = Annotated{Record: r}
	}

	// Step 1: temporal filter.
	survivors := make([]*assertion.AssertionRecord, 0, len(records))
	for i := range annotated {
		r := annotated[i].Record
		if temporallyValid(r, asOf) {
			survivors = append(survivors, r)
		} else {
			annotated[i].Reason = LossOutsideTemporal
		}
	}
	if len(survivors) == 0 {
		return nil, annotated
	}

	// Step 2: scenario preference.
	survivors = applyScenarioPreference(survivors, targetScenario, annotated)

	// Step 3: manual override.
	survivors = applyManualOverride(survivors, annotated)

	// Step 4: authority (min rank wins; missing rank is +Inf).
	survivors = applyAuthority(survivors, authority, annotated)

	// Step 5: recency (max recorded_at).
	survivors = applyRecency(survivors, annotated)

	// Step 6: confidence (max confidence).
	survivors = applyConfidence(survivors, annotated)

	// Step 7: deterministic tiebreak (min assertion_id).
	winner := applyTiebreak(survivors, annotated)

	for i := range annotated {
		if annotated[i].Record == winner {
			annotated[i].IsWinner = true
			annotated[i].Reason = LossNone
		}
	}
	return winner, annotated
}

func temporallyValid(r *assertion.AssertionRecord, asOf time.Time) bool {
	if asOf.Before(r.ValidFrom) {
		return false
	}
	if r.ValidTo.IsZero() {
		return true
	}
	return asOf.Before(r.ValidTo)
}

func applyScenarioPreference(survivors []*assertion.AssertionRecord, target string, annotated []Annotated) []*assertion.AssertionRecord {
	hasTarget := false
	for _, r := range survivors {
		if r.ScenarioID == target {
			hasTarget = true
			break
		}
	}
	if !hasTarget {
		return survivors
	}
	out := make([]*assertion.AssertionRecord, 0, len(survivors))
	for _, r := range survivors {
		if r.ScenarioID == target {
			out = append(out, r)
			continue
		}
		if r.ScenarioID == assertion.BaseScenario {
			markLoss(annotated, r, LossScenarioMismatch)
		} else {
			out = append(out, r)
		}
	}
	return out
}

func applyManualOverride(survivors []*assertion.AssertionRecord, annotated []Annotated) []*assertion.AssertionRecord {
	hasManual := false
	for _, r := range survivors {
		if r.SourceType == assertion.SourceTypeManual {
			hasManual = true
			break
		}
	}
	if !hasManual {
		return survivors
	}
	out := make([]*assertion.AssertionRecord, 0, len(survivors))
	for _, r := range survivors {
		if r.SourceType == assertion.SourceTypeManual {
			out = append(out, r)
		} else {
			markLoss(annotated, r, LossNotManualOverride)
		}
	}
	return out
}

func applyAuthority(survivors []*assertion.AssertionRecord, authority AuthorityLookup, annotated []Annotated) []*assertion.AssertionRecord {
	if len(survivors) <= 1 {
		return survivors
	}
	ranks := make(map[*assertion.AssertionRecord]int, len(survivors))
	minRank := infRank
	for _, r := range survivors {
		rank := infRank
		if authority != nil {
			if resolved, known := authority.AuthorityRank(r.SourceID); known {
				rank = resolved
			}
		}
		ranks[r] = rank
		if rank < minRank {
			minRank = rank
		}
	}
	out := make([]*assertion.AssertionRecord, 0, len(survivors))
	for _, r := range survivors {
		if ranks[r] == minRank {
			out = append(out, r)
		} else {
			markLoss(annotated, r, LossLowerAuthority)
		}
	}
	return out
}

func applyRecency(survivors []*assertion.AssertionRecord, annotated []Annotated) []*assertion.AssertionRecord {
	if len(survivors) <= 1 {
		return survivors
	}
	var maxRecorded time.Time
	for _, r := range survivors {
		if r.RecordedAt.After(maxRecorded) {
			maxRecorded = r.RecordedAt
		}
	}
	out := make([]*assertion.AssertionRecord, 0, len(survivors))
	for _, r := range survivors {
		if r.RecordedAt.Equal(maxRecorded) {
			out = append(out, r)
		} else {
			markLoss(annotated, r, LossLessRecent)
		}
	}
	return out
}

func applyConfidence(survivors []*assertion.AssertionRecord, annotated []Annotated) []*assertion.AssertionRecord {
	if len(survivors) <= 1 {
		return survivors
	}
	maxConfidence := survivors[0].Confidence
	for _, r := range survivors[1:] {
		if r.Confidence > maxConfidence {
			maxConfidence = r.Confidence
		}
	}
	out := make([]*assertion.AssertionRecord, 0, len(survivors))
	for _, r := range survivors {
		if r.Confidence == maxConfidence {
			out = append(out, r)
		} else {
			markLoss(annotated, r, LossLowerConfidence)
		}
	}
	return out
}

func applyTiebreak(survivors []*assertion.AssertionRecord, annotated []Annotated) *assertion.AssertionRecord {
	if len(survivors) == 0 {
		return nil
	}
	sorted := append([]*assertion.AssertionRecord(nil), survivors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	winner := sorted[0]
	for _, r := range sorted[1:] {
		markLoss(annotated, r, LossTiebreak)
	}
	return winner
}

func markLoss(annotated []Annotated, r *assertion.AssertionRecord, reason LossReason) {
	for i := range annotated {
		if annotated[i].Record == r {
			annotated[i].Reason = reason
			return
		}
	}
}
