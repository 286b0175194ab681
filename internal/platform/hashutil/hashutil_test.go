package hashutil

import "testing"

func baseCfg() RawHashSerialization {
	return RawHashSerialization{
		Delimiter:         "|",
		NullRepresentation: "<null>",
	}
}

func baseRules() NormalizationRules {
	return NormalizationRules{
		TrimWhitespace:    true,
		CollapseWhitespace: true,
		Lowercase:         true,
		NullTokens:        []string{"<null>", "N/A"},
	}
}

func TestRawHashIsDeterministic(t *testing.T) {
	values := []any{"east", 1001.0, true}
	cfg := baseCfg()
	h1 := RawHash(values, nil, cfg)
	h2 := RawHash(values, nil, cfg)
	if h1 != h2 {
		t.Fatalf("raw hash not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("want 64-hex digest, got len=%d (%q)", len(h1), h1)
	}
}

func TestNormalizedHashIgnoresWhitespaceAndCase(t *testing.T) {
	cfg := baseCfg()
	rules := baseRules()

	a := []any{"  East  "}
	b := []any{"east"}

	if NormalizedHash(a, nil, cfg, rules) != NormalizedHash(b, nil, cfg, rules) {
		t.Fatalf("normalized hash should ignore whitespace/case differences")
	}
	if RawHash(a, nil, cfg) == RawHash(b, nil, cfg) {
		t.Fatalf("raw hash should be sensitive to whitespace/case differences")
	}
}

func TestNullTokensMapToSameNormalizedLiteral(t *testing.T) {
	cfg := baseCfg()
	rules := baseRules()

	a := []any{"<null>"}
	b := []any{"N/A"}
	if NormalizedHash(a, nil, cfg, rules) != NormalizedHash(b, nil, cfg, rules) {
		t.Fatalf("distinct null tokens should normalize to the same literal")
	}
}

func TestPropertyAssertionKeyShape(t *testing.T) {
	got := PropertyAssertionKey("ws1", "Location", "1001", "region")
	want := "ws1:Location:1001:prop:region"
	if got != want {
		t.Fatalf("want=%q got=%q", want, got)
	}
}

func TestRelationshipAssertionKeyShape(t *testing.T) {
	got := RelationshipAssertionKey("ws1", "Connection", "c1", "FEEDS", "Location", "1001")
	want := "ws1:Connection:c1:FEEDS:Location:1001"
	if got != want {
		t.Fatalf("want=%q got=%q", want, got)
	}
}

func TestCandidateContentHashNormalizedModeIgnoresCase(t *testing.T) {
	rules := baseRules()
	a := CandidateContentHash([]string{"region", "East"}, &rules)
	b := CandidateContentHash([]string{"region", "east"}, &rules)
	if a != b {
		t.Fatalf("normalized candidate hash should ignore case: %q vs %q", a, b)
	}

	strictA := CandidateContentHash([]string{"region", "East"}, nil)
	strictB := CandidateContentHash([]string{"region", "east"}, nil)
	if strictA == strictB {
		t.Fatalf("strict candidate hash should be case-sensitive")
	}
}
