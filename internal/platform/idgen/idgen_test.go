package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestNewIsFixedWidthHex(t *testing.T) {
	id := New("")
	if len(id) != 32 {
		t.Fatalf("length: want=32 got=%d (%q)", len(id), id)
	}
	if strings.ContainsAny(id, "-") {
		t.Fatalf("id should contain no hyphens: %q", id)
	}
}

func TestNewAppliesPrefix(t *testing.T) {
	id := New(PrefixAssertion)
	if !strings.HasPrefix(id, PrefixAssertion) {
		t.Fatalf("want prefix=%q got=%q", PrefixAssertion, id)
	}
	if got := Bare(id); len(got) != 32 {
		t.Fatalf("Bare length: want=32 got=%d (%q)", len(got), got)
	}
}

func TestNewIsUniqueAndSortable(t *testing.T) {
	const n = 64
	ids := make([]string, n)
	for i := range ids {
		ids[i] = New("")
	}

	seen := make(map[string]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids were not generated in sorted order at index %d: %q vs %q", i, ids[i], sorted[i])
		}
	}
}

func TestBareStripsKnownPrefixesOnly(t *testing.T) {
	if got := Bare("unknown_deadbeef"); got != "unknown_deadbeef" {
		t.Fatalf("want unchanged, got %q", got)
	}
}
