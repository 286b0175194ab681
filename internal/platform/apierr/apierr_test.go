package apierr

import (
	"errors"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := map[Category]int{
		CategoryValidationError: 400,
		CategoryNotFound:        404,
		CategoryConflict:        409,
		CategoryStoreError:      500,
		CategoryInternalError:   500,
	}
	for cat, want := range cases {
		if got := cat.Status(); got != want {
			t.Fatalf("%s: want=%d got=%d", cat, want, got)
		}
	}
}

func TestErrorUnwrapsForErrorsAs(t *testing.T) {
	inner := errors.New("boom")
	err := New(CategoryStoreError, "write failed", inner).WithDetail("assertion_key", "ws1:Location:1001:prop:region")

	var target *Error
	if !errors.As(err, &target) {
		t.Fatalf("errors.As should find *Error")
	}
	if target.Status() != 500 {
		t.Fatalf("status: want=500 got=%d", target.Status())
	}
	if target.Details["assertion_key"] != "ws1:Location:1001:prop:region" {
		t.Fatalf("detail not preserved: %v", target.Details)
	}
	if !errors.Is(err, inner) {
		t.Fatalf("errors.Is should reach the wrapped cause via Unwrap")
	}
}

func TestErrorMessageFormatting(t *testing.T) {
	err := New(CategoryNotFound, "entity not found", nil)
	if err.Error() != "entity not found" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if err.Code() != "not_found" {
		t.Fatalf("unexpected code: %q", err.Code())
	}
}
