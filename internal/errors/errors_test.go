package errors

import (
	"fmt"
	"testing"
)

func TestCodeOfUnwrapsTypedErrors(t *testing.T) {
	inner := New(CodeChainMismatch, "chain mismatch")
	wrapped := fmt.Errorf("step 0: %w", inner)
	if got := CodeOf(wrapped); got != CodeChainMismatch {
		t.Fatalf("expected chain mismatch code, got %d", got)
	}
	if got := ExitCode(wrapped); got != int(CodeChainMismatch) {
		t.Fatalf("unexpected exit code %d", got)
	}
}

func TestCodeOfUntypedIsInternal(t *testing.T) {
	if got := CodeOf(fmt.Errorf("boom")); got != CodeInternal {
		t.Fatalf("expected internal, got %d", got)
	}
	if got := CodeOf(nil); got != CodeSuccess {
		t.Fatalf("expected success for nil, got %d", got)
	}
}

func TestWrapMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeTimeout, "wait for receipt", fmt.Errorf("attempts exhausted"))
	if err.Error() != "wait for receipt: attempts exhausted" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if TypeName(CodeTimeout) != "timeout" {
		t.Fatalf("unexpected type name %q", TypeName(CodeTimeout))
	}
}

func TestCodeForTypeRoundTrips(t *testing.T) {
	for _, c := range typedCodes {
		if got := CodeForType(TypeName(c)); got != c {
			t.Fatalf("code %d round tripped to %d", c, got)
		}
	}
	if got := CodeForType("nope"); got != CodeInternal {
		t.Fatalf("expected internal for unknown type, got %d", got)
	}
}
