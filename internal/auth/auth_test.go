package auth

import "testing"

func TestNoKeyConfiguredAlwaysPasses(t *testing.T) {
	k := NewKeyChecker("")
	if k.Required() {
		t.Fatalf("expected Required() == false with no key configured")
	}
	if !k.Check("anything") {
		t.Fatalf("expected Check to pass when no key is configured")
	}
}

func TestMatchingKeyPasses(t *testing.T) {
	k := NewKeyChecker("s3cret")
	if !k.Required() {
		t.Fatalf("expected Required() == true")
	}
	if !k.Check("s3cret") {
		t.Fatalf("expected matching key to pass")
	}
}

func TestMismatchedKeyFails(t *testing.T) {
	k := NewKeyChecker("s3cret")
	if k.Check("wrong") {
		t.Fatalf("expected mismatched key to fail")
	}
	if k.Check("") {
		t.Fatalf("expected empty candidate to fail when a key is configured")
	}
}
