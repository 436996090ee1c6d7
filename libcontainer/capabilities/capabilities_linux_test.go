package capabilities

import "testing"

func TestCapsFromNamesKnownCapability(t *testing.T) {
	if len(byName) == 0 {
		t.Skip("capability.LastCap() unavailable in this environment")
	}
	caps, err := capsFromNames([]string{"CAP_CHOWN"})
	if err != nil {
		t.Fatalf("capsFromNames: %v", err)
	}
	if len(caps) != 1 {
		t.Fatalf("got %d capabilities, want 1", len(caps))
	}
}

func TestCapsFromNamesCaseInsensitive(t *testing.T) {
	if len(byName) == 0 {
		t.Skip("capability.LastCap() unavailable in this environment")
	}
	if _, err := capsFromNames([]string{"cap_chown"}); err != nil {
		t.Fatalf("expected a lowercase capability name to resolve, got %v", err)
	}
}

func TestCapsFromNamesRejectsUnknown(t *testing.T) {
	if _, err := capsFromNames([]string{"CAP_NOT_A_REAL_CAPABILITY"}); err == nil {
		t.Fatal("expected an unknown capability name to be rejected")
	}
}

func TestCapsFromNamesEmpty(t *testing.T) {
	caps, err := capsFromNames(nil)
	if err != nil {
		t.Fatalf("capsFromNames(nil): %v", err)
	}
	if len(caps) != 0 {
		t.Fatalf("got %d capabilities, want 0", len(caps))
	}
}

func TestDropNilIsNoop(t *testing.T) {
	if err := Drop(nil); err != nil {
		t.Fatalf("Drop(nil) = %v, want nil", err)
	}
}
