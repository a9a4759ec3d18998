package domain

import "testing"

func TestRecoveryTriggerNameRoundTrip(t *testing.T) {
	original := TriggerKey{Name: "nightly-report", Group: "reports"}
	encoded := RecoveryTriggerName(original, "entry-123")

	got, ok := ParseRecoveryTriggerName(encoded)
	if !ok {
		t.Fatalf("expected %q to parse as a recovery trigger name", encoded)
	}
	if got != original {
		t.Fatalf("expected round trip to recover %+v, got %+v", original, got)
	}
}

func TestParseRecoveryTriggerNameRejectsOrdinaryNames(t *testing.T) {
	if _, ok := ParseRecoveryTriggerName("nightly-report"); ok {
		t.Fatal("expected an ordinary trigger name not to parse as a recovery name")
	}
	if _, ok := ParseRecoveryTriggerName("recover::only-two-parts"); ok {
		t.Fatal("expected a malformed recovery-looking name to be rejected")
	}
}
