package matches_test

import (
	"testing"

	"jobmate/match-service/internal/matches"
)

// ── ParseStatus ────────────────────────────────────────────────────────────

func TestParseStatus_ValidValues(t *testing.T) {
	valid := []string{"pending", "interested", "applied", "ignored"}
	for _, s := range valid {
		got, err := matches.ParseStatus(s)
		if err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseStatus(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseStatus_Invalid(t *testing.T) {
	for _, s := range []string{"", "UNKNOWN", "PENDING", " applied", "applied "} {
		if _, err := matches.ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) expected error, got nil", s)
		}
	}
}

func TestAllStatuses_RoundTrip(t *testing.T) {
	for _, s := range matches.AllStatuses {
		got, err := matches.ParseStatus(string(s))
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
}

// ── IsTransitionAllowed ────────────────────────────────────────────────────

func TestIsTransitionAllowed_Self(t *testing.T) {
	for _, s := range matches.AllStatuses {
		if !matches.IsTransitionAllowed(s, s) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be true (no-op)", s, s)
		}
	}
}

func TestIsTransitionAllowed_OpenStatuses(t *testing.T) {
	open := []matches.Status{matches.StatusPending, matches.StatusInterested, matches.StatusIgnored}
	for _, from := range open {
		for _, to := range matches.AllStatuses {
			if !matches.IsTransitionAllowed(from, to) {
				t.Errorf("IsTransitionAllowed(%s → %s) should be true", from, to)
			}
		}
	}
}

func TestIsTransitionAllowed_FromApplied(t *testing.T) {
	cases := []struct {
		to   matches.Status
		want bool
	}{
		{matches.StatusIgnored, true},
		{matches.StatusPending, false},
		{matches.StatusInterested, false},
	}
	for _, c := range cases {
		if got := matches.IsTransitionAllowed(matches.StatusApplied, c.to); got != c.want {
			t.Errorf("IsTransitionAllowed(applied → %s) = %v, want %v", c.to, got, c.want)
		}
	}
}

func TestIsTransitionAllowed_UnknownSource(t *testing.T) {
	if matches.IsTransitionAllowed(matches.Status("archived"), matches.StatusPending) {
		t.Error("IsTransitionAllowed from an unknown status should be false")
	}
}
