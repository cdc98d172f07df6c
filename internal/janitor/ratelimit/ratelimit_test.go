package ratelimit

import (
	"testing"
	"time"
)

// TestMaintainerCapAllowed is scenario S4's rate-limit half: a maintainer at
// the cap is refused, and incrementing further only tightens that.
func TestMaintainerCapAllowed(t *testing.T) {
	cap := NewMaintainerCap(5)

	for i := 0; i < 5; i++ {
		if !cap.Allowed("alice") {
			t.Fatalf("alice should be allowed before reaching the cap (iteration %d)", i)
		}
		cap.Inc("alice")
	}

	if cap.Allowed("alice") {
		t.Fatalf("alice at the cap should no longer be allowed")
	}
	if !cap.Allowed("bob") {
		t.Fatalf("a different maintainer's count must be independent")
	}
}

func TestMaintainerCapSetOpenProposalsCorrectsDrift(t *testing.T) {
	cap := NewMaintainerCap(2)
	cap.Inc("alice")
	cap.Inc("alice")
	if cap.Allowed("alice") {
		t.Fatalf("alice should be at the cap after two increments")
	}

	cap.SetOpenProposals(map[string]int{"alice": 0})
	if !cap.Allowed("alice") {
		t.Fatalf("SetOpenProposals should overwrite drifted in-process counters from observed forge state")
	}
}

func TestNoneAlwaysAllows(t *testing.T) {
	var n None
	for i := 0; i < 100; i++ {
		n.Inc("anyone")
	}
	if !n.Allowed("anyone") {
		t.Fatalf("None limiter must always allow")
	}
}

func TestHostBackoff(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hb := NewHostBackoff(time.Minute)
	hb.now = func() time.Time { return now }

	if !hb.Allowed("forge.example") {
		t.Fatalf("an untouched host should be allowed")
	}

	hb.MarkLimited("forge.example")
	if hb.Allowed("forge.example") {
		t.Fatalf("a just-limited host should not be allowed")
	}

	hb.now = func() time.Time { return now.Add(2 * time.Minute) }
	if !hb.Allowed("forge.example") {
		t.Fatalf("a host's cooldown should lapse after its duration")
	}
}
