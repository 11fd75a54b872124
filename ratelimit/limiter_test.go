package ratelimit

import "testing"

func TestAllowWithinRate(t *testing.T) {
	l := New()

	// Burst equals the per-second rate.
	for i := 0; i < 5; i++ {
		if !l.Allow("wh_1", 5) {
			t.Fatalf("attempt %d denied inside burst", i)
		}
	}
	if l.Allow("wh_1", 5) {
		t.Error("attempt allowed past the burst")
	}
}

func TestUnlimited(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		if !l.Allow("wh_1", 0) {
			t.Fatal("unlimited webhook was rate limited")
		}
	}
}

func TestIndependentBuckets(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		l.Allow("wh_a", 3)
	}
	if l.Allow("wh_a", 3) {
		t.Error("wh_a allowed past burst")
	}
	if !l.Allow("wh_b", 3) {
		t.Error("wh_b denied by wh_a's bucket")
	}
}

func TestForget(t *testing.T) {
	l := New()
	for i := 0; i < 2; i++ {
		l.Allow("wh_1", 2)
	}
	l.Forget("wh_1")
	if !l.Allow("wh_1", 2) {
		t.Error("bucket survived Forget")
	}
}
