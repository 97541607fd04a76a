package stream

import (
	"testing"
	"time"
)

func TestBackoff_Doubling(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 1*time.Second, 10)

	wantDelays := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second,
		1 * time.Second,
	}

	for i, want := range wantDelays {
		delay, ok := b.Next()
		if !ok {
			t.Fatalf("Next() #%d ok = false, want true", i+1)
		}
		if delay != want {
			t.Errorf("Next() #%d = %v, want %v", i+1, delay, want)
		}
	}
}

func TestBackoff_AttemptCap(t *testing.T) {
	b := NewBackoff(1*time.Millisecond, 10*time.Millisecond, 3)

	if _, ok := b.Next(); !ok {
		t.Fatal("Next() #1 ok = false, want true")
	}
	if _, ok := b.Next(); !ok {
		t.Fatal("Next() #2 ok = false, want true")
	}
	if _, ok := b.Next(); ok {
		t.Fatal("Next() #3 ok = true, want false")
	}
	if b.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", b.Attempts())
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 1*time.Second, 5)

	b.Next()
	b.Next()
	b.Reset()

	if b.Attempts() != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", b.Attempts())
	}
	delay, ok := b.Next()
	if !ok {
		t.Fatal("Next() after Reset ok = false, want true")
	}
	if delay != 100*time.Millisecond {
		t.Errorf("Next() after Reset = %v, want 100ms", delay)
	}
}
