package ledger

import (
	"testing"
	"time"
)

func TestContainsTrueWithinTTL(t *testing.T) {
	l := New()
	l.Add("post-1")
	if !l.Contains("post-1") {
		t.Fatal("expected post-1 to be present immediately after Add")
	}
}

func TestContainsFalseForUnknownID(t *testing.T) {
	l := New()
	if l.Contains("never-added") {
		t.Fatal("expected unknown id to be absent")
	}
}

func TestContainsFalseAfterTTLExpires(t *testing.T) {
	l := NewWithTTL(10 * time.Millisecond)
	l.Add("post-1")
	time.Sleep(20 * time.Millisecond)
	if l.Contains("post-1") {
		t.Fatal("expected post-1 to have expired")
	}
}

func TestContainsSweepsExpiredEntryLazily(t *testing.T) {
	l := NewWithTTL(10 * time.Millisecond)
	l.Add("post-1")
	time.Sleep(20 * time.Millisecond)
	l.Contains("post-1")
	if l.Len() != 0 {
		t.Fatalf("expected expired entry to be swept on lookup, Len() = %d", l.Len())
	}
}

func TestSweepRemovesOnlyExpiredEntries(t *testing.T) {
	l := NewWithTTL(10 * time.Millisecond)
	l.Add("expires-soon")
	time.Sleep(20 * time.Millisecond)
	l.Add("fresh")
	l.Sweep()
	if l.Contains("expires-soon") {
		t.Fatal("expected expires-soon to be swept away")
	}
	if !l.Contains("fresh") {
		t.Fatal("expected fresh to survive the sweep")
	}
}

func TestAddEmptyIDIsNoop(t *testing.T) {
	l := New()
	l.Add("")
	if l.Len() != 0 {
		t.Fatalf("expected empty id to be ignored, Len() = %d", l.Len())
	}
}
