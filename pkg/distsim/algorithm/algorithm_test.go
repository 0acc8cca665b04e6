package algorithm

import (
	"strings"
	"testing"
)

func TestLookup_KnownAlgorithm(t *testing.T) {
	ctor, ok := Lookup(FloodingId)
	if !ok {
		t.Fatal("expected flooding algorithm to be registered")
	}
	if ctor() == nil {
		t.Fatal("expected constructor to produce a non-nil algorithm")
	}
}

func TestLookup_UnknownAlgorithm(t *testing.T) {
	if _, ok := Lookup("does-not-exist"); ok {
		t.Fatal("expected unknown algorithm id to fail lookup")
	}
}

func TestErrUnknownAlgorithm_MessageContainsId(t *testing.T) {
	err := &ErrUnknownAlgorithm{AlgorithmId: "bogus"}
	if got := err.Error(); !strings.Contains(got, "bogus") {
		t.Fatalf("expected error message to contain the algorithm id, got %q", got)
	}
}
