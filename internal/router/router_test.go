package router

import (
	"testing"

	"github.com/forgehq/forge/internal/bootstrap"
)

type fakeGenerator struct{ state bootstrap.State }

func (f fakeGenerator) State() bootstrap.State { return f.state }

func TestClassify(t *testing.T) {
	cases := map[string]Category{
		"hello there":                  CategoryGreeting,
		"hi!":                          CategoryGreeting,
		"my program keeps crashing":    CategoryDebugging,
		"I'm seeing a panic on start":  CategoryDebugging,
		"rust vs go for this service":  CategoryComparison,
		"what is a goroutine":          CategoryDefinition,
		"please refactor this struct":  CategoryOther,
		"":                             CategoryOther,
	}
	for query, want := range cases {
		if got := Classify(query); got != want {
			t.Errorf("Classify(%q) = %v, want %v", query, got, want)
		}
	}
}

func TestRouteModelNotReady(t *testing.T) {
	r := New(DefaultConfig(), fakeGenerator{state: bootstrap.StateDownloading})
	d := r.Route("hi")
	if d.Target != TargetForward || d.Reason != ReasonModelNotReady {
		t.Fatalf("got %+v, want forward/ModelNotReady", d)
	}
}

func TestRouteExploreThenLowConfidence(t *testing.T) {
	r := New(DefaultConfig(), fakeGenerator{state: bootstrap.StateReady})

	d1 := r.Route("hi")
	if d1.Target != TargetLocal {
		t.Fatalf("first greeting should explore locally, got %+v", d1)
	}
	r.LearnLocalAttempt("hi", false)

	d2 := r.Route("hello")
	if d2.Target != TargetLocal {
		t.Fatalf("second greeting should still explore locally, got %+v", d2)
	}
	r.LearnLocalAttempt("hello", false)

	d3 := r.Route("hey")
	if d3.Target != TargetForward || d3.Reason != ReasonLowConfidence {
		t.Fatalf("third greeting after two failures should forward (LowConfidence), got %+v", d3)
	}
	r.LearnForwarded("hey")

	snap := r.Snapshot()
	if snap.TotalQueries != 3 {
		t.Errorf("total_queries = %d, want 3", snap.TotalQueries)
	}
	if snap.TotalLocalAttempts != 2 {
		t.Errorf("total_local_attempts = %d, want 2", snap.TotalLocalAttempts)
	}
	stats := snap.Categories[CategoryGreeting]
	if stats.Attempts != 2 || stats.Successes != 0 {
		t.Errorf("greeting stats = %+v, want {2 0}", stats)
	}
}

func TestRouteDeterministic(t *testing.T) {
	r := New(DefaultConfig(), fakeGenerator{state: bootstrap.StateReady})
	r.LearnLocalAttempt("hi", true)
	r.LearnLocalAttempt("hi", true)
	r.LearnLocalAttempt("hi", true)

	a := r.Route("hello again")
	b := r.Route("hello again")
	if a != b {
		t.Fatalf("same query against same stats snapshot must yield same decision: %+v vs %+v", a, b)
	}
}

func TestRouterInvariantTotalsNeverViolated(t *testing.T) {
	r := New(DefaultConfig(), fakeGenerator{state: bootstrap.StateReady})
	r.LearnLocalAttempt("what is x", true)
	r.LearnForwarded("what is y")
	r.LearnForwarded("what is z")

	snap := r.Snapshot()
	if snap.TotalLocalAttempts > snap.TotalQueries {
		t.Fatalf("invariant violated: total_local_attempts=%d > total_queries=%d",
			snap.TotalLocalAttempts, snap.TotalQueries)
	}
	if snap.TotalQueries != 3 || snap.TotalForwarded != 2 {
		t.Errorf("got %+v", snap)
	}
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	r := New(DefaultConfig(), fakeGenerator{state: bootstrap.StateReady})
	bad := Snapshot{TotalQueries: 1, TotalLocalAttempts: 5}
	if err := r.Restore(bad); err == nil {
		t.Fatal("expected Restore to reject total_local_attempts > total_queries")
	}
}
