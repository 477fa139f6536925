package segment

import (
	"fmt"
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	gen := New("sess-123")

	for i := 1; i <= 3; i++ {
		want := fmt.Sprintf("sess-123-seg-%d", i)
		if got := gen.Next(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	if gen.Issued() != 3 {
		t.Errorf("expected 3 issued, got %d", gen.Issued())
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	gen := New("sess-concurrent")
	numGoroutines := 100
	resultsPerGoroutine := 10

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*resultsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < resultsPerGoroutine; j++ {
				results <- gen.Next()
			}
		}()
	}

	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for seg := range results {
		if seen[seg] {
			t.Errorf("duplicate segment ID generated: %s", seg)
		}
		seen[seg] = true
	}

	expectedCount := numGoroutines * resultsPerGoroutine
	if len(seen) != expectedCount {
		t.Errorf("expected %d unique segment IDs, got %d", expectedCount, len(seen))
	}
}

func TestGenerator_IndependentSessions(t *testing.T) {
	a := New("sess-A")
	b := New("sess-B")

	a.Next()
	if got := b.Next(); got != "sess-B-seg-1" {
		t.Errorf("expected per-session numbering, got %s", got)
	}
	if got := a.Next(); got != "sess-A-seg-2" {
		t.Errorf("expected 'sess-A-seg-2', got %s", got)
	}
}
