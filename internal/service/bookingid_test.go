package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository/memory"
)

func TestGenerate_FirstCallsForOperator(t *testing.T) {
	g := NewBookingIDGenerator(memory.NewCounterStore())
	ctx := context.Background()

	for _, want := range []string{"OP001/00000001", "OP001/00000002"} {
		got, err := g.Generate(ctx, "OP001")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if got != want {
			t.Errorf("Generate = %q, want %q", got, want)
		}
	}

	// Operators have independent sequences.
	got, _ := g.Generate(ctx, "OP002")
	if got != "OP002/00000001" {
		t.Errorf("Generate(OP002) = %q, want OP002/00000001", got)
	}
}

func TestGenerate_ConcurrentCallsAreUnique(t *testing.T) {
	g := NewBookingIDGenerator(memory.NewCounterStore())
	const n = 64

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := g.Generate(context.Background(), "OP9")
			if err != nil {
				t.Errorf("Generate: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	for i := 1; i <= n; i++ {
		if want := fmt.Sprintf("OP9/%08d", i); !seen[want] {
			t.Errorf("missing %s: sequence has a gap", want)
		}
	}
}

func TestGenerate_CorruptCounterFailsLoudly(t *testing.T) {
	counters := memory.NewCounterStore()
	counters.Set(CounterKey("OP001"), "twelve")
	g := NewBookingIDGenerator(counters)

	_, err := g.Generate(context.Background(), "OP001")
	if !errors.Is(err, model.ErrCorruptCounter) {
		t.Fatalf("Generate err = %v, want ErrCorruptCounter", err)
	}
	// Still corrupt: no silent reset to 1.
	if _, err := g.Generate(context.Background(), "OP001"); !errors.Is(err, model.ErrCorruptCounter) {
		t.Errorf("second Generate err = %v, want ErrCorruptCounter", err)
	}
}

func TestGenerate_RejectsBadOperatorCode(t *testing.T) {
	g := NewBookingIDGenerator(memory.NewCounterStore())
	for _, code := range []string{"", "  ", "OP/1"} {
		if _, err := g.Generate(context.Background(), code); !errors.Is(err, model.ErrValidation) {
			t.Errorf("Generate(%q) err = %v, want ErrValidation", code, err)
		}
	}
}

func TestLegacyDisplayID(t *testing.T) {
	got := LegacyDisplayID("OP7", "3f2a9c1bdeadbeef")
	if got != "OP7/3F2A9C1B" {
		t.Errorf("LegacyDisplayID = %q, want OP7/3F2A9C1B", got)
	}
	if got := LegacyDisplayID("OP7", "ab"); !strings.HasSuffix(got, "/AB") {
		t.Errorf("LegacyDisplayID(short id) = %q", got)
	}
}
