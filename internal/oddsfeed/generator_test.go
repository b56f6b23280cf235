package oddsfeed

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rewired-gh/arbscout/internal/arbitrage"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

	a, err := NewGenerator(4, 42, clock).GetLatestQuotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewGenerator(4, 42, clock).GetLatestQuotes(context.Background())
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different snapshots")
	}

	// 4 matches x 6 bookmakers x 2 markets
	if len(a) != 48 {
		t.Errorf("len = %d, want 48", len(a))
	}
	for _, q := range a {
		if err := q.Validate(); err != nil {
			t.Fatalf("generated quote %s is invalid: %v", q.ID, err)
		}
	}
}

func TestGeneratorFeedsTheEngine(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	quotes, _ := NewGenerator(40, 7, clock).GetLatestQuotes(context.Background())

	report := arbitrage.New(arbitrage.WithClock(clock)).Analyze(quotes, 10000)
	if report.Dropped != 0 || report.FailedGroups != 0 {
		t.Errorf("dropped = %d, failed = %d", report.Dropped, report.FailedGroups)
	}
	// fixtures repeat teams across rounds but never repeat a pairing
	if report.Groups != 40 {
		t.Errorf("groups = %d, want 40", report.Groups)
	}
}

func TestGeneratorHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewGenerator(1, 1, nil).GetLatestQuotes(ctx); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
