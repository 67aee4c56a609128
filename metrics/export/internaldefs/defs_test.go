package internaldefs

import (
	"strings"
	"testing"

	"github.com/alebarre/credauth"
)

func TestEveryCounterHasOneDefinition(t *testing.T) {
	seen := make(map[credauth.MetricID]bool, len(CounterDefs))
	names := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("metric %d defined twice", def.ID)
		}
		if names[def.Name] {
			t.Fatalf("name %s used twice", def.Name)
		}
		if !strings.HasPrefix(def.Name, "credauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %s", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}
	if len(CounterDefs)+len(HistogramDefs) != int(credauth.MetricValidateLatency)+1 {
		t.Fatalf("definitions do not cover every metric id")
	}
}

func TestBuckets(t *testing.T) {
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatal("bounds and suffixes disagree")
	}
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}
