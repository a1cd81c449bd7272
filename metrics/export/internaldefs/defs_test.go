package internaldefs

import (
	"strings"
	"testing"

	goSession "github.com/MrEthical07/goSession"
)

func TestDefsCoverEveryMetric(t *testing.T) {
	seen := map[goSession.MetricID]string{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "gosession_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if prev, ok := seen[def.ID]; ok {
			t.Fatalf("id %d defined twice: %s and %s", def.ID, prev, def.Name)
		}
		seen[def.ID] = def.Name
	}
	for _, def := range HistogramDefs {
		if _, ok := seen[def.ID]; ok {
			t.Fatalf("histogram id %d also defined as counter", def.ID)
		}
		seen[def.ID] = def.Name
	}
	if len(seen) != int(goSession.MetricRefreshLatency)+1 {
		t.Fatalf("expected every metric id defined, got %d", len(seen))
	}
	if len(HistogramBounds) != len(HistogramBoundSuffix) {
		t.Fatal("bounds and suffixes must align")
	}
}

func TestFamiliesGroupOutcomes(t *testing.T) {
	fams := Families()
	names := map[string]bool{}
	for _, f := range fams {
		if names[f.Name] {
			t.Fatalf("family %s split across the def list", f.Name)
		}
		names[f.Name] = true

		outcomes := map[string]bool{}
		for _, m := range f.Members {
			if len(f.Members) > 1 && m.Outcome == "" {
				t.Fatalf("%s member %d has no outcome", f.Name, m.ID)
			}
			if outcomes[m.Outcome] {
				t.Fatalf("%s outcome %q repeated", f.Name, m.Outcome)
			}
			outcomes[m.Outcome] = true
		}
	}
	if len(fams) != 6 {
		t.Fatalf("expected 6 counter families, got %d", len(fams))
	}
	if refresh := fams[1]; refresh.Name != "gosession_refresh_total" || len(refresh.Members) != 7 {
		t.Fatalf("unexpected refresh family %+v", refresh)
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
