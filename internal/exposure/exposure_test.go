package exposure_test

import (
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"flambient/internal/exposure"
)

func flashRecord(path, raw string, ts time.Time) exposure.Record {
	return exposure.Record{
		SourcePath: path,
		Timestamp:  ts,
		Fields:     map[string]exposure.FieldValue{"Flash": {Raw: raw}},
	}
}

func TestClassifyAndGroupFlashExample(t *testing.T) {
	records := []exposure.Record{
		flashRecord("a.jpg", "16", time.Time{}),
		flashRecord("b.jpg", "0", time.Time{}),
		flashRecord("c.jpg", "16", time.Time{}),
	}

	exposures := exposure.Classify(records, exposure.FlashStrategy{}, "16")
	gotTypes := []exposure.Type{exposures[0].Type, exposures[1].Type, exposures[2].Type}
	wantTypes := []exposure.Type{exposure.Ambient, exposure.Flash, exposure.Ambient}
	if !reflect.DeepEqual(gotTypes, wantTypes) {
		t.Fatalf("types = %v, want %v", gotTypes, wantTypes)
	}

	groups := exposure.GroupExposures(exposures)
	want := []exposure.Group{
		{Sequence: 1, Ambient: []string{"a.jpg"}, Flash: []string{"b.jpg"}},
		{Sequence: 2, Ambient: []string{"c.jpg"}},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("groups = %+v, want %+v", groups, want)
	}

	stats := exposure.Summarize(exposures, groups)
	wantStats := exposure.Stats{Total: 3, Ambient: 2, Flash: 1, Groups: 2, GroupsWithBoth: 1, Unblendable: 1}
	if stats != wantStats {
		t.Fatalf("stats = %+v, want %+v", stats, wantStats)
	}
}

func TestClassifyIsExactMatch(t *testing.T) {
	records := []exposure.Record{
		{SourcePath: "a.jpg", Fields: map[string]exposure.FieldValue{"ISO": {Raw: "100", Label: "100"}}},
		{SourcePath: "b.jpg", Fields: map[string]exposure.FieldValue{"ISO": {Raw: "100.0"}}},
		{SourcePath: "c.jpg", Fields: map[string]exposure.FieldValue{"ISO": {Raw: " 100"}}},
		{SourcePath: "d.jpg", Fields: map[string]exposure.FieldValue{}},
	}
	got := exposure.Classify(records, exposure.ISOStrategy{}, "100")
	want := []exposure.Type{exposure.Ambient, exposure.Flash, exposure.Flash, exposure.Flash}
	for i, exp := range got {
		if exp.Type != want[i] {
			t.Fatalf("%s: type = %v, want %v", exp.SourcePath, exp.Type, want[i])
		}
	}
}

func TestClassifyUsesRawNotLabel(t *testing.T) {
	records := []exposure.Record{
		{SourcePath: "a.jpg", Fields: map[string]exposure.FieldValue{"Flash": {Raw: "16", Label: "Off, Did not fire"}}},
	}
	got := exposure.Classify(records, exposure.FlashStrategy{}, "Off, Did not fire")
	if got[0].Type != exposure.Flash {
		t.Fatal("expected label text not to match")
	}
}

func TestGroupExposuresSortsByTimestampThenPath(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	exposures := []exposure.Exposure{
		{SourcePath: "z.jpg", Timestamp: base.Add(2 * time.Second), Type: exposure.Flash},
		{SourcePath: "b.jpg", Timestamp: base, Type: exposure.Ambient},
		{SourcePath: "a.jpg", Timestamp: base, Type: exposure.Ambient},
		{SourcePath: "m.jpg", Timestamp: base.Add(3 * time.Second), Type: exposure.Ambient},
	}
	groups := exposure.GroupExposures(exposures)
	want := []exposure.Group{
		{Sequence: 1, Ambient: []string{"a.jpg", "b.jpg"}, Flash: []string{"z.jpg"}},
		{Sequence: 2, Ambient: []string{"m.jpg"}},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("groups = %+v, want %+v", groups, want)
	}
	if exposures[0].SourcePath != "z.jpg" {
		t.Fatal("input slice must not be reordered")
	}
}

func TestGroupExposuresEmpty(t *testing.T) {
	groups := exposure.GroupExposures(nil)
	if groups == nil || len(groups) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", groups)
	}
}

func TestGroupExposuresLeadingFlash(t *testing.T) {
	exposures := []exposure.Exposure{
		{SourcePath: "1.jpg", Type: exposure.Flash},
		{SourcePath: "2.jpg", Type: exposure.Flash},
		{SourcePath: "3.jpg", Type: exposure.Ambient},
		{SourcePath: "4.jpg", Type: exposure.Flash},
	}
	groups := exposure.GroupExposures(exposures)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].HasBoth() {
		t.Fatal("first group has only flash frames")
	}
	if !groups[1].HasBoth() {
		t.Fatal("second group should be blendable")
	}
}

// Group count must equal one plus the number of flash to ambient transitions,
// and sequence numbers must be contiguous from one.
func TestGroupExposuresTransitionProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for iteration := 0; iteration < 200; iteration++ {
		n := 1 + rng.IntN(30)
		exposures := make([]exposure.Exposure, n)
		transitions := 0
		for i := range exposures {
			kind := exposure.Ambient
			if rng.IntN(2) == 1 {
				kind = exposure.Flash
			}
			exposures[i] = exposure.Exposure{
				SourcePath: "img.jpg",
				Timestamp:  base.Add(time.Duration(i) * time.Second),
				Type:       kind,
			}
			if i > 0 && exposures[i-1].Type == exposure.Flash && kind == exposure.Ambient {
				transitions++
			}
		}
		groups := exposure.GroupExposures(exposures)
		if len(groups) != transitions+1 {
			t.Fatalf("iteration %d: groups = %d, want %d", iteration, len(groups), transitions+1)
		}
		total := 0
		for i, g := range groups {
			if g.Sequence != i+1 {
				t.Fatalf("iteration %d: sequence %d at index %d", iteration, g.Sequence, i)
			}
			total += g.Size()
		}
		if total != n {
			t.Fatalf("iteration %d: grouped %d of %d frames", iteration, total, n)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	cases := []struct {
		name   string
		custom string
		want   exposure.Strategy
	}{
		{"", "", exposure.FlashStrategy{}},
		{"flash", "", exposure.FlashStrategy{}},
		{"Exposure-Program", "", exposure.ExposureProgramStrategy{}},
		{"exposure_mode", "", exposure.ExposureModeStrategy{}},
		{"white_balance", "", exposure.WhiteBalanceStrategy{}},
		{"ISO", "", exposure.ISOStrategy{}},
		{"shutter_speed", "", exposure.ShutterSpeedStrategy{}},
		{"custom", " LightSource ", exposure.CustomStrategy{FieldName: "LightSource"}},
	}
	for _, tc := range cases {
		got, err := exposure.ParseStrategy(tc.name, tc.custom)
		if err != nil {
			t.Fatalf("ParseStrategy(%q) error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("ParseStrategy(%q) = %#v, want %#v", tc.name, got, tc.want)
		}
	}

	if _, err := exposure.ParseStrategy("custom", ""); err == nil {
		t.Fatal("expected custom without field to fail")
	}
	if _, err := exposure.ParseStrategy("aperture", ""); err == nil {
		t.Fatal("expected unknown strategy to fail")
	}
}

func TestStrategiesExposeMetadata(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range exposure.Strategies() {
		if s.Name() == "" || s.Label() == "" || s.Help() == "" {
			t.Fatalf("strategy %#v missing metadata", s)
		}
		if seen[s.Name()] {
			t.Fatalf("duplicate strategy name %q", s.Name())
		}
		seen[s.Name()] = true
	}
	if len(seen) != 7 {
		t.Fatalf("expected 7 strategies, got %d", len(seen))
	}
}

func TestResolveAmbientValue(t *testing.T) {
	if v, err := exposure.ResolveAmbientValue(exposure.FlashStrategy{}, ""); err != nil || v != "16" {
		t.Fatalf("flash default = %q, %v", v, err)
	}
	if v, err := exposure.ResolveAmbientValue(exposure.FlashStrategy{}, "0"); err != nil || v != "0" {
		t.Fatalf("explicit value = %q, %v", v, err)
	}
	if _, err := exposure.ResolveAmbientValue(exposure.ShutterSpeedStrategy{}, ""); err == nil {
		t.Fatal("expected shutter speed without value to fail")
	}
	if _, err := exposure.ResolveAmbientValue(exposure.CustomStrategy{FieldName: "X"}, ""); err == nil {
		t.Fatal("expected custom without value to fail")
	}
}
