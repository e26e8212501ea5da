package exposure

import (
	"cmp"
	"slices"
	"time"
)

// Type marks an exposure as ambient or flash.
type Type int

const (
	Ambient Type = iota
	Flash
)

func (t Type) String() string {
	switch t {
	case Ambient:
		return "ambient"
	case Flash:
		return "flash"
	default:
		return "unknown"
	}
}

// FieldValue pairs the raw numeric EXIF value with its human-readable label.
type FieldValue struct {
	Raw   string
	Label string
}

// Record is one image's extracted metadata before classification.
type Record struct {
	SourcePath string
	Timestamp  time.Time
	Fields     map[string]FieldValue
}

// Exposure is a classified record. Values are never mutated after Classify.
type Exposure struct {
	SourcePath string
	Timestamp  time.Time
	Fields     map[string]FieldValue
	Type       Type
}

// Group is one ambient burst followed by its flash burst, in capture order.
type Group struct {
	Sequence int
	Ambient  []string
	Flash    []string
}

// HasBoth reports whether the group can be blended.
func (g Group) HasBoth() bool {
	return len(g.Ambient) > 0 && len(g.Flash) > 0
}

// Size returns the number of frames in the group.
func (g Group) Size() int {
	return len(g.Ambient) + len(g.Flash)
}

// Stats summarizes a classification run.
type Stats struct {
	Total          int
	Ambient        int
	Flash          int
	Groups         int
	GroupsWithBoth int
	Unblendable    int
}

// Classify assigns a type to every record by exact comparison of the
// strategy field's raw value with ambientValue. A match is ambient; anything
// else, including a missing field, is flash.
func Classify(records []Record, strategy Strategy, ambientValue string) []Exposure {
	field := strategy.Field()
	out := make([]Exposure, 0, len(records))
	for _, record := range records {
		kind := Flash
		if value, ok := record.Fields[field]; ok && value.Raw == ambientValue {
			kind = Ambient
		}
		out = append(out, Exposure{
			SourcePath: record.SourcePath,
			Timestamp:  record.Timestamp,
			Fields:     record.Fields,
			Type:       kind,
		})
	}
	return out
}

// GroupExposures orders exposures by capture time and splits them into
// groups. A new group opens on the first frame and on every flash to ambient
// transition; all other transitions extend the current group. The input slice
// is not modified.
func GroupExposures(exposures []Exposure) []Group {
	if len(exposures) == 0 {
		return []Group{}
	}

	ordered := slices.Clone(exposures)
	slices.SortStableFunc(ordered, func(a, b Exposure) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.SourcePath, b.SourcePath)
	})

	groups := make([]Group, 0, len(ordered)/2+1)
	var current *Group
	previous := Ambient
	for i, exp := range ordered {
		if i == 0 || (previous == Flash && exp.Type == Ambient) {
			groups = append(groups, Group{Sequence: len(groups) + 1})
			current = &groups[len(groups)-1]
		}
		switch exp.Type {
		case Ambient:
			current.Ambient = append(current.Ambient, exp.SourcePath)
		default:
			current.Flash = append(current.Flash, exp.SourcePath)
		}
		previous = exp.Type
	}
	return groups
}

// Summarize counts exposures and groups.
func Summarize(exposures []Exposure, groups []Group) Stats {
	stats := Stats{Total: len(exposures), Groups: len(groups)}
	for _, exp := range exposures {
		if exp.Type == Ambient {
			stats.Ambient++
		} else {
			stats.Flash++
		}
	}
	for _, g := range groups {
		if g.HasBoth() {
			stats.GroupsWithBoth++
		} else {
			stats.Unblendable++
		}
	}
	return stats
}
