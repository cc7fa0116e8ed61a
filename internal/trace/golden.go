package trace

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden-file form of a trace.
type Snapshot struct {
	Name   string  `json:"name"`
	Events []Event `json:"events"`
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	list := make([]any, len(s.Events))
	for i, ev := range s.Events {
		list[i] = ev.canonicalMap()
	}
	return MarshalCanonical(map[string]any{
		"name":   s.Name,
		"events": list,
	})
}

// AssertGolden compares events against testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func AssertGolden(t *testing.T, name string, events []Event) {
	t.Helper()

	data, err := Snapshot{Name: name, Events: events}.MarshalCanonical()
	if err != nil {
		t.Fatalf("marshal trace %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
