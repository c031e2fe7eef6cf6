package deck

import (
	"reflect"
	"testing"
)

func snapshot(cards ...CardCount) Snapshot {
	return Snapshot{Cards: cards}
}

func TestCompareIdenticalSnapshotsIsEmpty(t *testing.T) {
	s := Snapshot{
		Cards:        []CardCount{{ID: "sol-ring", Count: 2}, {ID: "island-1", Count: 10}},
		RuneDeck:     []CardCount{{ID: "rune-fire", Count: 3}},
		Legend:       &CardRef{ID: "legend-a"},
		Battlefields: []CardRef{{ID: "field-1"}, {ID: "field-2"}},
	}

	d := Compare(s, s)
	if !d.Empty() {
		t.Fatalf("Compare(s, s) = %+v, want empty diff", d)
	}
}

func TestCompareAddedRemovedModified(t *testing.T) {
	from := snapshot(CardCount{ID: "island-1", Count: 10}, CardCount{ID: "sol-ring", Count: 2}, CardCount{ID: "shock", Count: 4})
	to := snapshot(CardCount{ID: "island-1", Count: 12}, CardCount{ID: "sol-ring", Count: 2}, CardCount{ID: "bolt", Count: 3})

	d := Compare(from, to)

	wantAdded := []Card{{ID: "bolt", Count: 3, Zone: ZoneMain}}
	if !reflect.DeepEqual(d.Added, wantAdded) {
		t.Errorf("Added = %+v, want %+v", d.Added, wantAdded)
	}
	wantRemoved := []Card{{ID: "shock", Count: 4, Zone: ZoneMain}}
	if !reflect.DeepEqual(d.Removed, wantRemoved) {
		t.Errorf("Removed = %+v, want %+v", d.Removed, wantRemoved)
	}
	wantModified := []CountChange{{ID: "island-1", Zone: ZoneMain, OldCount: 10, NewCount: 12}}
	if !reflect.DeepEqual(d.Modified, wantModified) {
		t.Errorf("Modified = %+v, want %+v", d.Modified, wantModified)
	}
	if len(d.SlotChanges) != 0 {
		t.Errorf("SlotChanges = %+v, want none", d.SlotChanges)
	}
}

func TestCompareCountToZeroIsRemoval(t *testing.T) {
	from := snapshot(CardCount{ID: "shock", Count: 4})
	to := snapshot()

	d := Compare(from, to)
	if len(d.Removed) != 1 || d.Removed[0].ID != "shock" {
		t.Fatalf("Removed = %+v, want shock removed", d.Removed)
	}
	if len(d.Modified) != 0 {
		t.Fatalf("Modified = %+v, want no modified-to-zero entry", d.Modified)
	}
}

func TestCompareLegendSwapIsOneSlotChange(t *testing.T) {
	from := Snapshot{Legend: &CardRef{ID: "legend-a"}}
	to := Snapshot{Legend: &CardRef{ID: "legend-b"}}

	d := Compare(from, to)
	want := []SlotChange{{Slot: SlotLegend, OldCardID: "legend-a", NewCardID: "legend-b"}}
	if !reflect.DeepEqual(d.SlotChanges, want) {
		t.Fatalf("SlotChanges = %+v, want %+v", d.SlotChanges, want)
	}
	if len(d.Added)+len(d.Removed) != 0 {
		t.Fatalf("legend swap leaked into added/removed: %+v %+v", d.Added, d.Removed)
	}
}

func TestCompareBattlefieldSwapPairsUp(t *testing.T) {
	from := Snapshot{Battlefields: []CardRef{{ID: "field-1"}, {ID: "field-2"}}}
	to := Snapshot{Battlefields: []CardRef{{ID: "field-1"}, {ID: "field-3"}}}

	d := Compare(from, to)
	want := []SlotChange{{Slot: SlotBattlefield, OldCardID: "field-2", NewCardID: "field-3"}}
	if !reflect.DeepEqual(d.SlotChanges, want) {
		t.Fatalf("SlotChanges = %+v, want %+v", d.SlotChanges, want)
	}
}

func TestCompareBattlefieldOneSidedEntries(t *testing.T) {
	from := Snapshot{Battlefields: []CardRef{{ID: "field-1"}}}
	to := Snapshot{Battlefields: []CardRef{{ID: "field-1"}, {ID: "field-2"}}}

	d := Compare(from, to)
	want := []SlotChange{{Slot: SlotBattlefield, NewCardID: "field-2"}}
	if !reflect.DeepEqual(d.SlotChanges, want) {
		t.Fatalf("SlotChanges = %+v, want %+v", d.SlotChanges, want)
	}
}

func TestCompareZonesAreIndependent(t *testing.T) {
	from := Snapshot{
		Cards:     []CardCount{{ID: "sol-ring", Count: 1}},
		Sideboard: []CardCount{{ID: "sol-ring", Count: 1}},
	}
	to := Snapshot{
		Cards:     []CardCount{{ID: "sol-ring", Count: 1}},
		Sideboard: []CardCount{{ID: "sol-ring", Count: 2}},
	}

	d := Compare(from, to)
	if len(d.Modified) != 1 || d.Modified[0].Zone != ZoneSideboard {
		t.Fatalf("Modified = %+v, want single sideboard change", d.Modified)
	}
}

func TestCompareIsDeterministic(t *testing.T) {
	from := snapshot(CardCount{ID: "a", Count: 1}, CardCount{ID: "b", Count: 1}, CardCount{ID: "c", Count: 1})
	to := snapshot(CardCount{ID: "d", Count: 1}, CardCount{ID: "e", Count: 1}, CardCount{ID: "f", Count: 1})

	first := Compare(from, to)
	for i := 0; i < 20; i++ {
		if got := Compare(from, to); !reflect.DeepEqual(got, first) {
			t.Fatalf("Compare() output order changed between runs: %+v vs %+v", got, first)
		}
	}
}

func TestValidateRejectsMalformedSnapshots(t *testing.T) {
	cases := []struct {
		name string
		s    Snapshot
	}{
		{"duplicate id in zone", snapshot(CardCount{ID: "x", Count: 1}, CardCount{ID: "x", Count: 2})},
		{"zero count", snapshot(CardCount{ID: "x", Count: 0})},
		{"negative count", snapshot(CardCount{ID: "x", Count: -2})},
		{"battlefields over cap", Snapshot{Battlefields: []CardRef{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}}},
		{"duplicate battlefield", Snapshot{Battlefields: []CardRef{{ID: "a"}, {ID: "a"}}}},
		{"empty legend id", Snapshot{Legend: &CardRef{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.s.Validate(); err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
		})
	}

	ok := Snapshot{
		Cards:        []CardCount{{ID: "x", Count: 4}},
		Legend:       &CardRef{ID: "legend-a"},
		Battlefields: []CardRef{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() error = %v for well-formed snapshot", err)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := Snapshot{
		Cards:  []CardCount{{ID: "x", Count: 1}},
		Legend: &CardRef{ID: "legend-a"},
	}
	c := s.Clone()
	c.Cards[0].Count = 9
	c.Legend.ID = "legend-b"

	if s.Cards[0].Count != 1 || s.Legend.ID != "legend-a" {
		t.Fatalf("Clone() aliased the original: %+v", s)
	}
}
