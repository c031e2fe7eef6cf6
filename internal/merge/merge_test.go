package merge

import (
	"errors"
	"reflect"
	"testing"

	"deckvault/api/internal/deck"
)

func mainDeck(cards ...deck.CardCount) deck.Snapshot {
	return deck.Snapshot{Cards: cards}
}

// Scenario: ancestor has 2x Sol Ring, one branch tunes it to 3x, the other
// cuts it. Exactly one conflict, and each policy lands where it should.
func TestModifyVersusRemoveConflict(t *testing.T) {
	ancestor := mainDeck(deck.CardCount{ID: "Sol Ring", Count: 2}, deck.CardCount{ID: "Island", Count: 30})
	source := mainDeck(deck.CardCount{ID: "Sol Ring", Count: 3}, deck.CardCount{ID: "Island", Count: 30})
	target := mainDeck(deck.CardCount{ID: "Island", Count: 30})

	sourceDiff := deck.Compare(ancestor, source)
	targetDiff := deck.Compare(ancestor, target)

	conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff)
	if len(conflicts) != 1 {
		t.Fatalf("DetectConflicts() = %+v, want exactly one conflict", conflicts)
	}
	c := conflicts[0]
	if c.CardID != "Sol Ring" {
		t.Fatalf("conflict card = %q, want Sol Ring", c.CardID)
	}
	if c.Source.Kind != KindModified || c.Target.Kind != KindRemoved {
		t.Fatalf("conflict kinds = %s vs %s, want modified vs removed", c.Source.Kind, c.Target.Kind)
	}

	keepSource, err := Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{c.Key(): KeepSource})
	if err != nil {
		t.Fatalf("Resolve(keep-source) error = %v", err)
	}
	if got := keepSource.Counts(deck.ZoneMain)["Sol Ring"]; got != 3 {
		t.Errorf("keep-source Sol Ring count = %d, want 3", got)
	}

	keepTarget, err := Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{c.Key(): KeepTarget})
	if err != nil {
		t.Fatalf("Resolve(keep-target) error = %v", err)
	}
	if got := keepTarget.Counts(deck.ZoneMain)["Sol Ring"]; got != 0 {
		t.Errorf("keep-target Sol Ring count = %d, want removed", got)
	}

	_, err = Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{c.Key(): KeepBoth})
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("Resolve(keep-both) error = %v, want ErrInvalidPolicy", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.CardID != "Sol Ring" {
		t.Errorf("Resolve(keep-both) error does not name the card: %v", err)
	}
}

func TestDisjointChangesNeverConflictAndMergeSymmetrically(t *testing.T) {
	ancestor := mainDeck(deck.CardCount{ID: "Island", Count: 20}, deck.CardCount{ID: "Shock", Count: 4})
	source := mainDeck(deck.CardCount{ID: "Island", Count: 22}, deck.CardCount{ID: "Shock", Count: 4})
	target := mainDeck(deck.CardCount{ID: "Island", Count: 20}, deck.CardCount{ID: "Shock", Count: 4}, deck.CardCount{ID: "Bolt", Count: 2})

	sourceDiff := deck.Compare(ancestor, source)
	targetDiff := deck.Compare(ancestor, target)

	if conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff); len(conflicts) != 0 {
		t.Fatalf("DetectConflicts() = %+v, want none for disjoint changes", conflicts)
	}

	ab, err := Resolve(ancestor, sourceDiff, targetDiff, nil, nil)
	if err != nil {
		t.Fatalf("Resolve(source, target) error = %v", err)
	}
	ba, err := Resolve(ancestor, targetDiff, sourceDiff, nil, nil)
	if err != nil {
		t.Fatalf("Resolve(target, source) error = %v", err)
	}
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("merge is order dependent:\n%+v\nvs\n%+v", ab, ba)
	}

	counts := ab.Counts(deck.ZoneMain)
	if counts["Island"] != 22 || counts["Bolt"] != 2 || counts["Shock"] != 4 {
		t.Fatalf("merged counts = %+v", counts)
	}
}

func TestIndependentAgreementIsNotAConflict(t *testing.T) {
	ancestor := mainDeck(deck.CardCount{ID: "Island", Count: 20})
	edited := mainDeck(deck.CardCount{ID: "Island", Count: 20}, deck.CardCount{ID: "Bolt", Count: 2})

	sourceDiff := deck.Compare(ancestor, edited)
	targetDiff := deck.Compare(ancestor, edited)

	if conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff); len(conflicts) != 0 {
		t.Fatalf("DetectConflicts() = %+v, want none when both sides agree", conflicts)
	}

	merged, err := Resolve(ancestor, sourceDiff, targetDiff, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := merged.Counts(deck.ZoneMain)["Bolt"]; got != 2 {
		t.Fatalf("agreed add applied twice or lost: Bolt = %d, want 2", got)
	}
}

func TestConflictCompleteness(t *testing.T) {
	ancestor := mainDeck(
		deck.CardCount{ID: "a", Count: 2},
		deck.CardCount{ID: "b", Count: 2},
		deck.CardCount{ID: "c", Count: 2},
	)
	// a: both modify to different counts; b: remove vs modify; c: untouched
	// vs modified; d: both add with different counts.
	source := mainDeck(
		deck.CardCount{ID: "a", Count: 3},
		deck.CardCount{ID: "c", Count: 2},
		deck.CardCount{ID: "d", Count: 1},
	)
	target := mainDeck(
		deck.CardCount{ID: "a", Count: 4},
		deck.CardCount{ID: "b", Count: 1},
		deck.CardCount{ID: "c", Count: 3},
		deck.CardCount{ID: "d", Count: 2},
	)

	conflicts := DetectConflicts(ancestor, deck.Compare(ancestor, source), deck.Compare(ancestor, target))

	got := make(map[string]int)
	for _, c := range conflicts {
		got[c.CardID]++
	}
	want := map[string]int{"a": 1, "b": 1, "d": 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("conflict cards = %+v, want %+v (each exactly once)", got, want)
	}
}

func TestKeepBothSumsStackableCounts(t *testing.T) {
	ancestor := mainDeck()
	source := mainDeck(deck.CardCount{ID: "Bolt", Count: 2})
	target := mainDeck(deck.CardCount{ID: "Bolt", Count: 3})

	sourceDiff := deck.Compare(ancestor, source)
	targetDiff := deck.Compare(ancestor, target)
	conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff)
	if len(conflicts) != 1 {
		t.Fatalf("DetectConflicts() = %+v, want one add/add conflict", conflicts)
	}

	merged, err := Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{conflicts[0].Key(): KeepBoth})
	if err != nil {
		t.Fatalf("Resolve(keep-both) error = %v", err)
	}
	if got := merged.Counts(deck.ZoneMain)["Bolt"]; got != 5 {
		t.Fatalf("keep-both Bolt count = %d, want 5", got)
	}
}

func TestKeepBothOnModifiedSumsDeltas(t *testing.T) {
	ancestor := mainDeck(deck.CardCount{ID: "Island", Count: 20})
	source := mainDeck(deck.CardCount{ID: "Island", Count: 22})
	target := mainDeck(deck.CardCount{ID: "Island", Count: 23})

	sourceDiff := deck.Compare(ancestor, source)
	targetDiff := deck.Compare(ancestor, target)
	conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff)
	if len(conflicts) != 1 {
		t.Fatalf("DetectConflicts() = %+v, want one conflict", conflicts)
	}

	merged, err := Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{conflicts[0].Key(): KeepBoth})
	if err != nil {
		t.Fatalf("Resolve(keep-both) error = %v", err)
	}
	// 20 + (+2) + (+3)
	if got := merged.Counts(deck.ZoneMain)["Island"]; got != 25 {
		t.Fatalf("keep-both Island count = %d, want 25", got)
	}
}

func TestLegendConflictRejectsKeepBoth(t *testing.T) {
	ancestor := deck.Snapshot{Legend: &deck.CardRef{ID: "legend-a"}}
	source := deck.Snapshot{Legend: &deck.CardRef{ID: "legend-b"}}
	target := deck.Snapshot{Legend: &deck.CardRef{ID: "legend-c"}}

	sourceDiff := deck.Compare(ancestor, source)
	targetDiff := deck.Compare(ancestor, target)
	conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff)
	if len(conflicts) != 1 || conflicts[0].Slot != deck.SlotLegend {
		t.Fatalf("DetectConflicts() = %+v, want one legend conflict", conflicts)
	}

	_, err := Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{conflicts[0].Key(): KeepBoth})
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("Resolve(keep-both legend) error = %v, want ErrInvalidPolicy", err)
	}

	merged, err := Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{conflicts[0].Key(): KeepTarget})
	if err != nil {
		t.Fatalf("Resolve(keep-target legend) error = %v", err)
	}
	if merged.Legend == nil || merged.Legend.ID != "legend-c" {
		t.Fatalf("merged legend = %+v, want legend-c", merged.Legend)
	}
}

func TestLegendAgreementCarriesForward(t *testing.T) {
	ancestor := deck.Snapshot{Legend: &deck.CardRef{ID: "legend-a"}}
	source := deck.Snapshot{Legend: &deck.CardRef{ID: "legend-b"}}
	target := deck.Snapshot{Legend: &deck.CardRef{ID: "legend-a"}}

	sourceDiff := deck.Compare(ancestor, source)
	targetDiff := deck.Compare(ancestor, target)

	if conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff); len(conflicts) != 0 {
		t.Fatalf("DetectConflicts() = %+v, want none when only one side moved the legend", conflicts)
	}
	merged, err := Resolve(ancestor, sourceDiff, targetDiff, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if merged.Legend == nil || merged.Legend.ID != "legend-b" {
		t.Fatalf("merged legend = %+v, want legend-b carried forward", merged.Legend)
	}
}

func TestResolveRequiresEveryResolution(t *testing.T) {
	ancestor := mainDeck(deck.CardCount{ID: "Sol Ring", Count: 2})
	source := mainDeck(deck.CardCount{ID: "Sol Ring", Count: 3})
	target := mainDeck()

	sourceDiff := deck.Compare(ancestor, source)
	targetDiff := deck.Compare(ancestor, target)
	conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff)

	_, err := Resolve(ancestor, sourceDiff, targetDiff, conflicts, nil)
	if !errors.Is(err, ErrMissingResolution) {
		t.Fatalf("Resolve() error = %v, want ErrMissingResolution", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.CardID != "Sol Ring" {
		t.Fatalf("missing-resolution error does not name the card: %v", err)
	}

	_, err = Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{conflicts[0].Key(): Resolution("coin-flip")})
	if !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownPolicy", err)
	}
}

func TestCheckCopyLimits(t *testing.T) {
	s := mainDeck(deck.CardCount{ID: "Bolt", Count: 5}, deck.CardCount{ID: "Shock", Count: 4})

	err := CheckCopyLimits(s, 4)
	if !errors.Is(err, ErrCopyLimit) {
		t.Fatalf("CheckCopyLimits() error = %v, want ErrCopyLimit", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.CardID != "Bolt" {
		t.Fatalf("copy-limit error does not name the card: %v", err)
	}

	if err := CheckCopyLimits(s, 5); err != nil {
		t.Fatalf("CheckCopyLimits() error = %v for compliant deck", err)
	}
	if err := CheckCopyLimits(s, 0); err != nil {
		t.Fatalf("CheckCopyLimits() with no limit error = %v", err)
	}
}

func TestBattlefieldKeepBothKeepsBothFields(t *testing.T) {
	ancestor := deck.Snapshot{Battlefields: []deck.CardRef{{ID: "field-1"}}}
	source := deck.Snapshot{Battlefields: []deck.CardRef{{ID: "field-2"}}}
	target := deck.Snapshot{Battlefields: []deck.CardRef{{ID: "field-3"}}}

	sourceDiff := deck.Compare(ancestor, source)
	targetDiff := deck.Compare(ancestor, target)
	conflicts := DetectConflicts(ancestor, sourceDiff, targetDiff)
	if len(conflicts) != 1 || conflicts[0].Slot != deck.SlotBattlefield {
		t.Fatalf("DetectConflicts() = %+v, want one battlefield conflict", conflicts)
	}

	merged, err := Resolve(ancestor, sourceDiff, targetDiff, conflicts, map[string]Resolution{conflicts[0].Key(): KeepBoth})
	if err != nil {
		t.Fatalf("Resolve(keep-both battlefield) error = %v", err)
	}
	ids := make(map[string]bool)
	for _, b := range merged.Battlefields {
		ids[b.ID] = true
	}
	if !ids["field-2"] || !ids["field-3"] || ids["field-1"] {
		t.Fatalf("merged battlefields = %+v, want field-2 and field-3", merged.Battlefields)
	}
}
