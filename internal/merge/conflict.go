// Package merge detects conflicts between two divergently edited deck
// branches and applies explicit per-conflict resolutions to produce a
// merged snapshot.
package merge

import (
	"sort"

	"deckvault/api/internal/deck"
)

// ChangeKind classifies one side of a conflict.
type ChangeKind string

const (
	KindAdded    ChangeKind = "added"
	KindRemoved  ChangeKind = "removed"
	KindModified ChangeKind = "modified"
	KindSlot     ChangeKind = "slot"
)

// Change is what one branch did to a card (or slot) relative to the
// common ancestor.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	OldCount int        `json:"oldCount,omitempty"`
	NewCount int        `json:"newCount,omitempty"`
	OldID    string     `json:"oldCardId,omitempty"`
	NewID    string     `json:"newCardId,omitempty"`
}

// resultingCount is the card's count after the change; 0 means absent.
func (c Change) resultingCount() int {
	if c.Kind == KindRemoved {
		return 0
	}
	return c.NewCount
}

// Conflict is a card whose state diverges incompatibly between the two
// branches. Slot conflicts set Slot and leave the counts zero.
type Conflict struct {
	CardID string     `json:"cardId"`
	Zone   deck.Zone  `json:"zone,omitempty"`
	Slot   deck.Slot  `json:"slot,omitempty"`
	Source Change     `json:"sourceChange"`
	Target Change     `json:"targetChange"`
	Policy Resolution `json:"resolutionPolicy,omitempty"`
}

// Key identifies the conflict when collecting resolutions. Count-zone
// conflicts key on zone/card; slot conflicts key on the slot itself.
func (c Conflict) Key() string {
	if c.Slot == deck.SlotLegend {
		return string(deck.SlotLegend)
	}
	if c.Slot == deck.SlotBattlefield {
		return "battlefield/" + c.CardID
	}
	return string(c.Zone) + "/" + c.CardID
}

// DetectConflicts inspects two diffs taken against the same ancestor and
// returns every card both sides touched with disagreeing end states. Cards
// touched by one side only are never flagged; two sides independently
// reaching the same state is agreement, not conflict.
func DetectConflicts(ancestor deck.Snapshot, source, target deck.Diff) []Conflict {
	srcByCard := indexCountChanges(source)
	tgtByCard := indexCountChanges(target)

	var conflicts []Conflict
	for key, srcChange := range srcByCard {
		tgtChange, both := tgtByCard[key]
		if !both {
			continue
		}
		if srcChange.resultingCount() == tgtChange.resultingCount() {
			continue
		}
		conflicts = append(conflicts, Conflict{
			CardID: key.id,
			Zone:   key.zone,
			Source: srcChange,
			Target: tgtChange,
		})
	}

	conflicts = append(conflicts, slotConflicts(source, target)...)

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Key() < conflicts[j].Key() })
	return conflicts
}

type cardKey struct {
	zone deck.Zone
	id   string
}

func indexCountChanges(d deck.Diff) map[cardKey]Change {
	byCard := make(map[cardKey]Change)
	for _, c := range d.Added {
		byCard[cardKey{c.Zone, c.ID}] = Change{Kind: KindAdded, NewCount: c.Count}
	}
	for _, c := range d.Removed {
		byCard[cardKey{c.Zone, c.ID}] = Change{Kind: KindRemoved, OldCount: c.Count}
	}
	for _, c := range d.Modified {
		byCard[cardKey{c.Zone, c.ID}] = Change{Kind: KindModified, OldCount: c.OldCount, NewCount: c.NewCount}
	}
	return byCard
}

// slotConflicts flags special slots both sides repointed to different
// cards. Slot changes are matched by the occupant they replaced.
func slotConflicts(source, target deck.Diff) []Conflict {
	type slotKey struct {
		slot  deck.Slot
		oldID string
	}
	srcSlots := make(map[slotKey]deck.SlotChange)
	for _, c := range source.SlotChanges {
		srcSlots[slotKey{c.Slot, c.OldCardID}] = c
	}

	var conflicts []Conflict
	for _, tgt := range target.SlotChanges {
		src, both := srcSlots[slotKey{tgt.Slot, tgt.OldCardID}]
		if !both || src.NewCardID == tgt.NewCardID {
			continue
		}
		conflicts = append(conflicts, Conflict{
			CardID: src.OldCardID,
			Slot:   src.Slot,
			Source: Change{Kind: KindSlot, OldID: src.OldCardID, NewID: src.NewCardID},
			Target: Change{Kind: KindSlot, OldID: tgt.OldCardID, NewID: tgt.NewCardID},
		})
	}
	return conflicts
}
