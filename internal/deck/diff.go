package deck

import "sort"

// Slot names a special zone touched by an identity change.
type Slot string

const (
	SlotLegend      Slot = "legend"
	SlotBattlefield Slot = "battlefield"
)

// Card is a diff entry for a stackable zone.
type Card struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
	Zone  Zone   `json:"zone"`
}

// CountChange records a count adjustment for a card present in both
// snapshots.
type CountChange struct {
	ID       string `json:"id"`
	Zone     Zone   `json:"zone"`
	OldCount int    `json:"oldCount"`
	NewCount int    `json:"newCount"`
}

// SlotChange records an identity change in a special slot. Swapping the
// legend yields exactly one entry; it is never reported as remove+add.
// One-sided entries (slot filled or emptied) leave the other id blank.
type SlotChange struct {
	Slot      Slot   `json:"slot"`
	OldCardID string `json:"oldCardId,omitempty"`
	NewCardID string `json:"newCardId,omitempty"`
}

// Diff is the structured difference between two snapshots. Within a zone a
// card id appears in at most one of Added, Removed, Modified.
type Diff struct {
	Added       []Card        `json:"added"`
	Removed     []Card        `json:"removed"`
	Modified    []CountChange `json:"modified"`
	SlotChanges []SlotChange  `json:"specialSlotChanges"`
}

// Empty reports whether the diff records no change at all.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0 && len(d.SlotChanges) == 0
}

// Compare computes the structured diff between two snapshots. It is pure
// and deterministic: output entries are ordered by zone then card id, so
// Compare(a, b) is stable across runs. Compare(s, s) is always empty.
func Compare(from, to Snapshot) Diff {
	var d Diff

	for _, zone := range CountZones {
		oldCounts := from.zoneCounts(zone)
		newCounts := to.zoneCounts(zone)

		for id, newCount := range newCounts {
			oldCount, existed := oldCounts[id]
			switch {
			case !existed:
				d.Added = append(d.Added, Card{ID: id, Count: newCount, Zone: zone})
			case oldCount != newCount:
				d.Modified = append(d.Modified, CountChange{ID: id, Zone: zone, OldCount: oldCount, NewCount: newCount})
			}
		}
		for id, oldCount := range oldCounts {
			if _, exists := newCounts[id]; !exists {
				d.Removed = append(d.Removed, Card{ID: id, Count: oldCount, Zone: zone})
			}
		}
	}

	d.SlotChanges = append(d.SlotChanges, legendChange(from, to)...)
	d.SlotChanges = append(d.SlotChanges, battlefieldChanges(from, to)...)

	sortCards(d.Added)
	sortCards(d.Removed)
	sort.Slice(d.Modified, func(i, j int) bool {
		if d.Modified[i].Zone != d.Modified[j].Zone {
			return d.Modified[i].Zone < d.Modified[j].Zone
		}
		return d.Modified[i].ID < d.Modified[j].ID
	})
	return d
}

func sortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Zone != cards[j].Zone {
			return cards[i].Zone < cards[j].Zone
		}
		return cards[i].ID < cards[j].ID
	})
}

func legendChange(from, to Snapshot) []SlotChange {
	oldID, newID := "", ""
	if from.Legend != nil {
		oldID = from.Legend.ID
	}
	if to.Legend != nil {
		newID = to.Legend.ID
	}
	if oldID == newID {
		return nil
	}
	return []SlotChange{{Slot: SlotLegend, OldCardID: oldID, NewCardID: newID}}
}

// battlefieldChanges compares battlefield slots by identity. Departing and
// arriving ids are paired up in sorted order so a swap reads as one change;
// leftovers become one-sided entries.
func battlefieldChanges(from, to Snapshot) []SlotChange {
	oldSet := make(map[string]bool, len(from.Battlefields))
	for _, b := range from.Battlefields {
		oldSet[b.ID] = true
	}
	newSet := make(map[string]bool, len(to.Battlefields))
	for _, b := range to.Battlefields {
		newSet[b.ID] = true
	}

	var gone, came []string
	for _, b := range from.Battlefields {
		if !newSet[b.ID] {
			gone = append(gone, b.ID)
		}
	}
	for _, b := range to.Battlefields {
		if !oldSet[b.ID] {
			came = append(came, b.ID)
		}
	}
	sort.Strings(gone)
	sort.Strings(came)

	var changes []SlotChange
	for len(gone) > 0 && len(came) > 0 {
		changes = append(changes, SlotChange{Slot: SlotBattlefield, OldCardID: gone[0], NewCardID: came[0]})
		gone, came = gone[1:], came[1:]
	}
	for _, id := range gone {
		changes = append(changes, SlotChange{Slot: SlotBattlefield, OldCardID: id})
	}
	for _, id := range came {
		changes = append(changes, SlotChange{Slot: SlotBattlefield, NewCardID: id})
	}
	return changes
}
