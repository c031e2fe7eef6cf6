// Package deck holds the canonical deck snapshot model and the pure
// reconciliation primitives (validation, diffing, change summaries).
package deck

import (
	"errors"
	"fmt"
	"sort"
)

// Zone identifies which part of the deck a card lives in. Identity of a
// card is its id within a zone.
type Zone string

const (
	ZoneMain        Zone = "main"
	ZoneSideboard   Zone = "sideboard"
	ZoneRune        Zone = "rune"
	ZoneLegend      Zone = "legend"
	ZoneBattlefield Zone = "battlefield"
)

// BattlefieldCap bounds the battlefield slot list.
const BattlefieldCap = 3

// CountZones are the stackable zones diffed by id→count maps. Legend and
// battlefield are special slots compared by identity instead.
var CountZones = []Zone{ZoneMain, ZoneSideboard, ZoneRune}

// CardCount is one stackable entry in a count zone.
type CardCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// CardRef is a special-slot occupant; slots carry no count.
type CardRef struct {
	ID string `json:"id"`
}

// Snapshot is a complete deck state at one point in time. The JSON shape
// is the wire format committed to the deck repository.
type Snapshot struct {
	Cards        []CardCount `json:"cards"`
	Sideboard    []CardCount `json:"sideboard,omitempty"`
	RuneDeck     []CardCount `json:"runeDeck,omitempty"`
	Legend       *CardRef    `json:"legend,omitempty"`
	Battlefields []CardRef   `json:"battlefields,omitempty"`
}

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Validate rejects malformed snapshots before any diff or merge runs:
// duplicate ids within a zone, counts below 1, battlefield list over cap.
func (s Snapshot) Validate() error {
	for _, zone := range CountZones {
		seen := make(map[string]bool)
		for _, c := range s.zoneEntries(zone) {
			if c.ID == "" {
				return fmt.Errorf("%w: empty card id in %s", ErrInvalidSnapshot, zone)
			}
			if c.Count < 1 {
				return fmt.Errorf("%w: card %s in %s has count %d", ErrInvalidSnapshot, c.ID, zone, c.Count)
			}
			if seen[c.ID] {
				return fmt.Errorf("%w: duplicate card %s in %s", ErrInvalidSnapshot, c.ID, zone)
			}
			seen[c.ID] = true
		}
	}

	if s.Legend != nil && s.Legend.ID == "" {
		return fmt.Errorf("%w: legend slot has empty card id", ErrInvalidSnapshot)
	}

	if len(s.Battlefields) > BattlefieldCap {
		return fmt.Errorf("%w: %d battlefields exceeds cap of %d", ErrInvalidSnapshot, len(s.Battlefields), BattlefieldCap)
	}
	seen := make(map[string]bool)
	for _, b := range s.Battlefields {
		if b.ID == "" {
			return fmt.Errorf("%w: empty card id in battlefield slot", ErrInvalidSnapshot)
		}
		if seen[b.ID] {
			return fmt.Errorf("%w: duplicate battlefield %s", ErrInvalidSnapshot, b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

// TotalCards counts every copy across the stackable zones. Used by callers
// to decide whether a diff is large enough to push off the interactive path.
func (s Snapshot) TotalCards() int {
	total := 0
	for _, zone := range CountZones {
		for _, c := range s.zoneEntries(zone) {
			total += c.Count
		}
	}
	return total
}

// Clone returns a deep copy. Snapshots cross goroutine boundaries by value
// when diffs run on a worker, so no aliasing may survive.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Cards:     append([]CardCount(nil), s.Cards...),
		Sideboard: append([]CardCount(nil), s.Sideboard...),
		RuneDeck:  append([]CardCount(nil), s.RuneDeck...),
	}
	if s.Legend != nil {
		legend := *s.Legend
		out.Legend = &legend
	}
	if len(s.Battlefields) > 0 {
		out.Battlefields = append([]CardRef(nil), s.Battlefields...)
	}
	return out
}

// Counts returns the id→count map for a stackable zone.
func (s Snapshot) Counts(zone Zone) map[string]int {
	return s.zoneCounts(zone)
}

// SetCounts replaces a stackable zone from an id→count map, writing
// entries in id order so snapshots rebuilt from maps stay deterministic.
func (s *Snapshot) SetCounts(zone Zone, counts map[string]int) {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]CardCount, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, CardCount{ID: id, Count: counts[id]})
	}
	s.setZoneEntries(zone, entries)
}

func (s Snapshot) zoneEntries(zone Zone) []CardCount {
	switch zone {
	case ZoneMain:
		return s.Cards
	case ZoneSideboard:
		return s.Sideboard
	case ZoneRune:
		return s.RuneDeck
	}
	return nil
}

func (s *Snapshot) setZoneEntries(zone Zone, entries []CardCount) {
	switch zone {
	case ZoneMain:
		s.Cards = entries
	case ZoneSideboard:
		s.Sideboard = entries
	case ZoneRune:
		s.RuneDeck = entries
	}
}

func (s Snapshot) zoneCounts(zone Zone) map[string]int {
	entries := s.zoneEntries(zone)
	counts := make(map[string]int, len(entries))
	for _, c := range entries {
		counts[c.ID] = c.Count
	}
	return counts
}
