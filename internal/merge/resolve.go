package merge

import (
	"errors"
	"fmt"

	"deckvault/api/internal/deck"
)

// Resolution is an explicit per-conflict decision. Nothing is ever
// auto-resolved; every detected conflict needs exactly one of these.
type Resolution string

const (
	KeepSource Resolution = "keep-source"
	KeepTarget Resolution = "keep-target"
	KeepBoth   Resolution = "keep-both"
)

var (
	ErrMissingResolution = errors.New("conflict has no resolution")
	ErrUnknownPolicy     = errors.New("unknown resolution policy")
	ErrInvalidPolicy     = errors.New("resolution policy invalid for this conflict")
	ErrCopyLimit         = errors.New("card count exceeds format copy limit")
)

// ValidationError reports a merge-resolution failure and names the card
// (or slot) it is about so the caller can re-prompt precisely.
type ValidationError struct {
	Key    string
	CardID string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.CardID != "" {
		return fmt.Sprintf("%s: %v", e.CardID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Resolve applies both diffs on top of the ancestor. Non-conflicting
// changes apply unconditionally from both sides; conflicting ones apply
// per the supplied resolutions, keyed by Conflict.Key. The merged snapshot
// is re-validated against the model invariants before being returned.
func Resolve(ancestor deck.Snapshot, source, target deck.Diff, conflicts []Conflict, resolutions map[string]Resolution) (deck.Snapshot, error) {
	conflictKeys := make(map[string]Conflict, len(conflicts))
	for _, c := range conflicts {
		conflictKeys[c.Key()] = c
	}

	merged := ancestor.Clone()

	for _, zone := range deck.CountZones {
		counts := merged.Counts(zone)
		applyCountChanges(counts, zone, source, conflictKeys)
		applyCountChanges(counts, zone, target, conflictKeys)
		merged.SetCounts(zone, counts)
	}
	applySlotChanges(&merged, source, conflictKeys)
	applySlotChanges(&merged, target, conflictKeys)

	for _, c := range conflicts {
		policy, ok := resolutions[c.Key()]
		if !ok {
			return deck.Snapshot{}, &ValidationError{Key: c.Key(), CardID: c.CardID, Err: ErrMissingResolution}
		}
		if err := applyResolution(&merged, c, policy, ancestor); err != nil {
			return deck.Snapshot{}, err
		}
	}

	if err := merged.Validate(); err != nil {
		return deck.Snapshot{}, fmt.Errorf("merged snapshot: %w", err)
	}
	return merged, nil
}

// CheckCopyLimits is the explicit post-merge cap check: any stackable card
// whose merged count exceeds the format's per-card copy limit is reported
// as a typed failure naming the card. Nothing is silently clamped.
func CheckCopyLimits(s deck.Snapshot, limit int) error {
	if limit <= 0 {
		return nil
	}
	for _, zone := range deck.CountZones {
		for id, count := range s.Counts(zone) {
			if count > limit {
				return &ValidationError{
					Key:    string(zone) + "/" + id,
					CardID: id,
					Err:    fmt.Errorf("%w: %d > %d", ErrCopyLimit, count, limit),
				}
			}
		}
	}
	return nil
}

// applyCountChanges writes one diff's non-conflicting changes for a zone
// into counts. Changes carry absolute resulting counts, so applying the
// same agreed change from both sides is idempotent.
func applyCountChanges(counts map[string]int, zone deck.Zone, d deck.Diff, conflictKeys map[string]Conflict) {
	skip := func(id string) bool {
		_, conflicted := conflictKeys[string(zone)+"/"+id]
		return conflicted
	}
	for _, c := range d.Added {
		if c.Zone == zone && !skip(c.ID) {
			counts[c.ID] = c.Count
		}
	}
	for _, c := range d.Modified {
		if c.Zone == zone && !skip(c.ID) {
			counts[c.ID] = c.NewCount
		}
	}
	for _, c := range d.Removed {
		if c.Zone == zone && !skip(c.ID) {
			delete(counts, c.ID)
		}
	}
}

func applySlotChanges(s *deck.Snapshot, d deck.Diff, conflictKeys map[string]Conflict) {
	for _, c := range d.SlotChanges {
		switch c.Slot {
		case deck.SlotLegend:
			if _, conflicted := conflictKeys[string(deck.SlotLegend)]; conflicted {
				continue
			}
			setLegend(s, c.NewCardID)
		case deck.SlotBattlefield:
			if _, conflicted := conflictKeys["battlefield/"+c.OldCardID]; conflicted {
				continue
			}
			removeBattlefield(s, c.OldCardID)
			addBattlefield(s, c.NewCardID)
		}
	}
}

func applyResolution(s *deck.Snapshot, c Conflict, policy Resolution, ancestor deck.Snapshot) error {
	switch policy {
	case KeepSource:
		applyChange(s, c, c.Source)
		return nil
	case KeepTarget:
		applyChange(s, c, c.Target)
		return nil
	case KeepBoth:
		return applyKeepBoth(s, c, ancestor)
	default:
		return &ValidationError{Key: c.Key(), CardID: c.CardID, Err: fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)}
	}
}

func applyChange(s *deck.Snapshot, c Conflict, change Change) {
	if c.Slot == deck.SlotLegend {
		setLegend(s, change.NewID)
		return
	}
	if c.Slot == deck.SlotBattlefield {
		removeBattlefield(s, change.OldID)
		addBattlefield(s, change.NewID)
		return
	}
	counts := s.Counts(c.Zone)
	if n := change.resultingCount(); n > 0 {
		counts[c.CardID] = n
	} else {
		delete(counts, c.CardID)
	}
	s.SetCounts(c.Zone, counts)
}

// applyKeepBoth sums both sides. It is only defined for stackable cards
// where both branches leave the card in the deck (add/add or mod/mod) and
// for the bounded battlefield list; every other shape, including the
// singleton legend slot and modify-vs-remove, is an invalid policy.
func applyKeepBoth(s *deck.Snapshot, c Conflict, ancestor deck.Snapshot) error {
	invalid := func(reason string) error {
		return &ValidationError{Key: c.Key(), CardID: c.CardID, Err: fmt.Errorf("%w: %s", ErrInvalidPolicy, reason)}
	}

	if c.Slot == deck.SlotLegend {
		return invalid("legend is a singleton slot")
	}
	if c.Slot == deck.SlotBattlefield {
		removeBattlefield(s, c.Source.OldID)
		addBattlefield(s, c.Source.NewID)
		addBattlefield(s, c.Target.NewID)
		return nil
	}

	if c.Source.Kind != c.Target.Kind {
		return invalid(fmt.Sprintf("%s vs %s", c.Source.Kind, c.Target.Kind))
	}

	var total int
	switch c.Source.Kind {
	case KindAdded:
		total = c.Source.NewCount + c.Target.NewCount
	case KindModified:
		base := ancestor.Counts(c.Zone)[c.CardID]
		total = base + (c.Source.NewCount - base) + (c.Target.NewCount - base)
	default:
		return invalid("card removed on one side")
	}
	if total < 1 {
		return invalid(fmt.Sprintf("summed count %d", total))
	}

	counts := s.Counts(c.Zone)
	counts[c.CardID] = total
	s.SetCounts(c.Zone, counts)
	return nil
}

func setLegend(s *deck.Snapshot, id string) {
	if id == "" {
		s.Legend = nil
		return
	}
	s.Legend = &deck.CardRef{ID: id}
}

func removeBattlefield(s *deck.Snapshot, id string) {
	if id == "" {
		return
	}
	kept := s.Battlefields[:0]
	for _, b := range s.Battlefields {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	s.Battlefields = kept
}

func addBattlefield(s *deck.Snapshot, id string) {
	if id == "" {
		return
	}
	for _, b := range s.Battlefields {
		if b.ID == id {
			return
		}
	}
	s.Battlefields = append(s.Battlefields, deck.CardRef{ID: id})
}
