package deck

import (
	"fmt"
	"strings"
)

// AutoSavePrefix marks history entries written by unattended periodic
// saves. The literal is part of the stored history text; parsing old
// entries depends on it staying stable.
const AutoSavePrefix = "[auto] "

// Summarize renders a diff as a short stable sentence, e.g.
// "Added 2 cards, removed 1 card". Zero-valued categories are omitted and
// special-slot changes are surfaced as their own sentences.
func Summarize(d Diff) string {
	var parts []string
	if n := len(d.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("added %d %s", n, pluralCards(n)))
	}
	if n := len(d.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("removed %d %s", n, pluralCards(n)))
	}
	if n := len(d.Modified); n > 0 {
		parts = append(parts, fmt.Sprintf("updated %d %s", n, pluralCounts(n)))
	}

	var sentences []string
	if len(parts) > 0 {
		sentences = append(sentences, capitalize(strings.Join(parts, ", ")))
	}

	legends, battlefields := 0, 0
	for _, c := range d.SlotChanges {
		switch c.Slot {
		case SlotLegend:
			legends++
		case SlotBattlefield:
			battlefields++
		}
	}
	if legends > 0 {
		sentences = append(sentences, "Legend changed")
	}
	switch {
	case battlefields == 1:
		sentences = append(sentences, "Battlefield changed")
	case battlefields > 1:
		sentences = append(sentences, fmt.Sprintf("%d battlefields changed", battlefields))
	}

	if len(sentences) == 0 {
		return "No changes"
	}
	return strings.Join(sentences, ". ")
}

// AutoSummary is the entire message body of an unattended save.
func AutoSummary(d Diff) string {
	return AutoSavePrefix + Summarize(d)
}

func pluralCards(n int) string {
	if n == 1 {
		return "card"
	}
	return "cards"
}

func pluralCounts(n int) string {
	if n == 1 {
		return "card count"
	}
	return "card counts"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
