// Package annot encodes per-card change annotations into the free-text
// body of a history message and parses them back out. The grammar below is
// versioned by its literals: the delimiter line and the three change
// markers must never change, or older history entries become unreadable.
//
//	<primary message>
//
//	--- card notes ---
//	+ <card id>: <reason>
//	- <card id>: <reason>
//	~ <card id> (<old> → <new>): <reason>
package annot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ChangeType mirrors the diff entry the annotation belongs to.
type ChangeType string

const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"
)

// Delimiter separates the primary message from the annotation block.
const Delimiter = "--- card notes ---"

const (
	markerAdded    = "+"
	markerRemoved  = "-"
	markerModified = "~"
)

// MaxReasonLen bounds an annotation reason; MaxPrimaryLen bounds the
// primary message.
const (
	MaxReasonLen  = 200
	MaxPrimaryLen = 500
)

var (
	ErrReasonTooLong    = errors.New("annotation reason exceeds length bound")
	ErrReasonNewline    = errors.New("annotation reason contains a newline")
	ErrBadChangeType    = errors.New("unknown change type")
	ErrEmptyCardID      = errors.New("annotation card id is empty")
	ErrCardIDInvalid    = errors.New("annotation card id cannot be encoded")
	ErrPrimaryInvalid   = errors.New("primary message invalid")
	ErrPrimaryDelimiter = errors.New("primary message contains the annotation delimiter")
)

// Annotation is one operator-supplied reason attached to a changed card.
// OldCount/NewCount are meaningful only for Modified.
type Annotation struct {
	CardID   string     `json:"cardId"`
	Change   ChangeType `json:"changeType"`
	Reason   string     `json:"reason"`
	OldCount int        `json:"oldCount,omitempty"`
	NewCount int        `json:"newCount,omitempty"`
}

// New validates an annotation at creation time so malformed reasons are
// rejected before they ever reach Format.
func New(cardID string, change ChangeType, reason string) (Annotation, error) {
	a := Annotation{CardID: cardID, Change: change, Reason: reason}
	if err := a.validate(); err != nil {
		return Annotation{}, err
	}
	return a, nil
}

func (a Annotation) validate() error {
	if strings.TrimSpace(a.CardID) == "" {
		return ErrEmptyCardID
	}
	// The id is terminated by ": " on an annotation line; an id containing
	// that sequence (or a newline) would parse back differently than it
	// was written.
	if strings.ContainsRune(a.CardID, '\n') {
		return fmt.Errorf("%w: contains a newline", ErrCardIDInvalid)
	}
	if strings.Contains(a.CardID, ": ") {
		return fmt.Errorf("%w: contains %q", ErrCardIDInvalid, ": ")
	}
	switch a.Change {
	case Added, Removed, Modified:
	default:
		return fmt.Errorf("%w: %q", ErrBadChangeType, a.Change)
	}
	if len(a.Reason) > MaxReasonLen {
		return fmt.Errorf("%w: %d chars", ErrReasonTooLong, len(a.Reason))
	}
	if strings.ContainsRune(a.Reason, '\n') {
		return ErrReasonNewline
	}
	return nil
}

// Format renders the history-message envelope: the primary message, then,
// only when annotations exist, the delimiter and one line per annotation.
func Format(primary string, annotations []Annotation) (string, error) {
	if err := validatePrimary(primary); err != nil {
		return "", err
	}
	if len(annotations) == 0 {
		return primary, nil
	}

	var b strings.Builder
	b.WriteString(primary)
	b.WriteString("\n\n")
	b.WriteString(Delimiter)
	for _, a := range annotations {
		if err := a.validate(); err != nil {
			return "", fmt.Errorf("annotation for %q: %w", a.CardID, err)
		}
		b.WriteString("\n")
		b.WriteString(formatLine(a))
	}
	return b.String(), nil
}

func validatePrimary(primary string) error {
	if len(primary) == 0 || len(primary) > MaxPrimaryLen {
		return fmt.Errorf("%w: %d chars", ErrPrimaryInvalid, len(primary))
	}
	if strings.HasSuffix(primary, "\n") {
		return fmt.Errorf("%w: trailing newline", ErrPrimaryInvalid)
	}
	for _, line := range strings.Split(primary, "\n") {
		if strings.TrimSpace(line) == Delimiter {
			return ErrPrimaryDelimiter
		}
	}
	return nil
}

func formatLine(a Annotation) string {
	switch a.Change {
	case Added:
		return fmt.Sprintf("%s %s: %s", markerAdded, a.CardID, a.Reason)
	case Removed:
		return fmt.Sprintf("%s %s: %s", markerRemoved, a.CardID, a.Reason)
	default:
		return fmt.Sprintf("%s %s (%d → %d): %s", markerModified, a.CardID, a.OldCount, a.NewCount, a.Reason)
	}
}

var (
	plainLineRe    = regexp.MustCompile(`^([+-]) (.+?): (.*)$`)
	modifiedLineRe = regexp.MustCompile(`^~ (.+?) \((\d+) → (\d+)\): (.*)$`)
)

// Parse reverses Format. A message without the delimiter line is an
// annotation-free entry (everything is the primary message); that is how
// history written before annotations existed stays readable. Individually
// malformed annotation lines are dropped, never an error.
func Parse(raw string) (string, []Annotation) {
	lines := strings.Split(raw, "\n")
	delimAt := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == Delimiter {
			delimAt = i
			break
		}
	}
	if delimAt < 0 {
		return raw, nil
	}

	primary := strings.TrimRight(strings.Join(lines[:delimAt], "\n"), "\n")

	var annotations []Annotation
	for _, line := range lines[delimAt+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if a, ok := parseLine(line); ok {
			annotations = append(annotations, a)
		}
	}
	return primary, annotations
}

func parseLine(line string) (Annotation, bool) {
	if m := modifiedLineRe.FindStringSubmatch(line); m != nil {
		oldCount, err1 := strconv.Atoi(m[2])
		newCount, err2 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil {
			return Annotation{}, false
		}
		a := Annotation{CardID: m[1], Change: Modified, Reason: m[4], OldCount: oldCount, NewCount: newCount}
		return a, a.validate() == nil
	}
	if m := plainLineRe.FindStringSubmatch(line); m != nil {
		change := Added
		if m[1] == markerRemoved {
			change = Removed
		}
		a := Annotation{CardID: m[2], Change: change, Reason: m[3]}
		return a, a.validate() == nil
	}
	return Annotation{}, false
}
