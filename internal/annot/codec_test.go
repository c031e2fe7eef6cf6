package annot

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestFormatModifiedLineExact(t *testing.T) {
	anns := []Annotation{{
		CardID:   "island-1",
		Change:   Modified,
		OldCount: 10,
		NewCount: 12,
		Reason:   "Need more blue sources",
	}}

	raw, err := Format("Tuning the curve", anns)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	parts := strings.SplitN(raw, Delimiter+"\n", 2)
	if len(parts) != 2 {
		t.Fatalf("formatted message missing delimiter section:\n%s", raw)
	}
	if got, want := parts[1], "~ island-1 (10 → 12): Need more blue sources"; got != want {
		t.Fatalf("annotation section = %q, want %q", got, want)
	}

	primary, parsed := Parse(raw)
	if primary != "Tuning the curve" {
		t.Errorf("Parse() primary = %q", primary)
	}
	if !reflect.DeepEqual(parsed, anns) {
		t.Errorf("Parse() annotations = %+v, want %+v", parsed, anns)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		primary string
		anns    []Annotation
	}{
		{"no annotations", "Swapped in more removal", nil},
		{
			"all change types",
			"Rebalancing after playtest",
			[]Annotation{
				{CardID: "bolt", Change: Added, Reason: "cheap interaction"},
				{CardID: "shock", Change: Removed, Reason: "outclassed"},
				{CardID: "island-1", Change: Modified, OldCount: 8, NewCount: 10, Reason: "curve went up"},
			},
		},
		{
			"ids with spaces and empty reason",
			"Weekly tune",
			[]Annotation{
				{CardID: "Sol Ring", Change: Added, Reason: ""},
				{CardID: "Mana Vault", Change: Removed, Reason: "banned in pod"},
			},
		},
		{
			"multiline primary",
			"Big rework\n\nSee thread for context",
			[]Annotation{{CardID: "a", Change: Added, Reason: "r"}},
		},
		{
			"id with a bare colon",
			"Set import",
			[]Annotation{
				{CardID: "m21:bolt", Change: Added, Reason: "new printing"},
				{CardID: "m21:island-1", Change: Modified, OldCount: 4, NewCount: 6, Reason: "basics swap"},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Format(tc.primary, tc.anns)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			primary, anns := Parse(raw)
			if primary != tc.primary {
				t.Errorf("primary round trip = %q, want %q", primary, tc.primary)
			}
			if !reflect.DeepEqual(anns, tc.anns) {
				t.Errorf("annotations round trip = %+v, want %+v", anns, tc.anns)
			}
		})
	}
}

func TestParseWithoutDelimiterIsLegacyMessage(t *testing.T) {
	raw := "Initial import of the deck\n\nNo structured notes here."
	primary, anns := Parse(raw)
	if primary != raw {
		t.Fatalf("Parse() primary = %q, want full raw text", primary)
	}
	if len(anns) != 0 {
		t.Fatalf("Parse() annotations = %+v, want none", anns)
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	raw := strings.Join([]string{
		"Tidy up",
		"",
		Delimiter,
		"+ bolt: good card",
		"this line is not an annotation",
		"~ island-1 (x → y): broken counts",
		"? unknown-marker: nope",
		"- shock: cut",
	}, "\n")

	primary, anns := Parse(raw)
	if primary != "Tidy up" {
		t.Fatalf("Parse() primary = %q", primary)
	}
	want := []Annotation{
		{CardID: "bolt", Change: Added, Reason: "good card"},
		{CardID: "shock", Change: Removed, Reason: "cut"},
	}
	if !reflect.DeepEqual(anns, want) {
		t.Fatalf("Parse() annotations = %+v, want %+v", anns, want)
	}
}

func TestNewRejectsBadAnnotations(t *testing.T) {
	if _, err := New("card", Added, strings.Repeat("x", MaxReasonLen+1)); !errors.Is(err, ErrReasonTooLong) {
		t.Errorf("New() long reason error = %v, want ErrReasonTooLong", err)
	}
	if _, err := New("card", Added, "line one\nline two"); !errors.Is(err, ErrReasonNewline) {
		t.Errorf("New() newline reason error = %v, want ErrReasonNewline", err)
	}
	if _, err := New("", Added, "fine"); !errors.Is(err, ErrEmptyCardID) {
		t.Errorf("New() empty id error = %v, want ErrEmptyCardID", err)
	}
	if _, err := New("card", ChangeType("renamed"), "fine"); !errors.Is(err, ErrBadChangeType) {
		t.Errorf("New() bad change type error = %v, want ErrBadChangeType", err)
	}
	if _, err := New("set: alpha/bolt", Added, "fine"); !errors.Is(err, ErrCardIDInvalid) {
		t.Errorf("New() colliding id error = %v, want ErrCardIDInvalid", err)
	}
	if _, err := New("line one\nline two", Added, "fine"); !errors.Is(err, ErrCardIDInvalid) {
		t.Errorf("New() newline id error = %v, want ErrCardIDInvalid", err)
	}
}

// The card id is terminated by ": " on the wire, so an id containing that
// sequence could not be read back as written. Format must refuse it
// instead of emitting a line that parses into a different annotation.
func TestFormatRejectsUnencodableCardID(t *testing.T) {
	anns := []Annotation{{CardID: "set: alpha/bolt", Change: Added, Reason: "why"}}
	if _, err := Format("msg", anns); !errors.Is(err, ErrCardIDInvalid) {
		t.Fatalf("Format() colliding id error = %v, want ErrCardIDInvalid", err)
	}
	anns[0].CardID = "line one\nline two"
	if _, err := Format("msg", anns); !errors.Is(err, ErrCardIDInvalid) {
		t.Fatalf("Format() newline id error = %v, want ErrCardIDInvalid", err)
	}
}

func TestFormatRejectsBadPrimary(t *testing.T) {
	if _, err := Format("", nil); !errors.Is(err, ErrPrimaryInvalid) {
		t.Errorf("Format() empty primary error = %v, want ErrPrimaryInvalid", err)
	}
	if _, err := Format(strings.Repeat("m", MaxPrimaryLen+1), nil); !errors.Is(err, ErrPrimaryInvalid) {
		t.Errorf("Format() long primary error = %v, want ErrPrimaryInvalid", err)
	}
	if _, err := Format("msg\n"+Delimiter, nil); !errors.Is(err, ErrPrimaryDelimiter) {
		t.Errorf("Format() delimiter primary error = %v, want ErrPrimaryDelimiter", err)
	}
}

func TestFormatWithoutAnnotationsHasNoDelimiter(t *testing.T) {
	raw, err := Format("Just a save", nil)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.Contains(raw, Delimiter) {
		t.Fatalf("Format() with no annotations emitted delimiter: %q", raw)
	}
	if raw != "Just a save" {
		t.Fatalf("Format() = %q, want bare primary", raw)
	}
}
