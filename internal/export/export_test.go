package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"deckvault/api/internal/deck"
)

type fakeStore struct {
	info     DeckInfo
	snapshot deck.Snapshot
}

func (f *fakeStore) GetDeck(ctx context.Context, id string) (DeckInfo, error) {
	return f.info, nil
}

func (f *fakeStore) GetSnapshot(ctx context.Context, deckID, version string) (deck.Snapshot, error) {
	return f.snapshot, nil
}

type fakeNamer struct {
	names map[string]string
}

func (f *fakeNamer) CardName(ctx context.Context, id string) string {
	return f.names[id]
}

func TestExportHTML(t *testing.T) {
	store := &fakeStore{
		info: DeckInfo{
			ID:        "deck-1",
			Name:      "Azure Tempo",
			Format:    "standard",
			OwnerName: "Avery",
			UpdatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		snapshot: deck.Snapshot{
			Cards: []deck.CardCount{
				{ID: "island-1", Count: 10},
				{ID: "drake-1", Count: 4},
			},
			Sideboard: []deck.CardCount{
				{ID: "dispel-1", Count: 2},
			},
			Legend:       &deck.CardRef{ID: "legend-1"},
			Battlefields: []deck.CardRef{{ID: "bf-1"}},
		},
	}
	namer := &fakeNamer{names: map[string]string{
		"island-1": "Island",
		"drake-1":  "Spectral Drake",
		"legend-1": "Tidecaller Ryn",
	}}

	svc := NewService(store, namer)
	result, err := svc.Export(context.Background(), Request{
		DeckID:  "deck-1",
		Version: "latest",
		Format:  FormatHTML,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if result.Filename != "Azure-Tempo.html" {
		t.Errorf("unexpected filename: %s", result.Filename)
	}

	html := string(result.Data)
	for _, want := range []string{
		"Azure Tempo",
		"Spectral Drake",
		"Island",
		"Tidecaller Ryn",
		"Main Deck (14)",
		"Sideboard (2)",
		"bf-1", // no name mapped, falls back to id
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected rendered HTML to contain %q", want)
		}
	}
	if strings.Contains(html, "Rune Deck") {
		t.Error("empty rune deck section should be omitted")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	_, err := svc.Export(context.Background(), Request{DeckID: "d", Format: "docx"})
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Azure Tempo", "Azure-Tempo"},
		{"deck/with\\bad:chars", "deckwithbadchars"},
		{"", "deck"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b&c")
	if got != "a%20b%26c" {
		t.Errorf("percentEncodeForDataURL() = %q", got)
	}
}
