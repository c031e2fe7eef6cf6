package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"deckvault/api/internal/deck"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetDeck(ctx context.Context, id string) (DeckInfo, error)
	GetSnapshot(ctx context.Context, deckID, version string) (deck.Snapshot, error)
}

// CardNamer resolves card ids to display names. Lookups that fail fall
// back to the raw id so an export never blocks on the card database.
type CardNamer interface {
	CardName(ctx context.Context, id string) string
}

// DeckInfo holds basic deck metadata
type DeckInfo struct {
	ID        string
	Name      string
	Format    string
	OwnerName string
	UpdatedAt time.Time
}

// Service provides deck export functionality
type Service struct {
	store DataStore
	cards CardNamer
}

// NewService creates a new export service
func NewService(store DataStore, cards CardNamer) *Service {
	return &Service{store: store, cards: cards}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	deckInfo, err := s.store.GetDeck(ctx, req.DeckID)
	if err != nil {
		return nil, fmt.Errorf("get deck: %w", err)
	}

	snapshot, err := s.store.GetSnapshot(ctx, req.DeckID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	data := s.buildTemplateData(ctx, deckInfo, snapshot)

	html, err := RenderDeckHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(deckInfo.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, deckInfo.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (s *Service) buildTemplateData(ctx context.Context, info DeckInfo, snapshot deck.Snapshot) TemplateData {
	data := TemplateData{
		Title:      info.Name,
		Format:     info.Format,
		Author:     info.OwnerName,
		UpdatedAt:  info.UpdatedAt,
		TotalCards: snapshot.TotalCards(),
	}

	if snapshot.Legend != nil {
		data.Legend = s.name(ctx, snapshot.Legend.ID)
	}
	for _, bf := range snapshot.Battlefields {
		data.Battlefields = append(data.Battlefields, s.name(ctx, bf.ID))
	}

	sections := []struct {
		title string
		zone  deck.Zone
	}{
		{"Main Deck", deck.ZoneMain},
		{"Sideboard", deck.ZoneSideboard},
		{"Rune Deck", deck.ZoneRune},
	}
	for _, sec := range sections {
		counts := snapshot.Counts(sec.zone)
		if len(counts) == 0 {
			continue
		}
		section := TemplateSection{Name: sec.title}
		ids := make([]string, 0, len(counts))
		for id := range counts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			section.Total += counts[id]
			section.Entries = append(section.Entries, TemplateEntry{
				Count: counts[id],
				Name:  s.name(ctx, id),
			})
		}
		data.Sections = append(data.Sections, section)
	}
	return data
}

func (s *Service) name(ctx context.Context, id string) string {
	if s.cards == nil {
		return id
	}
	if name := s.cards.CardName(ctx, id); name != "" {
		return name
	}
	return id
}
