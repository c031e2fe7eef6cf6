package search

import (
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDeck indexes a deck (fire-and-forget to Meilisearch).
func (s *Service) IndexDeck(d DeckRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDeck(d); err != nil {
			log.Printf("search: index deck %s: %v", d.ID, err)
		}
	}()
}

// IndexCard indexes a card looked up from the card database.
func (s *Service) IndexCard(c CardRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCard(c); err != nil {
			log.Printf("search: index card %s: %v", c.ID, err)
		}
	}()
}

// DeleteDeck removes a deck from the search index (fire-and-forget).
func (s *Service) DeleteDeck(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDeck(id); err != nil {
			log.Printf("search: delete deck %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes every known deck to Meilisearch. Called during
// bootstrap when Meilisearch is healthy.
func (s *Service) ReindexAll(decks []DeckRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if len(decks) > 0 {
		if err := s.meili.IndexDecks(decks); err != nil {
			log.Printf("search: reindex decks: %v", err)
		}
	}
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
