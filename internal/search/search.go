package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDeck ResultType = "deck"
	ResultCard ResultType = "card"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	OwnerID string     `json:"ownerId,omitempty"`
	Format  string     `json:"format,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterOwnerID string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DeckRecord is the data we index for a deck.
type DeckRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Format  string `json:"format"`
	OwnerID string `json:"ownerId"`
}

// CardRecord is the data we index for a card from the card database.
type CardRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Cost int    `json:"cost"`
}
