package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Deck is the metadata row for one versioned deck; the card data itself
// lives in the deck's git repository.
type Deck struct {
	ID        string
	OwnerID   string
	Name      string
	Format    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Variant is an editing branch of a deck. Status moves open → merged or
// abandoned; the branch itself lives in git.
type Variant struct {
	ID         string
	DeckID     string
	Name       string
	BranchName string
	Status     string
	CreatedBy  string
	CreatedAt  time.Time
}

const (
	VariantOpen      = "open"
	VariantMerged    = "merged"
	VariantAbandoned = "abandoned"
)

// CommitInfo is a history entry read back from a deck repository. Message
// is the verbatim stored envelope text so callers can parse annotations
// back out of it.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
