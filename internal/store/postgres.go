package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = newID()
	}
	const insert = `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, display_name, email, password_hash, created_at, updated_at
	`
	var out User
	err := s.db.QueryRowContext(ctx, insert, user.ID, user.DisplayName, user.Email, user.PasswordHash).
		Scan(&out.ID, &out.DisplayName, &out.Email, &out.PasswordHash, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT id, display_name, email, password_hash, created_at, updated_at FROM users WHERE email=$1`
	var user User
	err := s.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const query = `SELECT id, display_name, email, password_hash, created_at, updated_at FROM users WHERE id=$1`
	var user User
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) CreateDeck(ctx context.Context, deck Deck) (Deck, error) {
	if deck.ID == "" {
		deck.ID = newID()
	}
	const insert = `
		INSERT INTO decks (id, owner_id, name, format)
		VALUES ($1, $2, $3, $4)
		RETURNING id, owner_id, name, format, created_at, updated_at
	`
	var out Deck
	err := s.db.QueryRowContext(ctx, insert, deck.ID, deck.OwnerID, deck.Name, deck.Format).
		Scan(&out.ID, &out.OwnerID, &out.Name, &out.Format, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Deck{}, fmt.Errorf("insert deck: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetDeck(ctx context.Context, deckID string) (Deck, error) {
	const query = `SELECT id, owner_id, name, format, created_at, updated_at FROM decks WHERE id=$1`
	var deck Deck
	err := s.db.QueryRowContext(ctx, query, deckID).
		Scan(&deck.ID, &deck.OwnerID, &deck.Name, &deck.Format, &deck.CreatedAt, &deck.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Deck{}, ErrNotFound
	}
	if err != nil {
		return Deck{}, fmt.Errorf("lookup deck: %w", err)
	}
	return deck, nil
}

func (s *PostgresStore) ListDecksByOwner(ctx context.Context, ownerID string) ([]Deck, error) {
	const query = `SELECT id, owner_id, name, format, created_at, updated_at FROM decks WHERE owner_id=$1 ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()

	decks := make([]Deck, 0)
	for rows.Next() {
		var deck Deck
		if err := rows.Scan(&deck.ID, &deck.OwnerID, &deck.Name, &deck.Format, &deck.CreatedAt, &deck.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		decks = append(decks, deck)
	}
	return decks, rows.Err()
}

func (s *PostgresStore) DeleteDeck(ctx context.Context, deckID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM variants WHERE deck_id=$1`, deckID); err != nil {
		return fmt.Errorf("delete deck variants: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id=$1`, deckID); err != nil {
		return fmt.Errorf("delete deck: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAllDecks(ctx context.Context) ([]Deck, error) {
	const query = `SELECT id, owner_id, name, format, created_at, updated_at FROM decks ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all decks: %w", err)
	}
	defer rows.Close()

	decks := make([]Deck, 0)
	for rows.Next() {
		var deck Deck
		if err := rows.Scan(&deck.ID, &deck.OwnerID, &deck.Name, &deck.Format, &deck.CreatedAt, &deck.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		decks = append(decks, deck)
	}
	return decks, rows.Err()
}

func (s *PostgresStore) TouchDeck(ctx context.Context, deckID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE decks SET updated_at=NOW() WHERE id=$1`, deckID); err != nil {
		return fmt.Errorf("touch deck: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateVariant(ctx context.Context, variant Variant) (Variant, error) {
	if variant.ID == "" {
		variant.ID = newID()
	}
	if variant.Status == "" {
		variant.Status = VariantOpen
	}
	const insert = `
		INSERT INTO variants (id, deck_id, name, branch_name, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, deck_id, name, branch_name, status, created_by, created_at
	`
	var out Variant
	err := s.db.QueryRowContext(ctx, insert, variant.ID, variant.DeckID, variant.Name, variant.BranchName, variant.Status, variant.CreatedBy).
		Scan(&out.ID, &out.DeckID, &out.Name, &out.BranchName, &out.Status, &out.CreatedBy, &out.CreatedAt)
	if err != nil {
		return Variant{}, fmt.Errorf("insert variant: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetVariant(ctx context.Context, variantID string) (Variant, error) {
	const query = `SELECT id, deck_id, name, branch_name, status, created_by, created_at FROM variants WHERE id=$1`
	var variant Variant
	err := s.db.QueryRowContext(ctx, query, variantID).
		Scan(&variant.ID, &variant.DeckID, &variant.Name, &variant.BranchName, &variant.Status, &variant.CreatedBy, &variant.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Variant{}, ErrNotFound
	}
	if err != nil {
		return Variant{}, fmt.Errorf("lookup variant: %w", err)
	}
	return variant, nil
}

func (s *PostgresStore) ListVariants(ctx context.Context, deckID string) ([]Variant, error) {
	const query = `SELECT id, deck_id, name, branch_name, status, created_by, created_at FROM variants WHERE deck_id=$1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, deckID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	variants := make([]Variant, 0)
	for rows.Next() {
		var variant Variant
		if err := rows.Scan(&variant.ID, &variant.DeckID, &variant.Name, &variant.BranchName, &variant.Status, &variant.CreatedBy, &variant.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, variant)
	}
	return variants, rows.Err()
}

func (s *PostgresStore) SetVariantStatus(ctx context.Context, variantID, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE variants SET status=$2 WHERE id=$1`, variantID, status)
	if err != nil {
		return fmt.Errorf("update variant status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update variant status: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("id generation: %v", err))
	}
	return hex.EncodeToString(buf)
}
