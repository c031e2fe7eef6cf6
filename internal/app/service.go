package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deckvault/api/internal/annot"
	"deckvault/api/internal/auth"
	"deckvault/api/internal/authpw"
	"deckvault/api/internal/cards"
	"deckvault/api/internal/config"
	"deckvault/api/internal/deck"
	"deckvault/api/internal/export"
	"deckvault/api/internal/gitdeck"
	"deckvault/api/internal/images"
	"deckvault/api/internal/merge"
	"deckvault/api/internal/search"
	"deckvault/api/internal/session"
	"deckvault/api/internal/store"
)

// asyncDiffThreshold is the card count above which a diff runs on its own
// goroutine with a deadline instead of inline on the request path.
const (
	asyncDiffThreshold = 100
	diffTimeout        = 5 * time.Second
)

// copyLimits caps copies of a single card per format. Formats not listed
// fall back to defaultCopyLimit.
var copyLimits = map[string]int{
	"standard":  3,
	"eternal":   4,
	"singleton": 1,
}

const defaultCopyLimit = 4

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	CreateDeck(ctx context.Context, d store.Deck) (store.Deck, error)
	GetDeck(ctx context.Context, deckID string) (store.Deck, error)
	ListDecksByOwner(ctx context.Context, ownerID string) ([]store.Deck, error)
	TouchDeck(ctx context.Context, deckID string) error
	DeleteDeck(ctx context.Context, deckID string) error
	CreateVariant(ctx context.Context, v store.Variant) (store.Variant, error)
	GetVariant(ctx context.Context, variantID string) (store.Variant, error)
	ListVariants(ctx context.Context, deckID string) ([]store.Variant, error)
	SetVariantStatus(ctx context.Context, variantID, status string) error
}

type gitService interface {
	EnsureDeckRepo(deckID string, initial deck.Snapshot, author, message string) error
	EnsureBranch(deckID, branchName, fromBranch string) error
	CommitSnapshot(deckID, branchName string, snapshot deck.Snapshot, author, message string) (store.CommitInfo, error)
	GetHeadSnapshot(deckID, branchName string) (deck.Snapshot, store.CommitInfo, error)
	GetSnapshotByHash(deckID, hash string) (deck.Snapshot, error)
	History(deckID, branchName string, limit int) ([]store.CommitInfo, error)
	MergeBase(deckID, branchName string) (deck.Snapshot, store.CommitInfo, error)
	CommitMerge(deckID, sourceBranch string, merged deck.Snapshot, author, message string) (store.CommitInfo, error)
	DeleteDeckRepo(deckID string) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID, displayName string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	git       gitService
	sessions  sessionStore
	passwords *authpw.Service
	search    *search.Service
	cards     *cards.Cache
	images    *images.Service
	exporter  *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, gitService *gitdeck.Service, sessions *session.RedisStore, passwords *authpw.Service, searchSvc *search.Service, cardCache *cards.Cache, imageSvc *images.Service) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		git:       gitService,
		sessions:  sessions,
		passwords: passwords,
		search:    searchSvc,
		cards:     cardCache,
		images:    imageSvc,
	}
	s.exporter = export.NewService(exportSource{s}, cardNamer{cardCache})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---- auth ----

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, domainError(http.StatusUnprocessableEntity, "SIGNUP_FAILED", err.Error(), nil)
	}
	return s.issueSession(ctx, user.ID, user.DisplayName)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user.ID, user.DisplayName)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	data, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, data.UserID, data.DisplayName)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) issueSession(ctx context.Context, userID, displayName string) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := randomID()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  userID,
		Name: displayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := randomID() + randomID()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), userID, displayName, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       userID,
		UserName:     displayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// ---- decks ----

type CreateDeckInput struct {
	Name     string        `json:"name"`
	Format   string        `json:"format"`
	Snapshot deck.Snapshot `json:"snapshot"`
}

type DeckDetail struct {
	Deck     store.Deck
	Snapshot deck.Snapshot
	Head     store.CommitInfo
	Variants []store.Variant
}

func (s *Service) CreateDeck(ctx context.Context, sess Session, input CreateDeckInput) (store.Deck, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Deck{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if err := input.Snapshot.Validate(); err != nil {
		return store.Deck{}, domainError(http.StatusUnprocessableEntity, "INVALID_SNAPSHOT", err.Error(), nil)
	}

	created, err := s.store.CreateDeck(ctx, store.Deck{
		OwnerID: sess.UserID,
		Name:    name,
		Format:  strings.TrimSpace(input.Format),
	})
	if err != nil {
		return store.Deck{}, fmt.Errorf("create deck: %w", err)
	}

	if err := s.git.EnsureDeckRepo(created.ID, input.Snapshot, sess.UserName, "Initial deck list"); err != nil {
		return store.Deck{}, fmt.Errorf("init deck repo: %w", err)
	}

	s.indexDeck(created)
	return created, nil
}

func (s *Service) GetDeck(ctx context.Context, sess Session, deckID string) (DeckDetail, error) {
	deckRec, err := s.requireDeck(ctx, sess, deckID)
	if err != nil {
		return DeckDetail{}, err
	}

	snapshot, head, err := s.git.GetHeadSnapshot(deckID, gitdeck.MainBranch)
	if err != nil {
		return DeckDetail{}, fmt.Errorf("read deck head: %w", err)
	}

	variants, err := s.store.ListVariants(ctx, deckID)
	if err != nil {
		return DeckDetail{}, err
	}

	return DeckDetail{Deck: deckRec, Snapshot: snapshot, Head: head, Variants: variants}, nil
}

func (s *Service) ListDecks(ctx context.Context, sess Session) ([]store.Deck, error) {
	return s.store.ListDecksByOwner(ctx, sess.UserID)
}

func (s *Service) DeleteDeck(ctx context.Context, sess Session, deckID string) error {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return err
	}
	if err := s.store.DeleteDeck(ctx, deckID); err != nil {
		return fmt.Errorf("delete deck: %w", err)
	}
	if err := s.git.DeleteDeckRepo(deckID); err != nil {
		return fmt.Errorf("delete deck repo: %w", err)
	}
	if s.search != nil {
		s.search.DeleteDeck(deckID)
	}
	return nil
}

// ---- save flow ----

type SaveInput struct {
	VariantID string            `json:"variantId,omitempty"`
	Snapshot  deck.Snapshot     `json:"snapshot"`
	Message   string            `json:"message,omitempty"`
	Reasons   map[string]string `json:"reasons,omitempty"`
}

type SaveResult struct {
	Commit  store.CommitInfo
	Diff    deck.Diff
	Summary string
}

type DiffPreview struct {
	Diff    deck.Diff
	Summary string
}

func (s *Service) PreviewSave(ctx context.Context, sess Session, deckID string, input SaveInput) (DiffPreview, error) {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return DiffPreview{}, err
	}
	if err := input.Snapshot.Validate(); err != nil {
		return DiffPreview{}, domainError(http.StatusUnprocessableEntity, "INVALID_SNAPSHOT", err.Error(), nil)
	}

	branch, err := s.resolveBranch(ctx, deckID, input.VariantID)
	if err != nil {
		return DiffPreview{}, err
	}

	current, _, err := s.git.GetHeadSnapshot(deckID, branch)
	if err != nil {
		return DiffPreview{}, fmt.Errorf("read deck head: %w", err)
	}

	diff, err := s.computeDiff(ctx, current, input.Snapshot)
	if err != nil {
		return DiffPreview{}, err
	}
	return DiffPreview{Diff: diff, Summary: deck.Summarize(diff)}, nil
}

func (s *Service) SaveSnapshot(ctx context.Context, sess Session, deckID string, input SaveInput) (SaveResult, error) {
	deckRec, err := s.requireDeck(ctx, sess, deckID)
	if err != nil {
		return SaveResult{}, err
	}
	if err := input.Snapshot.Validate(); err != nil {
		return SaveResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_SNAPSHOT", err.Error(), nil)
	}

	branch, err := s.resolveBranch(ctx, deckID, input.VariantID)
	if err != nil {
		return SaveResult{}, err
	}

	current, _, err := s.git.GetHeadSnapshot(deckID, branch)
	if err != nil {
		return SaveResult{}, fmt.Errorf("read deck head: %w", err)
	}

	diff, err := s.computeDiff(ctx, current, input.Snapshot)
	if err != nil {
		return SaveResult{}, err
	}
	if diff.Empty() {
		return SaveResult{}, domainError(http.StatusConflict, "NO_CHANGES", "Snapshot is identical to the current head", nil)
	}

	primary := strings.TrimSpace(input.Message)
	if primary == "" {
		primary = deck.AutoSummary(diff)
	}

	annotations, err := buildAnnotations(diff, input.Reasons)
	if err != nil {
		return SaveResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_ANNOTATION", err.Error(), nil)
	}

	message, err := annot.Format(primary, annotations)
	if err != nil {
		return SaveResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_MESSAGE", err.Error(), nil)
	}

	commit, err := s.git.CommitSnapshot(deckID, branch, input.Snapshot, sess.UserName, message)
	if err != nil {
		return SaveResult{}, fmt.Errorf("commit snapshot: %w", err)
	}

	_ = s.store.TouchDeck(ctx, deckID)
	s.indexDeck(deckRec)

	return SaveResult{Commit: commit, Diff: diff, Summary: deck.Summarize(diff)}, nil
}

// buildAnnotations turns a diff into annotation entries, attaching the
// operator-supplied reason for each card that has one. Cards without a
// reason are omitted; the diff itself already records the change.
func buildAnnotations(d deck.Diff, reasons map[string]string) ([]annot.Annotation, error) {
	if len(reasons) == 0 {
		return nil, nil
	}
	var out []annot.Annotation
	for _, card := range d.Added {
		if reason, ok := reasons[card.ID]; ok {
			a, err := annot.New(card.ID, annot.Added, reason)
			if err != nil {
				return nil, err
			}
			a.NewCount = card.Count
			out = append(out, a)
		}
	}
	for _, card := range d.Removed {
		if reason, ok := reasons[card.ID]; ok {
			a, err := annot.New(card.ID, annot.Removed, reason)
			if err != nil {
				return nil, err
			}
			a.OldCount = card.Count
			out = append(out, a)
		}
	}
	for _, change := range d.Modified {
		if reason, ok := reasons[change.ID]; ok {
			a, err := annot.New(change.ID, annot.Modified, reason)
			if err != nil {
				return nil, err
			}
			a.OldCount = change.OldCount
			a.NewCount = change.NewCount
			out = append(out, a)
		}
	}
	return out, nil
}

// computeDiff runs Compare inline for small decks. Large decks go through
// a worker goroutine with a deadline so a runaway diff cannot pin the
// request handler.
func (s *Service) computeDiff(ctx context.Context, from, to deck.Snapshot) (deck.Diff, error) {
	if from.TotalCards() <= asyncDiffThreshold && to.TotalCards() <= asyncDiffThreshold {
		return deck.Compare(from, to), nil
	}

	diffCtx, cancel := context.WithTimeout(ctx, diffTimeout)
	defer cancel()

	result := make(chan deck.Diff, 1)
	go func() {
		result <- deck.Compare(from, to)
	}()

	select {
	case diff := <-result:
		return diff, nil
	case <-diffCtx.Done():
		return deck.Diff{}, domainError(http.StatusGatewayTimeout, "DIFF_TIMEOUT", "Diff computation timed out", nil)
	}
}

// ---- history ----

type HistoryEntry struct {
	Commit      store.CommitInfo
	Primary     string
	Annotations []annot.Annotation
}

func (s *Service) History(ctx context.Context, sess Session, deckID, variantID string, limit int) ([]HistoryEntry, error) {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return nil, err
	}

	branch, err := s.resolveBranch(ctx, deckID, variantID)
	if err != nil {
		return nil, err
	}

	commits, err := s.git.History(deckID, branch, limit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(commits))
	for _, commit := range commits {
		primary, annotations := annot.Parse(commit.Message)
		entries = append(entries, HistoryEntry{
			Commit:      commit,
			Primary:     primary,
			Annotations: annotations,
		})
	}
	return entries, nil
}

func (s *Service) SnapshotAt(ctx context.Context, sess Session, deckID, hash string) (deck.Snapshot, error) {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return deck.Snapshot{}, err
	}
	snapshot, err := s.git.GetSnapshotByHash(deckID, hash)
	if err != nil {
		return deck.Snapshot{}, domainError(http.StatusNotFound, "NOT_FOUND", "Commit not found", nil)
	}
	return snapshot, nil
}

// ---- variants ----

func (s *Service) CreateVariant(ctx context.Context, sess Session, deckID, name string) (store.Variant, error) {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return store.Variant{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return store.Variant{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	branchName := "variant-" + slugify(name)
	if err := s.git.EnsureBranch(deckID, branchName, gitdeck.MainBranch); err != nil {
		return store.Variant{}, fmt.Errorf("create branch: %w", err)
	}

	variant, err := s.store.CreateVariant(ctx, store.Variant{
		DeckID:     deckID,
		Name:       name,
		BranchName: branchName,
		Status:     store.VariantOpen,
		CreatedBy:  sess.UserID,
	})
	if err != nil {
		return store.Variant{}, fmt.Errorf("create variant: %w", err)
	}
	return variant, nil
}

func (s *Service) ListVariants(ctx context.Context, sess Session, deckID string) ([]store.Variant, error) {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return nil, err
	}
	return s.store.ListVariants(ctx, deckID)
}

func (s *Service) AbandonVariant(ctx context.Context, sess Session, deckID, variantID string) error {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return err
	}
	variant, err := s.openVariant(ctx, deckID, variantID)
	if err != nil {
		return err
	}
	return s.store.SetVariantStatus(ctx, variant.ID, store.VariantAbandoned)
}

// ---- merge flow ----

type MergePreview struct {
	Variant       store.Variant
	Base          store.CommitInfo
	SourceDiff    deck.Diff
	TargetDiff    deck.Diff
	SourceSummary string
	TargetSummary string
	Conflicts     []merge.Conflict
}

type MergeResult struct {
	Commit   store.CommitInfo
	Snapshot deck.Snapshot
	Summary  string
}

func (s *Service) PreviewMerge(ctx context.Context, sess Session, deckID, variantID string) (MergePreview, error) {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return MergePreview{}, err
	}
	variant, err := s.openVariant(ctx, deckID, variantID)
	if err != nil {
		return MergePreview{}, err
	}

	ancestor, baseInfo, err := s.git.MergeBase(deckID, variant.BranchName)
	if err != nil {
		return MergePreview{}, fmt.Errorf("find merge base: %w", err)
	}

	sourceHead, _, err := s.git.GetHeadSnapshot(deckID, variant.BranchName)
	if err != nil {
		return MergePreview{}, fmt.Errorf("read variant head: %w", err)
	}
	targetHead, _, err := s.git.GetHeadSnapshot(deckID, gitdeck.MainBranch)
	if err != nil {
		return MergePreview{}, fmt.Errorf("read main head: %w", err)
	}

	sourceDiff, err := s.computeDiff(ctx, ancestor, sourceHead)
	if err != nil {
		return MergePreview{}, err
	}
	targetDiff, err := s.computeDiff(ctx, ancestor, targetHead)
	if err != nil {
		return MergePreview{}, err
	}

	return MergePreview{
		Variant:       variant,
		Base:          baseInfo,
		SourceDiff:    sourceDiff,
		TargetDiff:    targetDiff,
		SourceSummary: deck.Summarize(sourceDiff),
		TargetSummary: deck.Summarize(targetDiff),
		Conflicts:     merge.DetectConflicts(ancestor, sourceDiff, targetDiff),
	}, nil
}

func (s *Service) ApplyMerge(ctx context.Context, sess Session, deckID, variantID string, resolutions map[string]merge.Resolution) (MergeResult, error) {
	deckRec, err := s.requireDeck(ctx, sess, deckID)
	if err != nil {
		return MergeResult{}, err
	}
	preview, err := s.PreviewMerge(ctx, sess, deckID, variantID)
	if err != nil {
		return MergeResult{}, err
	}

	ancestor, _, err := s.git.MergeBase(deckID, preview.Variant.BranchName)
	if err != nil {
		return MergeResult{}, fmt.Errorf("find merge base: %w", err)
	}

	merged, err := merge.Resolve(ancestor, preview.SourceDiff, preview.TargetDiff, preview.Conflicts, resolutions)
	if err != nil {
		return MergeResult{}, mergeError(err)
	}

	if err := merge.CheckCopyLimits(merged, copyLimitForFormat(deckRec.Format)); err != nil {
		return MergeResult{}, domainError(http.StatusUnprocessableEntity, "COPY_LIMIT", err.Error(), nil)
	}

	message := "Merge variant " + preview.Variant.Name
	commit, err := s.git.CommitMerge(deckID, preview.Variant.BranchName, merged, sess.UserName, message)
	if err != nil {
		return MergeResult{}, fmt.Errorf("commit merge: %w", err)
	}

	if err := s.store.SetVariantStatus(ctx, preview.Variant.ID, store.VariantMerged); err != nil {
		return MergeResult{}, err
	}
	_ = s.store.TouchDeck(ctx, deckID)
	s.indexDeck(deckRec)

	mergeDiff := deck.Compare(ancestor, merged)
	return MergeResult{Commit: commit, Snapshot: merged, Summary: deck.Summarize(mergeDiff)}, nil
}

func mergeError(err error) error {
	var verr *merge.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusUnprocessableEntity
		code := "MERGE_INVALID"
		if errors.Is(err, merge.ErrMissingResolution) {
			status = http.StatusConflict
			code = "CONFLICTS_UNRESOLVED"
		}
		return domainError(status, code, verr.Error(), map[string]any{
			"key":    verr.Key,
			"cardId": verr.CardID,
		})
	}
	return err
}

// ---- search, export, cards ----

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) ExportDeck(ctx context.Context, sess Session, deckID, version string, format export.Format) (*export.Result, error) {
	if _, err := s.requireDeck(ctx, sess, deckID); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{DeckID: deckID, Version: version, Format: format})
}

func (s *Service) Card(ctx context.Context, cardID string) (cards.Info, error) {
	if s.cards == nil {
		return cards.Info{}, domainError(http.StatusServiceUnavailable, "CARDS_UNAVAILABLE", "Card database not configured", nil)
	}
	info, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return cards.Info{}, err
	}
	if s.search != nil {
		s.search.IndexCard(search.CardRecord{
			ID:   info.ID,
			Name: info.Name,
			Type: info.Type,
			Cost: info.Cost,
		})
	}
	return info, nil
}

func (s *Service) CardImage(ctx context.Context, cardID string) (io.ReadCloser, error) {
	if s.images == nil {
		return nil, domainError(http.StatusServiceUnavailable, "IMAGES_UNAVAILABLE", "Image cache not configured", nil)
	}
	return s.images.Get(ctx, cardID)
}

func (s *Service) indexDeck(d store.Deck) {
	if s.search == nil {
		return
	}
	s.search.IndexDeck(search.DeckRecord{
		ID:      d.ID,
		Name:    d.Name,
		Format:  d.Format,
		OwnerID: d.OwnerID,
	})
}

// ReindexDecks pushes every deck owned by anyone into the search index.
// Called once at startup.
func (s *Service) ReindexDecks(ctx context.Context, decks []store.Deck) {
	if s.search == nil {
		return
	}
	records := make([]search.DeckRecord, 0, len(decks))
	for _, d := range decks {
		records = append(records, search.DeckRecord{
			ID:      d.ID,
			Name:    d.Name,
			Format:  d.Format,
			OwnerID: d.OwnerID,
		})
	}
	s.search.ReindexAll(records)
}

// ---- helpers ----

func (s *Service) requireDeck(ctx context.Context, sess Session, deckID string) (store.Deck, error) {
	deckRec, err := s.store.GetDeck(ctx, deckID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Deck{}, domainError(http.StatusNotFound, "NOT_FOUND", "Deck not found", nil)
		}
		return store.Deck{}, err
	}
	if deckRec.OwnerID != sess.UserID {
		return store.Deck{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return deckRec, nil
}

func (s *Service) resolveBranch(ctx context.Context, deckID, variantID string) (string, error) {
	if variantID == "" {
		return gitdeck.MainBranch, nil
	}
	variant, err := s.openVariant(ctx, deckID, variantID)
	if err != nil {
		return "", err
	}
	return variant.BranchName, nil
}

func (s *Service) openVariant(ctx context.Context, deckID, variantID string) (store.Variant, error) {
	variant, err := s.store.GetVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Variant{}, domainError(http.StatusNotFound, "NOT_FOUND", "Variant not found", nil)
		}
		return store.Variant{}, err
	}
	if variant.DeckID != deckID {
		return store.Variant{}, domainError(http.StatusNotFound, "NOT_FOUND", "Variant not found", nil)
	}
	if variant.Status != store.VariantOpen {
		return store.Variant{}, domainError(http.StatusConflict, "VARIANT_CLOSED", "Variant is not open", nil)
	}
	return variant, nil
}

func copyLimitForFormat(format string) int {
	if limit, ok := copyLimits[strings.ToLower(strings.TrimSpace(format))]; ok {
		return limit
	}
	return defaultCopyLimit
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = randomID()[:8]
	}
	return slug
}

func randomID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// ---- export adapters ----

type exportSource struct {
	s *Service
}

func (e exportSource) GetDeck(ctx context.Context, id string) (export.DeckInfo, error) {
	deckRec, err := e.s.store.GetDeck(ctx, id)
	if err != nil {
		return export.DeckInfo{}, err
	}
	owner, err := e.s.store.GetUserByID(ctx, deckRec.OwnerID)
	ownerName := deckRec.OwnerID
	if err == nil {
		ownerName = owner.DisplayName
	}
	return export.DeckInfo{
		ID:        deckRec.ID,
		Name:      deckRec.Name,
		Format:    deckRec.Format,
		OwnerName: ownerName,
		UpdatedAt: deckRec.UpdatedAt,
	}, nil
}

func (e exportSource) GetSnapshot(ctx context.Context, deckID, version string) (deck.Snapshot, error) {
	if version == "" || version == "latest" {
		snapshot, _, err := e.s.git.GetHeadSnapshot(deckID, gitdeck.MainBranch)
		return snapshot, err
	}
	return e.s.git.GetSnapshotByHash(deckID, version)
}

type cardNamer struct {
	cache *cards.Cache
}

func (n cardNamer) CardName(ctx context.Context, id string) string {
	if n.cache == nil {
		return ""
	}
	info, err := n.cache.Get(ctx, id)
	if err != nil {
		return ""
	}
	return info.Name
}
