// Package gitdeck stores each deck as its own git repository. Every save
// commits a deck.json snapshot; the commit message is the history-message
// envelope (primary text plus optional annotation block). Variant branches
// diverge from main and are merged back as copy-commits.
package gitdeck

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deckvault/api/internal/deck"
	"deckvault/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const snapshotFile = "deck.json"

// MainBranch is where merged deck state lives.
const MainBranch = "main"

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureDeckRepo initializes the repository for a deck with its first
// snapshot on main. Calling it for an existing deck is a no-op.
func (s *Service) EnsureDeckRepo(deckID string, initial deck.Snapshot, author, message string) error {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(deckID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial snapshot: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return fmt.Errorf("git add initial snapshot: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial snapshot: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(MainBranch), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(MainBranch))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// EnsureBranch creates a variant branch pointed at fromBranch's head if it
// does not exist yet.
func (s *Service) EnsureBranch(deckID, branchName, fromBranch string) error {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(deckID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}

	branchRefName := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRefName, true); err == nil {
		return nil
	}

	fromRef, err := repo.Reference(plumbing.NewBranchReferenceName(fromBranch), true)
	if err != nil {
		return fmt.Errorf("read source branch ref: %w", err)
	}

	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRefName, fromRef.Hash())); err != nil {
		return fmt.Errorf("create branch ref: %w", err)
	}
	return nil
}

// CommitSnapshot writes one save to a branch. The message is the already
// encoded history envelope; gitdeck never inspects it.
func (s *Service) CommitSnapshot(deckID, branchName string, snapshot deck.Snapshot, author, message string) (store.CommitInfo, error) {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(deckID))
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := s.commit(repo, branchName, snapshot, author, message, false)
	if err != nil {
		return store.CommitInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}

	return toCommitInfo(commitObj), nil
}

// GetHeadSnapshot returns the snapshot and commit at a branch head.
func (s *Service) GetHeadSnapshot(deckID, branchName string) (deck.Snapshot, store.CommitInfo, error) {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(deckID))
	if err != nil {
		return deck.Snapshot{}, store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	commitObj, err := branchCommit(repo, branchName)
	if err != nil {
		return deck.Snapshot{}, store.CommitInfo{}, err
	}

	snapshot, err := readSnapshotFromCommit(commitObj)
	if err != nil {
		return deck.Snapshot{}, store.CommitInfo{}, err
	}

	return snapshot, toCommitInfo(commitObj), nil
}

// GetSnapshotByHash reads the snapshot stored at a specific commit.
func (s *Service) GetSnapshotByHash(deckID, hash string) (deck.Snapshot, error) {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(deckID))
	if err != nil {
		return deck.Snapshot{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return deck.Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return deck.Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSnapshotFromCommit(commitObj)
}

// History lists commits from a branch head, newest first. The stored
// message text is returned verbatim so callers can parse annotation
// envelopes back out.
func (s *Service) History(deckID, branchName string, limit int) ([]store.CommitInfo, error) {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(deckID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	if limit < 0 {
		limit = 0
	}
	items := make([]store.CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// MergeBase returns the snapshot at the common ancestor of a variant
// branch and main. This is the three-way merge's anchor.
func (s *Service) MergeBase(deckID, branchName string) (deck.Snapshot, store.CommitInfo, error) {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(deckID))
	if err != nil {
		return deck.Snapshot{}, store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	mainCommit, err := branchCommit(repo, MainBranch)
	if err != nil {
		return deck.Snapshot{}, store.CommitInfo{}, err
	}
	branchHead, err := branchCommit(repo, branchName)
	if err != nil {
		return deck.Snapshot{}, store.CommitInfo{}, err
	}

	bases, err := branchHead.MergeBase(mainCommit)
	if err != nil {
		return deck.Snapshot{}, store.CommitInfo{}, fmt.Errorf("find merge base: %w", err)
	}
	if len(bases) == 0 {
		return deck.Snapshot{}, store.CommitInfo{}, fmt.Errorf("no common ancestor between %s and %s", branchName, MainBranch)
	}

	snapshot, err := readSnapshotFromCommit(bases[0])
	if err != nil {
		return deck.Snapshot{}, store.CommitInfo{}, err
	}
	return snapshot, toCommitInfo(bases[0]), nil
}

// CommitMerge writes the resolved snapshot onto main as a copy-commit. The
// message records the source branch so history shows where it came from.
func (s *Service) CommitMerge(deckID, sourceBranch string, merged deck.Snapshot, author, message string) (store.CommitInfo, error) {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(deckID))
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	mergeMessage := fmt.Sprintf(
		"%s\n\nmerge: source=%s target=%s actor=%s mode=copy-commit",
		message,
		sourceBranch,
		MainBranch,
		author,
	)
	hash, err := s.commit(repo, MainBranch, merged, author, mergeMessage, true)
	if err != nil {
		return store.CommitInfo{}, err
	}
	mergedCommit, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read merge commit object: %w", err)
	}
	return toCommitInfo(mergedCommit), nil
}

// DeleteDeckRepo removes a deck's repository from disk.
func (s *Service) DeleteDeckRepo(deckID string) error {
	lock := s.deckLock(deckID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(deckID)); err != nil {
		return fmt.Errorf("remove deck repo: %w", err)
	}
	return nil
}

func (s *Service) repoPath(deckID string) string {
	return filepath.Join(s.baseDir, deckID)
}

func (s *Service) deckLock(deckID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[deckID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[deckID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, branchName string, snapshot deck.Snapshot, author, message string, allowEmpty bool) (plumbing.Hash, error) {
	if err := checkoutBranch(repo, branchName); err != nil {
		return plumbing.ZeroHash, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal snapshot: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", snapshotFile, err)
	}

	if _, err := worktree.Add(snapshotFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: allowEmpty,
		Author:            signature(author),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func checkoutBranch(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}

func branchCommit(repo *git.Repository, branchName string) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return commitObj, nil
}

func readSnapshotFromCommit(commitObj *object.Commit) (deck.Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return deck.Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return deck.Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return deck.Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var snapshot deck.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return deck.Snapshot{}, fmt.Errorf("decode commit snapshot: %w", err)
	}
	return snapshot, nil
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.deckvault.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
