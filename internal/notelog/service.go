// Package notelog mirrors each project's accepted notes into a git repository
// so that every change to the knowledge base has an author and a diff.
package notelog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"nexus/api/internal/export"
)

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Files     []string  `json:"files"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
}

type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

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

// Record writes the full note set of a project as <slug>.md files and
// commits the difference. It returns a zero Commit when nothing changed.
func (s *Service) Record(projectID string, notes []export.Note, author, message string) (Commit, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(projectID)
	if err != nil {
		return Commit{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()

	wanted := make(map[string][]byte, len(notes))
	for name, note := range fileNames(notes) {
		content, err := export.NoteMarkdown(note)
		if err != nil {
			return Commit{}, fmt.Errorf("render note %s: %w", note.ID, err)
		}
		wanted[name] = content
	}

	existing, err := filepath.Glob(filepath.Join(root, "*.md"))
	if err != nil {
		return Commit{}, fmt.Errorf("list note files: %w", err)
	}
	for _, path := range existing {
		name := filepath.Base(path)
		if _, ok := wanted[name]; ok {
			continue
		}
		if _, err := worktree.Remove(name); err != nil {
			return Commit{}, fmt.Errorf("git rm %s: %w", name, err)
		}
	}
	for name, content := range wanted {
		if err := os.WriteFile(filepath.Join(root, name), content, 0o644); err != nil {
			return Commit{}, fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := worktree.Add(name); err != nil {
			return Commit{}, fmt.Errorf("git add %s: %w", name, err)
		}
	}

	status, err := worktree.Status()
	if err != nil {
		return Commit{}, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return Commit{}, nil
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@notes.nexus.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit notes: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// History returns up to limit commits, newest first. A project that never
// recorded anything has an empty history.
func (s *Service) History(projectID string, limit int) ([]Commit, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	items := make([]Commit, 0)
	repo, err := git.PlainOpen(s.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Snapshot returns the note files as they were at the given commit.
func (s *Service) Snapshot(projectID, hash string) ([]File, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}

	files := make([]File, 0)
	iter, err := commitObj.Files()
	if err != nil {
		return nil, fmt.Errorf("list commit files: %w", err)
	}
	err = iter.ForEach(func(file *object.File) error {
		content, err := file.Contents()
		if err != nil {
			return err
		}
		files = append(files, File{Name: file.Name, Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read commit files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *Service) openOrInit(projectID string) (*git.Repository, error) {
	path := s.repoPath(projectID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[projectID] = lock
	return lock
}

// fileNames assigns each note a stable file name. Titles that slug to the
// same stem are told apart by a numeric suffix in note id order.
func fileNames(notes []export.Note) map[string]export.Note {
	sorted := append([]export.Note(nil), notes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	out := make(map[string]export.Note, len(sorted))
	for _, note := range sorted {
		stem := export.Slug(note.Title)
		name := stem + ".md"
		for n := 2; ; n++ {
			if _, taken := out[name]; !taken {
				break
			}
			name = stem + "-" + strconv.Itoa(n) + ".md"
		}
		out[name] = note
	}
	return out
}

func toCommit(commitObj *object.Commit) Commit {
	commit := Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
		Files:     []string{},
	}
	stats, err := commitObj.Stats()
	if err != nil {
		return commit
	}
	for _, stat := range stats {
		commit.Files = append(commit.Files, stat.Name)
		commit.Added += stat.Addition
		commit.Removed += stat.Deletion
	}
	return commit
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
