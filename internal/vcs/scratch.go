package vcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/openjdk/jmerge/pkg/errors"
	"github.com/openjdk/jmerge/pkg/logger"
)

// Scratch manages per-repository local checkouts under a common root.
// Each repository has its own mutex; acquiring a checkout holds the
// repo lock until Release, so concurrent work items on the same repo
// serialize their git access while distinct repos proceed in parallel.
type Scratch struct {
	root string

	mu    sync.Mutex
	repos map[string]*repoScratch
}

type repoScratch struct {
	mu  sync.Mutex
	git *Git
}

// NewScratch creates a scratch area rooted at the given directory.
func NewScratch(root string) *Scratch {
	return &Scratch{
		root:  root,
		repos: make(map[string]*repoScratch),
	}
}

// Checkout is an acquired repository checkout. Callers must Release it
// on every exit path; Release is idempotent.
type Checkout struct {
	*Git
	release func()
	once    sync.Once
}

// Release returns the repository lock.
func (c *Checkout) Release() {
	c.once.Do(c.release)
}

// dirFor maps a repository full name onto a directory under the root.
func (s *Scratch) dirFor(fullName string) string {
	return filepath.Join(s.root, strings.ReplaceAll(fullName, "/", "_"))
}

// Acquire locks the repository's scratch checkout, cloning it on first
// use and fetching the given refspecs before returning.
func (s *Scratch) Acquire(ctx context.Context, fullName, cloneURL string, opts *FetchOptions, refspecs ...string) (*Checkout, error) {
	s.mu.Lock()
	repo, ok := s.repos[fullName]
	if !ok {
		repo = &repoScratch{}
		s.repos[fullName] = repo
	}
	s.mu.Unlock()

	repo.mu.Lock()
	release := repo.mu.Unlock

	if repo.git == nil {
		dir := s.dirFor(fullName)
		git, err := s.ensureClone(ctx, dir, cloneURL, opts)
		if err != nil {
			release()
			return nil, err
		}
		repo.git = git
	}

	for _, refspec := range refspecs {
		if err := repo.git.Fetch(ctx, cloneURL, refspec, opts); err != nil {
			release()
			return nil, err
		}
	}

	return &Checkout{Git: repo.git, release: release}, nil
}

func (s *Scratch) ensureClone(ctx context.Context, dir, cloneURL string, opts *FetchOptions) (*Git, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return NewGit(dir), nil
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSClone, "failed to create scratch root", err)
	}

	logger.Info("Cloning repository into scratch area",
		zap.String("dir", dir),
	)
	return Clone(ctx, cloneURL, dir, opts)
}
