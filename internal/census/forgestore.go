package census

import (
	"context"
	"sync"
	"time"

	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/pkg/errors"
)

// CensusFile is the well-known file name inside a census repository.
const CensusFile = "census.xml"

// DefaultRefreshInterval bounds how often a ForgeStore re-fetches the
// census file.
const DefaultRefreshInterval = 10 * time.Minute

// ForgeStore fetches the census from a repository on a forge. The parsed
// census is cached and refreshed at most once per refresh interval; when
// a refresh fails the last good census is served instead.
type ForgeStore struct {
	forge   forge.Forge
	repo    forge.Repo
	ref     string
	project string
	refresh time.Duration

	mu        sync.Mutex
	cached    *Census
	fetchedAt time.Time
}

// NewForgeStore creates a store backed by the census repository at the
// given ref. An empty ref means the repository default branch.
func NewForgeStore(f forge.Forge, repo forge.Repo, ref, project string) *ForgeStore {
	return &ForgeStore{
		forge:   f,
		repo:    repo,
		ref:     ref,
		project: project,
		refresh: DefaultRefreshInterval,
	}
}

// Current implements Store.
func (s *ForgeStore) Current(ctx context.Context) (*Census, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.fetchedAt) < s.refresh {
		return s.cached, nil
	}

	data, err := s.forge.FileContents(ctx, s.repo, CensusFile, s.ref)
	if err != nil {
		if s.cached != nil {
			return s.cached, nil
		}
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound,
			"fetching census from "+s.repo.FullName(), err)
	}

	c, err := Parse(data, s.project)
	if err != nil {
		if s.cached != nil {
			return s.cached, nil
		}
		return nil, err
	}

	s.cached = c
	s.fetchedAt = time.Now()
	return c, nil
}
