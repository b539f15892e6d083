package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/openjdk/jmerge/internal/model"
	"github.com/openjdk/jmerge/pkg/idgen"
)

// PRStateStore persists the bot's durable per-PR memory: last seen
// head, command generation counter and check fingerprint cache.
type PRStateStore interface {
	// Get returns the state for a PR, or nil when none is stored yet.
	Get(repo string, pr int) (*model.PullRequestState, error)
	// GetOrCreate returns the state, creating an empty row on first use.
	GetOrCreate(repo string, pr int) (*model.PullRequestState, error)
	// ListOpen returns every tracked PR of a repository that has not
	// been marked closed yet.
	ListOpen(repo string) ([]model.PullRequestState, error)
	Save(state *model.PullRequestState) error
	// BumpGeneration atomically increments the command generation
	// counter and returns the new value.
	BumpGeneration(repo string, pr int) (int, error)
	// SetFingerprint records a completed check run's cache key.
	SetFingerprint(repo string, pr int, fingerprint string, checkID int64, expiresAt *time.Time) error
	// ScheduleRecheck forces a check run at or after the given time
	// regardless of the fingerprint.
	ScheduleRecheck(repo string, pr int, at time.Time) error
	ClearRecheck(repo string, pr int) error
	MarkClosed(repo string, pr int) error
	// ListClosedBefore returns PRs closed and untouched since the
	// cutoff, due for retention cleanup.
	ListClosedBefore(cutoff time.Time) ([]model.PullRequestState, error)
	// SweepClosed deletes state rows for PRs closed before the cutoff.
	SweepClosed(cutoff time.Time) (int64, error)
}

type prStateStore struct {
	db *gorm.DB
}

func newPRStateStore(db *gorm.DB) PRStateStore {
	return &prStateStore{db: db}
}

func (s *prStateStore) Get(repo string, pr int) (*model.PullRequestState, error) {
	var state model.PullRequestState
	err := s.db.Where("repo_full_name = ? AND pr_number = ?", repo, pr).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *prStateStore) GetOrCreate(repo string, pr int) (*model.PullRequestState, error) {
	state, err := s.Get(repo, pr)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}
	state = &model.PullRequestState{
		ID:           idgen.NewID(),
		RepoFullName: repo,
		PRNumber:     pr,
		Open:         true,
	}
	if err := s.db.Create(state).Error; err != nil {
		return nil, err
	}
	return state, nil
}

func (s *prStateStore) ListOpen(repo string) ([]model.PullRequestState, error) {
	var states []model.PullRequestState
	err := s.db.Where("repo_full_name = ? AND open = ?", repo, true).
		Order("pr_number").Find(&states).Error
	return states, err
}

func (s *prStateStore) Save(state *model.PullRequestState) error {
	return s.db.Save(state).Error
}

func (s *prStateStore) BumpGeneration(repo string, pr int) (int, error) {
	state, err := s.GetOrCreate(repo, pr)
	if err != nil {
		return 0, err
	}
	state.Generation++
	if err := s.db.Model(state).Update("generation", state.Generation).Error; err != nil {
		return 0, err
	}
	return state.Generation, nil
}

func (s *prStateStore) SetFingerprint(repo string, pr int, fingerprint string, checkID int64, expiresAt *time.Time) error {
	state, err := s.GetOrCreate(repo, pr)
	if err != nil {
		return err
	}
	return s.db.Model(state).Updates(map[string]interface{}{
		"fingerprint": fingerprint,
		"check_id":    checkID,
		"expires_at":  expiresAt,
	}).Error
}

func (s *prStateStore) ScheduleRecheck(repo string, pr int, at time.Time) error {
	state, err := s.GetOrCreate(repo, pr)
	if err != nil {
		return err
	}
	return s.db.Model(state).Update("recheck_at", at).Error
}

func (s *prStateStore) ClearRecheck(repo string, pr int) error {
	state, err := s.Get(repo, pr)
	if err != nil || state == nil {
		return err
	}
	return s.db.Model(state).Update("recheck_at", nil).Error
}

func (s *prStateStore) MarkClosed(repo string, pr int) error {
	state, err := s.Get(repo, pr)
	if err != nil || state == nil {
		return err
	}
	return s.db.Model(state).Update("open", false).Error
}

func (s *prStateStore) ListClosedBefore(cutoff time.Time) ([]model.PullRequestState, error) {
	var states []model.PullRequestState
	err := s.db.Where("open = ? AND updated_at < ?", false, cutoff).Find(&states).Error
	return states, err
}

func (s *prStateStore) SweepClosed(cutoff time.Time) (int64, error) {
	result := s.db.Where("open = ? AND updated_at < ?", false, cutoff).
		Delete(&model.PullRequestState{})
	return result.RowsAffected, result.Error
}
