package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/openjdk/jmerge/internal/model"
)

// CommandStore is the processed-command ledger. Recording a command by
// its comment id makes handling idempotent: a comment already in the
// ledger is never replied to twice.
type CommandStore interface {
	// Seen reports whether the comment was already processed.
	Seen(commentID int64) (bool, error)
	Record(record *model.CommandRecord) error
	ListForPR(repo string, pr int) ([]model.CommandRecord, error)
	// SweepForPR removes ledger entries for a PR, used by retention.
	SweepForPR(repo string, pr int) (int64, error)
}

type commandStore struct {
	db *gorm.DB
}

func newCommandStore(db *gorm.DB) CommandStore {
	return &commandStore{db: db}
}

func (s *commandStore) Seen(commentID int64) (bool, error) {
	var record model.CommandRecord
	err := s.db.Where("comment_id = ?", commentID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *commandStore) Record(record *model.CommandRecord) error {
	return s.db.Create(record).Error
}

func (s *commandStore) ListForPR(repo string, pr int) ([]model.CommandRecord, error) {
	var records []model.CommandRecord
	err := s.db.Where("repo_full_name = ? AND pr_number = ?", repo, pr).
		Order("generation ASC").
		Find(&records).Error
	return records, err
}

func (s *commandStore) SweepForPR(repo string, pr int) (int64, error) {
	result := s.db.Where("repo_full_name = ? AND pr_number = ?", repo, pr).
		Delete(&model.CommandRecord{})
	return result.RowsAffected, result.Error
}
