package store

import (
	"gorm.io/gorm"

	"github.com/openjdk/jmerge/internal/model"
	"github.com/openjdk/jmerge/pkg/idgen"
)

// IssueLinkStore persists the issue-to-PR map consumed by tracker
// event fan-out and by the body renderer's duplicate-claim warnings.
type IssueLinkStore interface {
	// Replace swaps the stored links for a PR with the given set.
	Replace(repo string, pr int, issueKeys []string, primaryKey string) error
	PRsForIssue(issueKey string) ([]model.IssueLink, error)
	ListForPR(repo string, pr int) ([]model.IssueLink, error)
	DeleteForPR(repo string, pr int) (int64, error)
}

type issueLinkStore struct {
	db *gorm.DB
}

func newIssueLinkStore(db *gorm.DB) IssueLinkStore {
	return &issueLinkStore{db: db}
}

func (s *issueLinkStore) Replace(repo string, pr int, issueKeys []string, primaryKey string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("repo_full_name = ? AND pr_number = ?", repo, pr).
			Delete(&model.IssueLink{}).Error; err != nil {
			return err
		}
		for _, key := range issueKeys {
			link := &model.IssueLink{
				ID:           idgen.NewID(),
				IssueKey:     key,
				RepoFullName: repo,
				PRNumber:     pr,
				Primary:      key == primaryKey,
			}
			if err := tx.Create(link).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *issueLinkStore) PRsForIssue(issueKey string) ([]model.IssueLink, error) {
	var links []model.IssueLink
	err := s.db.Where("issue_key = ?", issueKey).Find(&links).Error
	return links, err
}

func (s *issueLinkStore) ListForPR(repo string, pr int) ([]model.IssueLink, error) {
	var links []model.IssueLink
	err := s.db.Where("repo_full_name = ? AND pr_number = ?", repo, pr).
		Order("is_primary DESC").
		Find(&links).Error
	return links, err
}

func (s *issueLinkStore) DeleteForPR(repo string, pr int) (int64, error) {
	result := s.db.Where("repo_full_name = ? AND pr_number = ?", repo, pr).
		Delete(&model.IssueLink{})
	return result.RowsAffected, result.Error
}
