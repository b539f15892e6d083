package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/openjdk/jmerge/internal/model"
	"github.com/openjdk/jmerge/pkg/idgen"
)

// RepositoryStore manages the set of watched repositories.
type RepositoryStore interface {
	// Upsert creates the repository row or updates its bot binding.
	Upsert(fullName, forgeType, botName string) (*model.Repository, error)
	Get(fullName string) (*model.Repository, error)
	List() ([]model.Repository, error)
	// TouchPoll records a completed poll sweep for the repository.
	TouchPoll(fullName string, at time.Time) error
}

type repositoryStore struct {
	db *gorm.DB
}

func newRepositoryStore(db *gorm.DB) RepositoryStore {
	return &repositoryStore{db: db}
}

func (s *repositoryStore) Upsert(fullName, forgeType, botName string) (*model.Repository, error) {
	repo, err := s.Get(fullName)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		repo = &model.Repository{
			ID:        idgen.NewID(),
			FullName:  fullName,
			ForgeType: forgeType,
			BotName:   botName,
		}
		if err := s.db.Create(repo).Error; err != nil {
			return nil, err
		}
		return repo, nil
	}
	if repo.ForgeType != forgeType || repo.BotName != botName {
		repo.ForgeType = forgeType
		repo.BotName = botName
		if err := s.db.Model(repo).Updates(map[string]interface{}{
			"forge_type": forgeType,
			"bot_name":   botName,
		}).Error; err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (s *repositoryStore) Get(fullName string) (*model.Repository, error) {
	var repo model.Repository
	err := s.db.Where("full_name = ?", fullName).First(&repo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *repositoryStore) List() ([]model.Repository, error) {
	var repos []model.Repository
	err := s.db.Order("full_name ASC").Find(&repos).Error
	return repos, err
}

func (s *repositoryStore) TouchPoll(fullName string, at time.Time) error {
	return s.db.Model(&model.Repository{}).
		Where("full_name = ?", fullName).
		Update("last_poll_at", at).Error
}
