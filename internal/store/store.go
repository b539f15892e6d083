// Package store provides the data access layer. It abstracts database
// operations behind per-model interfaces so the bot logic never touches
// GORM directly.
package store

import "gorm.io/gorm"

// Store aggregates all data store interfaces.
type Store interface {
	Repository() RepositoryStore
	PRState() PRStateStore
	Command() CommandStore
	IssueLink() IssueLinkStore

	// DB returns the underlying connection for advanced operations.
	// Use sparingly; prefer the specific store methods.
	DB() *gorm.DB

	// Transaction executes operations within a database transaction.
	Transaction(fn func(Store) error) error
}

type gormStore struct {
	db             *gorm.DB
	repositoryStore RepositoryStore
	prStateStore   PRStateStore
	commandStore   CommandStore
	issueLinkStore IssueLinkStore
}

// NewStore creates a Store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:              db,
		repositoryStore: newRepositoryStore(db),
		prStateStore:    newPRStateStore(db),
		commandStore:    newCommandStore(db),
		issueLinkStore:  newIssueLinkStore(db),
	}
}

func (s *gormStore) Repository() RepositoryStore {
	return s.repositoryStore
}

func (s *gormStore) PRState() PRStateStore {
	return s.prStateStore
}

func (s *gormStore) Command() CommandStore {
	return s.commandStore
}

func (s *gormStore) IssueLink() IssueLinkStore {
	return s.issueLinkStore
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
