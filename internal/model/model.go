// Package model defines the persisted data models. All models use GORM
// with the embedded SQLite database.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// StringArray stores a string slice as a JSON column in SQLite.
type StringArray []string

// Value implements driver.Valuer.
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// Scan implements sql.Scanner.
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, s)
}

// Repository is a watched repository bound to a bot.
type Repository struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	FullName   string     `gorm:"size:255;not null;uniqueIndex" json:"full_name"`
	ForgeType  string     `gorm:"size:50;not null" json:"forge_type"`
	BotName    string     `gorm:"size:255;not null" json:"bot_name"`
	LastPollAt *time.Time `json:"last_poll_at,omitempty"`
}

// PullRequestState is the bot's durable per-PR memory: the last head
// it saw (force-push detection), the command generation counter, and
// the check fingerprint with its cache controls.
type PullRequestState struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RepoFullName string `gorm:"size:255;not null;uniqueIndex:idx_repo_pr,priority:1" json:"repo_full_name"`
	PRNumber     int    `gorm:"not null;uniqueIndex:idx_repo_pr,priority:2" json:"pr_number"`

	// LastHeadHash is the head observed on the previous run.
	LastHeadHash string `gorm:"size:64" json:"last_head_hash"`
	// Generation counts processed commands; it is part of the check
	// fingerprint so a new command always invalidates the cache.
	Generation int `gorm:"default:0;not null" json:"generation"`

	// Fingerprint is the opaque cache key of the last completed check
	// run. CheckID is the forge-side check identity to update in place.
	Fingerprint string `gorm:"size:512" json:"fingerprint"`
	CheckID     int64  `json:"check_id"`

	// ExpiresAt bounds fingerprint validity; RecheckAt forces a run at
	// a scheduled time regardless of the fingerprint.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RecheckAt *time.Time `json:"recheck_at,omitempty"`

	// Open mirrors the forge state so retention can sweep closed PRs.
	Open bool `gorm:"default:true;not null;index" json:"open"`
}

// CommandRecord is one processed slash command. The unique comment id
// makes command handling idempotent across repeated runs.
type CommandRecord struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`

	RepoFullName string `gorm:"size:255;not null;index:idx_cmd_repo_pr,priority:1" json:"repo_full_name"`
	PRNumber     int    `gorm:"not null;index:idx_cmd_repo_pr,priority:2" json:"pr_number"`
	CommentID    int64  `gorm:"not null;uniqueIndex" json:"comment_id"`

	Verb       string `gorm:"size:50;not null" json:"verb"`
	Args       string `gorm:"size:1024" json:"args"`
	User       string `gorm:"size:255;not null" json:"user"`
	Authorized bool   `gorm:"not null" json:"authorized"`
	// Generation is the per-PR command counter value assigned to this
	// command; it keys the reply marker.
	Generation int `gorm:"not null" json:"generation"`
}

// IssueLink maps a tracker issue to a pull request that claims to
// solve it. One issue may be claimed by several PRs and vice versa.
type IssueLink struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`

	IssueKey     string `gorm:"size:64;not null;uniqueIndex:idx_issue_pr,priority:1;index" json:"issue_key"`
	RepoFullName string `gorm:"size:255;not null;uniqueIndex:idx_issue_pr,priority:2" json:"repo_full_name"`
	PRNumber     int    `gorm:"not null;uniqueIndex:idx_issue_pr,priority:3" json:"pr_number"`
	// Primary marks the issue named first in the PR title.
	Primary bool `gorm:"column:is_primary;default:false;not null" json:"primary"`
}

// AllModels returns every model for auto-migration.
func AllModels() []interface{} {
	return []interface{}{
		&Repository{},
		&PullRequestState{},
		&CommandRecord{},
		&IssueLink{},
	}
}
