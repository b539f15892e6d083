// Package census maps forge user identities to contributor roles.
// The authoritative source is a census XML document maintained in a
// separate repository; the bot reloads it when the census repo moves.
package census

import (
	"context"
	"encoding/xml"
	"os"

	"github.com/openjdk/jmerge/pkg/errors"
)

// Role is a contributor role within a project. Roles are ordered: a lead
// counts as a reviewer, a reviewer as a committer, and so on down.
type Role int

const (
	RoleNone Role = iota
	RoleContributor
	RoleAuthor
	RoleCommitter
	RoleReviewer
	RoleLead
)

// String returns the lowercase role name as it appears in jcheck
// configuration and command arguments.
func (r Role) String() string {
	switch r {
	case RoleLead:
		return "lead"
	case RoleReviewer:
		return "reviewer"
	case RoleCommitter:
		return "committer"
	case RoleAuthor:
		return "author"
	case RoleContributor:
		return "contributor"
	default:
		return "none"
	}
}

// ParseRole converts a role name to a Role. Unknown names map to RoleNone.
func ParseRole(s string) Role {
	switch s {
	case "lead":
		return RoleLead
	case "reviewer", "reviewers":
		return RoleReviewer
	case "committer", "committers":
		return RoleCommitter
	case "author", "authors":
		return RoleAuthor
	case "contributor", "contributors":
		return RoleContributor
	default:
		return RoleNone
	}
}

// AtLeast reports whether r satisfies the requirement expressed by other.
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

// Census holds the project membership for a single project.
type Census struct {
	Project string
	roles   map[string]Role
}

// xmlCensus mirrors the census document structure
type xmlCensus struct {
	XMLName  xml.Name     `xml:"census"`
	Projects []xmlProject `xml:"project"`
}

type xmlProject struct {
	Name       string      `xml:"name,attr"`
	Lead       []xmlMember `xml:"lead"`
	Reviewers  []xmlMember `xml:"reviewer"`
	Committers []xmlMember `xml:"committer"`
	Authors    []xmlMember `xml:"author"`
}

type xmlMember struct {
	Name  string `xml:"name,attr"`
	Since int    `xml:"since,attr"`
}

// Parse parses a census XML document and extracts the membership of the
// named project. Members listed under multiple roles keep the highest one.
func Parse(data []byte, project string) (*Census, error) {
	var doc xmlCensus
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigParse, "malformed census document", err)
	}

	c := &Census{Project: project, roles: make(map[string]Role)}
	for _, p := range doc.Projects {
		if p.Name != project {
			continue
		}
		for _, m := range p.Authors {
			c.add(m.Name, RoleAuthor)
		}
		for _, m := range p.Committers {
			c.add(m.Name, RoleCommitter)
		}
		for _, m := range p.Reviewers {
			c.add(m.Name, RoleReviewer)
		}
		for _, m := range p.Lead {
			c.add(m.Name, RoleLead)
		}
		return c, nil
	}
	return nil, errors.New(errors.ErrCodeConfigNotFound, "project "+project+" not present in census")
}

// ParseFile reads and parses a census document from disk.
func ParseFile(path, project string) (*Census, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, "census file unreadable", err)
	}
	return Parse(data, project)
}

func (c *Census) add(name string, role Role) {
	if existing, ok := c.roles[name]; ok && existing >= role {
		return
	}
	c.roles[name] = role
}

// Role returns the role of the given user, or RoleNone when the user is
// not a project member.
func (c *Census) Role(user string) Role {
	if c == nil {
		return RoleNone
	}
	return c.roles[user]
}

// IsMember reports whether the user holds any role in the project.
func (c *Census) IsMember(user string) bool {
	return c.Role(user) != RoleNone
}

// Members returns all users holding at least the given role.
func (c *Census) Members(atLeast Role) []string {
	var out []string
	for name, role := range c.roles {
		if role.AtLeast(atLeast) {
			out = append(out, name)
		}
	}
	return out
}

// Store provides the current census for a bot. Implementations may fetch
// from a census repository or serve a fixed census in tests.
type Store interface {
	Current(ctx context.Context) (*Census, error)
}

// StaticStore serves a fixed census. Used in tests and for bots whose
// census is provided out of band.
type StaticStore struct {
	census *Census
}

// NewStaticStore creates a store that always returns the given census.
func NewStaticStore(c *Census) *StaticStore {
	return &StaticStore{census: c}
}

// Current implements Store.
func (s *StaticStore) Current(ctx context.Context) (*Census, error) {
	if s.census == nil {
		return nil, errors.New(errors.ErrCodeConfigNotFound, "no census configured")
	}
	return s.census, nil
}

// Builder assembles a census programmatically. Used by tests and by the
// bootstrap path when no census repository is configured.
type Builder struct {
	c *Census
}

// NewBuilder creates a Builder for the given project.
func NewBuilder(project string) *Builder {
	return &Builder{c: &Census{Project: project, roles: make(map[string]Role)}}
}

// Add records a member with the given role and returns the builder.
func (b *Builder) Add(user string, role Role) *Builder {
	b.c.add(user, role)
	return b
}

// Build returns the assembled census.
func (b *Builder) Build() *Census {
	return b.c
}
