package census

import (
	"context"
	"testing"
)

const sampleCensus = `<?xml version="1.0" encoding="UTF-8"?>
<census time="2026-01-01T00:00:00Z">
  <person name="duke"><full-name>Duke</full-name></person>
  <project name="jdk">
    <lead name="lead1" since="0"/>
    <reviewer name="rev1" since="0"/>
    <reviewer name="rev2" since="9"/>
    <committer name="com1" since="0"/>
    <author name="auth1" since="0"/>
  </project>
  <project name="other">
    <reviewer name="stranger" since="0"/>
  </project>
</census>`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleCensus), "jdk")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cases := map[string]Role{
		"lead1":    RoleLead,
		"rev1":     RoleReviewer,
		"rev2":     RoleReviewer,
		"com1":     RoleCommitter,
		"auth1":    RoleAuthor,
		"stranger": RoleNone,
		"nobody":   RoleNone,
	}
	for user, want := range cases {
		if got := c.Role(user); got != want {
			t.Errorf("Role(%q) = %v, want %v", user, got, want)
		}
	}
}

func TestParse_UnknownProject(t *testing.T) {
	if _, err := Parse([]byte(sampleCensus), "missing"); err == nil {
		t.Error("Parse() should fail for unknown project")
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte("<census"), "jdk"); err == nil {
		t.Error("Parse() should fail for malformed XML")
	}
}

func TestRoleOrdering(t *testing.T) {
	if !RoleLead.AtLeast(RoleReviewer) {
		t.Error("lead should satisfy reviewer requirement")
	}
	if !RoleReviewer.AtLeast(RoleCommitter) {
		t.Error("reviewer should satisfy committer requirement")
	}
	if RoleAuthor.AtLeast(RoleCommitter) {
		t.Error("author should not satisfy committer requirement")
	}
	if RoleNone.AtLeast(RoleContributor) {
		t.Error("none should not satisfy contributor requirement")
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"lead":         RoleLead,
		"reviewer":     RoleReviewer,
		"reviewers":    RoleReviewer,
		"committer":    RoleCommitter,
		"author":       RoleAuthor,
		"contributors": RoleContributor,
		"bogus":        RoleNone,
	}
	for s, want := range cases {
		if got := ParseRole(s); got != want {
			t.Errorf("ParseRole(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestRoleString_RoundTrip(t *testing.T) {
	for _, r := range []Role{RoleLead, RoleReviewer, RoleCommitter, RoleAuthor, RoleContributor} {
		if ParseRole(r.String()) != r {
			t.Errorf("round trip failed for %v", r)
		}
	}
}

func TestMembers(t *testing.T) {
	c, err := Parse([]byte(sampleCensus), "jdk")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	reviewers := c.Members(RoleReviewer)
	if len(reviewers) != 3 { // lead1, rev1, rev2
		t.Errorf("Members(RoleReviewer) = %v, want 3 entries", reviewers)
	}
}

func TestBuilder(t *testing.T) {
	c := NewBuilder("test").
		Add("a", RoleAuthor).
		Add("r", RoleReviewer).
		Add("r", RoleAuthor). // lower role must not demote
		Build()

	if c.Role("r") != RoleReviewer {
		t.Errorf("Role(r) = %v, want reviewer", c.Role("r"))
	}
	if !c.IsMember("a") {
		t.Error("a should be a member")
	}
}

func TestStaticStore(t *testing.T) {
	c := NewBuilder("test").Add("a", RoleAuthor).Build()
	s := NewStaticStore(c)

	got, err := s.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if got != c {
		t.Error("Current() should return the configured census")
	}

	empty := NewStaticStore(nil)
	if _, err := empty.Current(context.Background()); err == nil {
		t.Error("Current() should fail without a census")
	}
}
