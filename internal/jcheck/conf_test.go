package jcheck

import (
	"testing"

	"github.com/openjdk/jmerge/internal/census"
)

const sampleConf = `# jcheck configuration
[general]
project=jdk
version=17

[checks]
error=whitespace,executable,symlink,issues
warning=issuestitle,binary

[checks "reviewers"]
reviewers=1
ignore=duke

[checks "whitespace"]
files=.*\.java|.*\.c

[repository]
tags=jdk-.*
branches=master|jdk.*
`

func TestParseConf(t *testing.T) {
	conf, err := ParseConf([]byte(sampleConf))
	if err != nil {
		t.Fatalf("ParseConf() error = %v", err)
	}

	if conf.Project() != "jdk" {
		t.Errorf("Project() = %q", conf.Project())
	}
	if conf.Version() != "17" {
		t.Errorf("Version() = %q", conf.Version())
	}
	if conf.TagPattern() != "jdk-.*" {
		t.Errorf("TagPattern() = %q", conf.TagPattern())
	}
	if conf.WhitespaceFilePattern() != `.*\.java|.*\.c` {
		t.Errorf("WhitespaceFilePattern() = %q", conf.WhitespaceFilePattern())
	}
}

func TestParseConf_Severities(t *testing.T) {
	conf, err := ParseConf([]byte(sampleConf))
	if err != nil {
		t.Fatalf("ParseConf() error = %v", err)
	}

	sev, ok := conf.CheckEnabled("whitespace")
	if !ok || sev != SeverityError {
		t.Errorf("whitespace = (%v, %v), want error", sev, ok)
	}
	sev, ok = conf.CheckEnabled("issuestitle")
	if !ok || sev != SeverityWarning {
		t.Errorf("issuestitle = (%v, %v), want warning", sev, ok)
	}
	if _, ok := conf.CheckEnabled("copyright"); ok {
		t.Error("copyright should not be enabled")
	}
}

func TestReviewerRequirements(t *testing.T) {
	conf, err := ParseConf([]byte(sampleConf))
	if err != nil {
		t.Fatalf("ParseConf() error = %v", err)
	}

	req := conf.ReviewerRequirements()
	if req[census.RoleReviewer] != 1 {
		t.Errorf("reviewer requirement = %d, want 1", req[census.RoleReviewer])
	}
	if req[census.RoleCommitter] != 0 {
		t.Errorf("committer requirement = %d, want 0", req[census.RoleCommitter])
	}

	ignored := conf.IgnoredReviewers()
	if len(ignored) != 1 || ignored[0] != "duke" {
		t.Errorf("IgnoredReviewers() = %v", ignored)
	}
}

func TestReviewerRequirements_MultipleRoles(t *testing.T) {
	conf, err := ParseConf([]byte(`[general]
project=jdk
[checks]
error=reviewers
[checks "reviewers"]
lead=1
reviewers=2
committers=1
`))
	if err != nil {
		t.Fatalf("ParseConf() error = %v", err)
	}
	req := conf.ReviewerRequirements()
	if req[census.RoleLead] != 1 || req[census.RoleReviewer] != 2 || req[census.RoleCommitter] != 1 {
		t.Errorf("requirements = %v", req)
	}
}

func TestParseConf_Errors(t *testing.T) {
	cases := []string{
		"[general\nproject=jdk",  // unterminated header
		"project=jdk",            // entry outside section
		"[general]\nnovalue",     // missing =
		"[checks]\nerror=issues", // missing [general]
	}
	for _, c := range cases {
		if _, err := ParseConf([]byte(c)); err == nil {
			t.Errorf("ParseConf(%q) should fail", c)
		}
	}
}

func TestConfHash_Stable(t *testing.T) {
	a, err := ParseConf([]byte(sampleConf))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseConf([]byte(sampleConf))
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash() != b.Hash() {
		t.Error("same input should produce the same hash")
	}

	c, err := ParseConf([]byte(sampleConf + "\n# trailing comment"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash() == c.Hash() {
		t.Error("different input should produce a different hash")
	}
}

func TestSectionKey(t *testing.T) {
	cases := map[string]string{
		"general":             "general",
		`checks "reviewers"`:  "checks.reviewers",
		`Checks "Whitespace"`: "checks.whitespace",
	}
	for header, want := range cases {
		if got := sectionKey(header); got != want {
			t.Errorf("sectionKey(%q) = %q, want %q", header, got, want)
		}
	}
}
