// Package jcheck implements the structural and policy check pipeline
// driven by a repository's .jcheck/conf file. The engine is a pure
// function over (configuration, change snapshot) so results can be
// cached by fingerprint.
package jcheck

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/openjdk/jmerge/internal/census"
	"github.com/openjdk/jmerge/pkg/errors"
)

// ConfPath is the location of the check configuration within a repository.
const ConfPath = ".jcheck/conf"

// Conf is a parsed .jcheck/conf document. The format is INI-like with
// quoted subsections: `[checks "reviewers"]` is stored under the key
// `checks.reviewers`.
type Conf struct {
	sections map[string]map[string]string
	raw      []byte
}

// ParseConf parses a .jcheck/conf blob.
func ParseConf(data []byte) (*Conf, error) {
	c := &Conf{
		sections: make(map[string]map[string]string),
		raw:      data,
	}

	current := ""
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, errors.New(errors.ErrCodeConfigParse,
					fmt.Sprintf("unterminated section header at line %d", lineNo))
			}
			header := strings.TrimSpace(line[1 : len(line)-1])
			current = sectionKey(header)
			if current == "" {
				return nil, errors.New(errors.ErrCodeConfigParse,
					fmt.Sprintf("empty section header at line %d", lineNo))
			}
			if _, ok := c.sections[current]; !ok {
				c.sections[current] = make(map[string]string)
			}
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, errors.New(errors.ErrCodeConfigParse,
				fmt.Sprintf("expected key=value at line %d", lineNo))
		}
		if current == "" {
			return nil, errors.New(errors.ErrCodeConfigParse,
				fmt.Sprintf("entry outside any section at line %d", lineNo))
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		c.sections[current][key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigParse, "reading configuration", err)
	}

	if _, ok := c.sections["general"]; !ok {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "missing [general] section")
	}

	return c, nil
}

// sectionKey normalizes a section header: `checks "reviewers"` becomes
// "checks.reviewers".
func sectionKey(header string) string {
	fields := strings.SplitN(header, " ", 2)
	name := strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) == 1 {
		return name
	}
	sub := strings.TrimSpace(fields[1])
	sub = strings.Trim(sub, `"`)
	if sub == "" {
		return name
	}
	return name + "." + strings.ToLower(sub)
}

// Get returns the value for key within section, with ok reporting presence.
func (c *Conf) Get(section, key string) (string, bool) {
	s, ok := c.sections[section]
	if !ok {
		return "", false
	}
	v, ok := s[key]
	return v, ok
}

// GetOr returns the value for key within section, or def when absent.
func (c *Conf) GetOr(section, key, def string) string {
	if v, ok := c.Get(section, key); ok {
		return v
	}
	return def
}

// Project returns the [general] project name.
func (c *Conf) Project() string {
	return c.GetOr("general", "project", "")
}

// Version returns the [general] version key, used for fix-version matching.
func (c *Conf) Version() string {
	return c.GetOr("general", "version", "")
}

// Hash returns a stable fingerprint of the raw configuration bytes.
func (c *Conf) Hash() string {
	sum := sha256.Sum256(c.raw)
	return hex.EncodeToString(sum[:])
}

// ErrorChecks returns the check names listed as errors in [checks].
func (c *Conf) ErrorChecks() []string {
	return splitList(c.GetOr("checks", "error", ""))
}

// WarningChecks returns the check names listed as warnings in [checks].
func (c *Conf) WarningChecks() []string {
	return splitList(c.GetOr("checks", "warning", ""))
}

// CheckEnabled reports whether a named check is enabled and at which
// severity.
func (c *Conf) CheckEnabled(name string) (Severity, bool) {
	for _, n := range c.ErrorChecks() {
		if n == name {
			return SeverityError, true
		}
	}
	for _, n := range c.WarningChecks() {
		if n == name {
			return SeverityWarning, true
		}
	}
	return 0, false
}

// ReviewerRequirements returns the minimum verdict count per role from
// [checks "reviewers"]. Both the plural section keys used by current
// configurations (reviewers=1) and the legacy `minimum` key are honored.
func (c *Conf) ReviewerRequirements() map[census.Role]int {
	req := map[census.Role]int{
		census.RoleLead:        0,
		census.RoleReviewer:    0,
		census.RoleCommitter:   0,
		census.RoleAuthor:      0,
		census.RoleContributor: 0,
	}

	section, ok := c.sections["checks.reviewers"]
	if !ok {
		return req
	}

	for key, value := range section {
		role := census.ParseRole(key)
		if role == census.RoleNone {
			if key == "minimum" {
				role = census.RoleReviewer
			} else {
				continue
			}
		}
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			req[role] = n
		}
	}
	return req
}

// IgnoredReviewers returns users whose verdicts never count toward the
// reviewer requirement.
func (c *Conf) IgnoredReviewers() []string {
	return splitList(c.GetOr("checks.reviewers", "ignore", ""))
}

// WhitespaceFilePattern returns the file pattern the whitespace check
// applies to, defaulting to all files.
func (c *Conf) WhitespaceFilePattern() string {
	return c.GetOr("checks.whitespace", "files", ".*")
}

// TagPattern returns the [repository] tag-name pattern, or empty when
// unrestricted.
func (c *Conf) TagPattern() string {
	return c.GetOr("repository", "tags", "")
}

// BranchPattern returns the [repository] branch-name pattern.
func (c *Conf) BranchPattern() string {
	return c.GetOr("repository", "branches", "")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
