package jcheck

import (
	"fmt"
	"regexp"
	"strings"
)

// check is a single named structural check over a change snapshot.
type check interface {
	Name() string
	Run(conf *Conf, change *Change, severity Severity) []Finding
}

// builtinChecks returns the registered structural checks in a stable order.
func builtinChecks() []check {
	return []check{
		whitespaceCheck{},
		executableCheck{},
		symlinkCheck{},
		binaryCheck{},
		issuesCheck{},
		issuesTitleCheck{},
	}
}

// CheckNames lists the names of all registered checks.
func CheckNames() []string {
	var names []string
	for _, c := range builtinChecks() {
		names = append(names, c.Name())
	}
	return names
}

// whitespaceCheck flags added lines with trailing whitespace, tabs, or
// carriage returns in files matching the configured pattern.
type whitespaceCheck struct{}

func (whitespaceCheck) Name() string { return "whitespace" }

func (whitespaceCheck) Run(conf *Conf, change *Change, severity Severity) []Finding {
	pattern := conf.WhitespaceFilePattern()
	re, err := regexp.Compile("^(" + pattern + ")$")
	if err != nil {
		return []Finding{{
			Severity: SeverityError,
			Kind:     "whitespace",
			Message:  fmt.Sprintf("invalid whitespace file pattern %q", pattern),
		}}
	}

	var findings []Finding
	for _, f := range change.Files {
		if f.Binary || !re.MatchString(f.Path) {
			continue
		}
		for _, line := range f.Added {
			var problems []string
			if strings.HasSuffix(line.Text, " ") || strings.HasSuffix(line.Text, "\t") {
				problems = append(problems, "trailing whitespace")
			}
			if strings.Contains(line.Text, "\t") {
				problems = append(problems, "tab")
			}
			if strings.Contains(line.Text, "\r") {
				problems = append(problems, "carriage return")
			}
			if len(problems) > 0 {
				findings = append(findings, Finding{
					Severity: severity,
					Kind:     "whitespace",
					Message: fmt.Sprintf("Whitespace error in %s:%d (%s)",
						f.Path, line.Number, strings.Join(problems, ", ")),
				})
			}
		}
	}
	return findings
}

// executableCheck flags newly executable files.
type executableCheck struct{}

func (executableCheck) Name() string { return "executable" }

func (executableCheck) Run(conf *Conf, change *Change, severity Severity) []Finding {
	var findings []Finding
	for _, f := range change.Files {
		if f.Executable {
			findings = append(findings, Finding{
				Severity: severity,
				Kind:     "executable",
				Message:  fmt.Sprintf("Executable files are not allowed (file: %s)", f.Path),
			})
		}
	}
	return findings
}

// symlinkCheck flags symbolic links.
type symlinkCheck struct{}

func (symlinkCheck) Name() string { return "symlink" }

func (symlinkCheck) Run(conf *Conf, change *Change, severity Severity) []Finding {
	var findings []Finding
	for _, f := range change.Files {
		if f.Symlink {
			findings = append(findings, Finding{
				Severity: severity,
				Kind:     "symlink",
				Message:  fmt.Sprintf("Symbolic links are not allowed (file: %s)", f.Path),
			})
		}
	}
	return findings
}

// binaryCheck flags binary files.
type binaryCheck struct{}

func (binaryCheck) Name() string { return "binary" }

func (binaryCheck) Run(conf *Conf, change *Change, severity Severity) []Finding {
	var findings []Finding
	for _, f := range change.Files {
		if f.Binary {
			findings = append(findings, Finding{
				Severity: severity,
				Kind:     "binary",
				Message:  fmt.Sprintf("Binary files are not allowed (file: %s)", f.Path),
			})
		}
	}
	return findings
}

// issueTitleRe matches a canonical title: one or more issue ids followed
// by a description, e.g. "8123456: Fix the thing".
var issueTitleRe = regexp.MustCompile(`^([0-9]+): \S.*$`)

// issuesCheck requires the change title to reference an issue id.
type issuesCheck struct{}

func (issuesCheck) Name() string { return "issues" }

func (issuesCheck) Run(conf *Conf, change *Change, severity Severity) []Finding {
	if issueTitleRe.MatchString(change.Title) {
		return nil
	}
	return []Finding{{
		Severity: severity,
		Kind:     "issues",
		Message:  "The commit message does not reference any issue",
	}}
}

// issuesTitleCheck flags issue titles that end in a period or start
// lowercase, mirroring the upstream issuestitle check.
type issuesTitleCheck struct{}

func (issuesTitleCheck) Name() string { return "issuestitle" }

func (issuesTitleCheck) Run(conf *Conf, change *Change, severity Severity) []Finding {
	m := issueTitleRe.FindStringSubmatch(change.Title)
	if m == nil {
		return nil // issuesCheck reports the malformed title
	}
	desc := strings.TrimSpace(change.Title[strings.Index(change.Title, ":")+1:])

	var findings []Finding
	if strings.HasSuffix(desc, ".") {
		findings = append(findings, Finding{
			Severity: severity,
			Kind:     "issuestitle",
			Message:  "Issue title should not end with a period",
		})
	}
	if desc != "" {
		first := rune(desc[0])
		if first >= 'a' && first <= 'z' {
			findings = append(findings, Finding{
				Severity: severity,
				Kind:     "issuestitle",
				Message:  "Issue title should start with an uppercase letter",
			})
		}
	}
	return findings
}
