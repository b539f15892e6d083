package bot

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/internal/census"
	"github.com/openjdk/jmerge/internal/issues"
)

var titleCaser = cases.Title(language.English)

// bodyInput gathers everything the body renderer needs. All fields are
// computed earlier in the run; rendering itself is pure.
type bodyInput struct {
	userBody    string
	requirement Requirement
	verdicts    []ReviewerVerdict
	issueState  *IssueState
	blockers    []string
	warnings    []string
	errorText   string
	reviewing   []string
	issueURL    func(key string) string
	censusLink  string
	satisfied   bool
	checksOK    bool
}

// renderBody produces the canonical PR body: the user-authored preamble
// up to the auto marker, followed by the generated sections.
func renderBody(in *bodyInput) string {
	var sb strings.Builder

	sb.WriteString(bodyPreamble(in.userBody))
	sb.WriteString("\n")
	sb.WriteString(consts.BodyAutoMarker)
	sb.WriteString("\n")

	renderProgress(&sb, in)
	renderIssues(&sb, in)
	renderReviewers(&sb, in)
	renderReviewing(&sb, in)
	renderList(&sb, "Integration blocker", in.blockers)
	renderList(&sb, "Warning", in.warnings)
	if in.errorText != "" {
		sb.WriteString("\n### Error\n\n")
		sb.WriteString(strings.TrimSpace(in.errorText))
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// bodyPreamble returns the user-authored prose above the auto marker,
// preserved verbatim.
func bodyPreamble(body string) string {
	if idx := strings.Index(body, consts.BodyAutoMarker); idx >= 0 {
		return strings.TrimRight(body[:idx], " \t\n")
	}
	return strings.TrimRight(body, " \t\n")
}

func renderProgress(sb *strings.Builder, in *bodyInput) {
	sb.WriteString("\n### Progress\n\n")
	sb.WriteString(checklistItem(in.checksOK, "Change must not cause any new jcheck errors"))
	sb.WriteString(checklistItem(in.satisfied, reviewRequirementLine(in.requirement)))
	if in.issueState != nil && in.issueState.CSRRequired {
		done := in.issueState.CSR != nil &&
			(in.issueState.CSR.Status == "Approved" || in.issueState.CSR.Status == "Closed")
		item := "Change requires a CSR request to be approved"
		if in.issueState.CSR != nil {
			item = fmt.Sprintf("Change requires CSR request [%s](%s) to be approved",
				in.issueState.CSR.Key, in.issueURL(in.issueState.CSR.Key))
		}
		sb.WriteString(checklistItem(done, item))
	}
	if in.issueState != nil && in.issueState.JEP != nil {
		sb.WriteString(checklistItem(jepTargeted(in.issueState.JEP),
			fmt.Sprintf("Change requires JEP [%s](%s) to be targeted",
				in.issueState.JEP.Key, in.issueURL(in.issueState.JEP.Key))))
	}
}

func checklistItem(done bool, text string) string {
	mark := " "
	if done {
		mark = "x"
	}
	return fmt.Sprintf("- [%s] %s\n", mark, text)
}

// reviewRequirementLine renders the requirement in the Progress section,
// e.g. "Change must be properly reviewed (1 review required, with at
// least 1 Reviewer)".
func reviewRequirementLine(req Requirement) string {
	total := req.Total()
	if total == 0 {
		return "Change must be properly reviewed (no reviews required)"
	}
	var parts []string
	for _, role := range rolesDesc {
		if n := req[role]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, roleTitle(role, n)))
		}
	}
	reviews := "reviews"
	if total == 1 {
		reviews = "review"
	}
	return fmt.Sprintf("Change must be properly reviewed (%d %s required, with at least %s)",
		total, reviews, strings.Join(parts, ", "))
}

func roleTitle(role census.Role, n int) string {
	name := titleCaser.String(role.String())
	if n > 1 {
		name += "s"
	}
	return name
}

func renderIssues(sb *strings.Builder, in *bodyInput) {
	if in.issueState == nil {
		return
	}
	var lines []string
	appendIssue := func(issue *issues.Issue, key string) {
		if issue != nil {
			key = issue.Key
		}
		line := fmt.Sprintf("- [%s](%s)", key, in.issueURL(key))
		if issue != nil {
			line += ": " + issue.Title
			switch issue.Type {
			case "CSR":
				line += " (**CSR**)"
			case "JEP":
				line += " (**JEP**)"
			}
		}
		lines = append(lines, line)
	}

	if in.issueState.Primary != nil {
		appendIssue(in.issueState.Primary, "")
	} else if in.issueState.PrimaryKey != "" {
		appendIssue(nil, in.issueState.PrimaryKey)
	}
	for _, issue := range in.issueState.Additional {
		appendIssue(issue, "")
	}
	for _, key := range in.issueState.AdditionalKeys {
		appendIssue(nil, key)
	}
	if in.issueState.CSR != nil {
		appendIssue(in.issueState.CSR, "")
	}
	if in.issueState.JEP != nil {
		appendIssue(in.issueState.JEP, "")
	}

	if len(lines) == 0 {
		return
	}
	header := "Issue"
	if len(lines) > 1 {
		header = "Issues"
	}
	fmt.Fprintf(sb, "\n### %s\n\n%s\n", header, strings.Join(lines, "\n"))
}

func renderReviewers(sb *strings.Builder, in *bodyInput) {
	if len(in.verdicts) == 0 {
		return
	}
	sb.WriteString("\n### Reviewers\n\n")
	for _, v := range in.verdicts {
		line := fmt.Sprintf("- %s", reviewerLink(v.User, in.censusLink))
		if v.Role != census.RoleNone {
			line += fmt.Sprintf(" (**%s**)", titleCaser.String(v.Role.String()))
		} else {
			line += " (no project role)"
		}
		switch {
		case v.SelfReview:
			line += " ⚠️ Self-reviews are not allowed"
		case !v.Active:
			line += fmt.Sprintf(" 🔄 Re-review required (review applies to %s)", shortHash(v.Hash))
		}
		sb.WriteString(line + "\n")
	}
}

// reviewerLink renders a reviewer name, linked to the census profile
// when a censusLink template ("...%s...") is configured.
func reviewerLink(user, censusLink string) string {
	if censusLink == "" {
		return "@" + user
	}
	return fmt.Sprintf("[%s](%s)", user, fmt.Sprintf(censusLink, user))
}

func renderReviewing(sb *strings.Builder, in *bodyInput) {
	if len(in.reviewing) == 0 {
		return
	}
	sb.WriteString("\n### Reviewing\n\n")
	for _, line := range in.reviewing {
		sb.WriteString(line + "\n")
	}
	sb.WriteString(MarkerWebrev + "\n")
}

func renderList(sb *strings.Builder, singular string, items []string) {
	if len(items) == 0 {
		return
	}
	header := singular
	if len(items) > 1 {
		header = singular + "s"
	}
	fmt.Fprintf(sb, "\n### %s\n\n", header)
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
}
