package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/issues"
	"github.com/openjdk/jmerge/pkg/errors"
)

// IssueState is the Issue Linker's view of a pull request: the primary
// issue named in the title, additional claimed issues, gating CSR/JEP
// issues, and any integration blockers derived from tracker state.
type IssueState struct {
	// PrimaryKey is the full tracker key derived from the title, ""
	// when the title names no issue.
	PrimaryKey string
	// Primary is the resolved primary issue, nil when the fetch failed
	// or the title names no issue.
	Primary *issues.Issue
	// Additional holds the issues added via /issue commands, resolved
	// where possible.
	Additional []*issues.Issue
	// AdditionalKeys preserves unresolvable additional issue keys.
	AdditionalKeys []string

	CSR *issues.Issue
	JEP *issues.Issue
	// CSRRequired is the effective CSR gate after command overrides.
	CSRRequired bool

	// Blockers are integration blockers rendered in the body. They gate
	// /integrate but do not fail the status check by themselves.
	Blockers []string
	Warnings []string

	// TitleRewrite is the canonical title the PR should carry, "" when
	// the current title is already canonical.
	TitleRewrite string
}

// titleIssueRe matches a leading issue reference in a PR title: a bare
// numeric id or a project-qualified key, optionally followed by a
// separator and the issue title.
var titleIssueRe = regexp.MustCompile(`^(?:([A-Za-z][A-Za-z0-9]*)-)?([0-9]+)(?:[ \t]*[:\-][ \t]*|[ \t]+)?(.*)$`)

// canonicalizeTitle normalizes a PR title for issue matching: Unicode
// NFC, non-breaking spaces to ordinary spaces, collapsed runs of
// whitespace, trimmed ends.
func canonicalizeTitle(title string) string {
	t := norm.NFC.String(title)
	t = strings.ReplaceAll(t, "\u00a0", " ")
	return strings.Join(strings.Fields(t), " ")
}

// linkIssues resolves the issue references for a PR and computes the
// resulting blockers, warnings and title rewrite.
func (b *Bot) linkIssues(ctx context.Context, pr *forge.PullRequest, version string, eff *CommandEffects) (*IssueState, error) {
	state := &IssueState{}

	// A bot without a tracker skips issue bridging entirely: no keys
	// are resolved and no issue-derived blockers apply.
	if b.tracker == nil {
		return state, nil
	}

	title := canonicalizeTitle(pr.Title)

	m := titleIssueRe.FindStringSubmatch(title)
	if m != nil {
		project, id, rest := strings.ToUpper(m[1]), m[2], strings.TrimSpace(m[3])
		switch {
		case project != "" && project != strings.ToUpper(b.cfg.IssueProject):
			state.Blockers = append(state.Blockers,
				fmt.Sprintf("The issue `%s-%s` does not belong to the `%s` project - make sure you correctly state the issue ID in the PR title.",
					project, id, b.cfg.IssueProject))
		default:
			state.PrimaryKey = issues.Key(b.cfg.IssueProject, id)
			b.resolvePrimary(ctx, state, rest)
		}
	}

	b.resolveAdditional(ctx, state, eff)
	b.resolveCSR(ctx, state, version, eff)
	b.resolveJEP(ctx, state, eff)

	if b.cfg.VersionMismatchWarning && state.Primary != nil && version != "" {
		if !hasFixVersion(state.Primary, version) {
			state.Warnings = append(state.Warnings,
				fmt.Sprintf("The version `%s` from the jcheck configuration does not match the fix version%s of [%s](%s); a backport issue will be created at integration time.",
					version, plural(len(state.Primary.FixVersions)), state.Primary.Key, b.issueURL(state.Primary.Key)))
		}
	}

	return state, nil
}

// resolvePrimary fetches the primary issue and derives the title
// rewrite and title-related blockers.
func (b *Bot) resolvePrimary(ctx context.Context, state *IssueState, titleRest string) {
	issue, err := b.tracker.GetIssue(ctx, state.PrimaryKey)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeIssueNotFound) {
			state.Blockers = append(state.Blockers,
				fmt.Sprintf("Failed to retrieve information on issue `%s`.", state.PrimaryKey))
			return
		}
		// Transient tracker failure: blocker, retried on the next run.
		state.Blockers = append(state.Blockers,
			fmt.Sprintf("Temporary failure when trying to retrieve information on issue `%s`.", state.PrimaryKey))
		return
	}
	state.Primary = issue

	switch issue.Type {
	case "CSR", "JEP", "Backport":
		state.Blockers = append(state.Blockers,
			fmt.Sprintf("The issue [%s](%s) is of type `%s`, which cannot be used as the primary issue for a pull request.",
				issue.Key, b.issueURL(issue.Key), issue.Type))
	}

	canonical := issue.ID() + ": " + canonicalizeTitle(issue.Title)
	issueTitle := canonicalizeTitle(issue.Title)
	switch {
	case titleRest == "":
		// Bare id or <project>-<id> title: adopt the issue title.
		state.TitleRewrite = canonical
	case titleRest == issueTitle:
		// Already canonical apart from separators.
	case strings.HasSuffix(titleRest, "…") &&
		strings.HasPrefix(issueTitle, strings.TrimSuffix(titleRest, "…")):
		// The forge truncated the title; restore it from the issue.
		state.TitleRewrite = canonical
	default:
		state.Blockers = append(state.Blockers,
			fmt.Sprintf("Title mismatch between PR title and JBS issue title for [%s](%s).",
				issue.Key, b.issueURL(issue.Key)))
	}
}

func (b *Bot) resolveAdditional(ctx context.Context, state *IssueState, eff *CommandEffects) {
	seen := map[string]bool{state.PrimaryKey: true}
	for _, key := range eff.AdditionalIssues {
		if seen[key] || eff.RemovedIssues[key] {
			continue
		}
		seen[key] = true
		issue, err := b.tracker.GetIssue(ctx, key)
		if err != nil {
			state.AdditionalKeys = append(state.AdditionalKeys, key)
			state.Blockers = append(state.Blockers,
				fmt.Sprintf("Failed to retrieve information on issue `%s`.", key))
			continue
		}
		state.Additional = append(state.Additional, issue)
	}
}

// resolveCSR discovers the CSR gating the primary issue, honoring the
// /csr command override.
func (b *Bot) resolveCSR(ctx context.Context, state *IssueState, version string, eff *CommandEffects) {
	if !b.cfg.EnableCSR {
		return
	}
	if eff.CSRRequired != nil && !*eff.CSRRequired {
		return
	}

	var csrKey string
	if state.Primary != nil {
		csrKey = state.Primary.LinkedKey("csr for")
	}
	if csrKey != "" {
		csr, err := b.tracker.GetIssue(ctx, csrKey)
		if err == nil && csrForVersion(csr, version) {
			state.CSR = csr
		}
	}

	required := state.CSR != nil
	if eff.CSRRequired != nil {
		required = *eff.CSRRequired
	}
	state.CSRRequired = required
	if !required {
		return
	}

	switch {
	case state.CSR == nil:
		state.Blockers = append(state.Blockers,
			"A CSR request is required but no CSR issue is linked to the main issue. "+
				"Withdraw this pull request or create a CSR request.")
	case state.CSR.Status != "Approved" && state.CSR.Status != "Closed":
		state.Blockers = append(state.Blockers,
			fmt.Sprintf("The CSR [%s](%s) must be approved before this pull request can be integrated (status: %s).",
				state.CSR.Key, b.issueURL(state.CSR.Key), state.CSR.Status))
	}
}

// resolveJEP fetches the JEP named by /jep and records a blocker until
// the JEP is targeted.
func (b *Bot) resolveJEP(ctx context.Context, state *IssueState, eff *CommandEffects) {
	if !b.cfg.EnableJEP || eff.JEPKey == "" {
		return
	}
	jep, err := b.tracker.GetIssue(ctx, eff.JEPKey)
	if err != nil {
		state.Blockers = append(state.Blockers,
			fmt.Sprintf("Failed to retrieve information on JEP issue `%s`.", eff.JEPKey))
		return
	}
	state.JEP = jep
	if !jepTargeted(jep) {
		state.Blockers = append(state.Blockers,
			fmt.Sprintf("The JEP [%s](%s) must be targeted before this pull request can be integrated (status: %s).",
				jep.Key, b.issueURL(jep.Key), jep.Status))
	}
}

// jepTargeted reports whether a JEP has reached a state that no longer
// blocks integration: Targeted, or Closed with resolution Delivered.
func jepTargeted(jep *issues.Issue) bool {
	if jep.Status == "Targeted" {
		return true
	}
	return jep.Status == "Closed" && jep.Resolution == "Delivered"
}

// csrForVersion reports whether a CSR applies to the given fix version.
// A CSR without fix versions applies to every version.
func csrForVersion(csr *issues.Issue, version string) bool {
	if csr == nil {
		return false
	}
	if len(csr.FixVersions) == 0 || version == "" {
		return true
	}
	return hasFixVersion(csr, version)
}

func hasFixVersion(issue *issues.Issue, version string) bool {
	for _, v := range issue.FixVersions {
		if v == version {
			return true
		}
	}
	return false
}

// issueURL composes the tracker browse URL for an issue key.
func (b *Bot) issueURL(key string) string {
	base := strings.TrimSuffix(b.trackerURL, "/")
	if base == "" {
		return key
	}
	return base + "/browse/" + key
}

// allIssueKeys returns the keys of every issue the PR claims to solve,
// primary first.
func (s *IssueState) allIssueKeys() []string {
	var keys []string
	if s.PrimaryKey != "" {
		keys = append(keys, s.PrimaryKey)
	}
	for _, i := range s.Additional {
		keys = append(keys, i.Key)
	}
	keys = append(keys, s.AdditionalKeys...)
	return keys
}
