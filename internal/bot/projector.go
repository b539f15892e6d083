package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/jcheck"
)

// OutboundComment is a comment the bot wants present on the PR.
type OutboundComment struct {
	Marker string
	Body   string
	// OneShot comments are posted at most once; an existing comment
	// with the same marker is never rewritten.
	OneShot bool
}

// DesiredState is the target forge state computed by the projector.
// The reconciler diffs it against the observed state and applies the
// minimal mutations.
type DesiredState struct {
	// Labels maps each managed label to whether it must be present.
	// Labels outside the map are left untouched.
	Labels map[string]bool
	// Title is the canonical title, "" when no rewrite is needed.
	Title string
	// Body is the rendered canonical body.
	Body string
	// Check is the desired jcheck status; a zero Status means the check
	// is not touched this run (drafts).
	Check forge.Check
	// Comments are the marker-keyed outbound comments.
	Comments []OutboundComment
}

// projectionInput carries everything the projector consumes. The
// projector itself performs no I/O and never consults prior state.
type projectionInput struct {
	pr          *forge.PullRequest
	cfg         *config.BotConfig
	resolution  *Resolution
	issueState  *IssueState
	verdicts    []ReviewerVerdict
	requirement Requirement
	findings    []jcheck.Finding
	snapshot    *Snapshot
	backport    *BackportInfo
	// mergePR marks a merge-style pull request; mergeAllowed reflects
	// the enableMerge configuration.
	mergePR      bool
	mergeAllowed bool
	effects      *CommandEffects
	// readyPrereqs reflects the readyLabels/readyComments gates.
	readyPrereqs bool
	// sourceConfErr is a fatal error from the source-configuration
	// jcheck pass; it fails the check with a retry title.
	sourceConfErr error
	fingerprint   string
	summaryCap    int
	censusLink    string
	issueURL      func(key string) string
}

// project computes the desired forge state. It is a pure function of
// its input.
func project(in *projectionInput) *DesiredState {
	st := &DesiredState{Labels: managedLabels(in)}

	errorFindings := targetErrors(in.findings)
	checksOK := in.resolution.Ok() && len(errorFindings) == 0 && in.sourceConfErr == nil
	conflict := in.snapshot != nil && !in.snapshot.RebaseClean

	rfr := !in.pr.Draft && checksOK && !conflict && in.readyPrereqs
	ready := rfr && satisfied(in.requirement, in.verdicts)

	st.Labels[consts.LabelRFR] = rfr
	st.Labels[consts.LabelReady] = ready
	st.Labels[consts.LabelMergeConflict] = conflict

	if in.backport != nil {
		st.Labels[consts.LabelBackport] = true
		st.Labels[consts.LabelClean] = in.backport.Clean
	}
	if in.issueState != nil && in.issueState.JEP != nil {
		st.Labels[consts.LabelJEP] = !jepTargeted(in.issueState.JEP)
	}
	st.Labels[consts.LabelSponsor] = in.effects.SponsorRequested && !in.effects.IntegrateRequested
	if in.effects.IntegrateRequested && ready && noBlockers(in) {
		st.Labels[consts.LabelIntegrated] = true
	}
	if in.cfg.Approval != nil && in.cfg.Approval.Label != "" {
		st.Labels[in.cfg.Approval.Label] = in.effects.ApprovalRequested && !in.effects.approvalGranted()
	}

	if in.issueState != nil {
		st.Title = in.issueState.TitleRewrite
	}
	st.Body = projectBody(in, ready, checksOK)
	if !in.pr.Draft {
		st.Check = projectCheck(in, errorFindings)
	}
	st.Comments = projectComments(in, rfr, conflict)

	return st
}

// managedLabels returns the label map with every label the bot owns
// defaulted to absent. The block label stays human-owned.
func managedLabels(in *projectionInput) map[string]bool {
	labels := map[string]bool{
		consts.LabelRFR:           false,
		consts.LabelReady:         false,
		consts.LabelMergeConflict: false,
		consts.LabelSponsor:       false,
	}
	if in.backport != nil {
		labels[consts.LabelBackport] = false
		labels[consts.LabelClean] = false
	}
	return labels
}

// targetErrors filters the findings down to authoritative errors. The
// advisory source-configuration pass never fails the check.
func targetErrors(findings []jcheck.Finding) []jcheck.Finding {
	var out []jcheck.Finding
	for _, f := range findings {
		if f.Severity == jcheck.SeverityError && f.Origin == jcheck.OriginTargetConf {
			out = append(out, f)
		}
	}
	return out
}

func noBlockers(in *projectionInput) bool {
	return in.issueState == nil || len(in.issueState.Blockers) == 0
}

func projectBody(in *projectionInput, ready, checksOK bool) string {
	var warnings []string
	for _, f := range in.findings {
		if f.Severity != jcheck.SeverityWarning && f.Origin != jcheck.OriginSourceConf {
			continue
		}
		msg := f.Message
		if f.Origin == jcheck.OriginSourceConf {
			msg += " (failed with updated jcheck configuration in pull request)"
		}
		warnings = append(warnings, msg)
	}
	var blockers []string
	if in.issueState != nil {
		blockers = in.issueState.Blockers
		warnings = append(warnings, in.issueState.Warnings...)
	}
	if in.mergePR && !in.mergeAllowed {
		blockers = append(blockers, "Merge-style pull requests are not allowed in this repository.")
	}

	errorText := ""
	switch {
	case !in.resolution.Ok() && in.resolution.Missing:
		errorText = fmt.Sprintf("No jcheck configuration found at `%s`. "+
			"This repository cannot be checked until a configuration is added.", in.resolution.Source)
	case !in.resolution.Ok():
		errorText = fmt.Sprintf("The jcheck configuration at `%s` is invalid: %s",
			in.resolution.Source, in.resolution.Invalid)
	case in.sourceConfErr != nil:
		errorText = "Exception occurred during source jcheck - the operation will be retried."
	}

	bi := &bodyInput{
		userBody:    in.pr.Body,
		requirement: in.requirement,
		verdicts:    in.verdicts,
		issueState:  in.issueState,
		blockers:    blockers,
		warnings:    warnings,
		errorText:   errorText,
		reviewing:   reviewingLinks(in),
		issueURL:    in.issueURL,
		censusLink:  in.censusLink,
		satisfied:   satisfied(in.requirement, in.verdicts),
		checksOK:    checksOK,
	}
	return renderBody(bi)
}

// reviewingLinks renders the commit-range links of the Reviewing
// section using the forge URL scheme.
func reviewingLinks(in *projectionInput) []string {
	if in.snapshot == nil || in.pr.URL == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("Using the %s URL scheme:", in.pr.Repo.FullName()),
		fmt.Sprintf("- [Full changes](%s/files)", in.pr.URL),
		fmt.Sprintf("- [All commits](%s/commits/%s)", in.pr.URL, in.pr.HeadHash),
	}
}

func projectCheck(in *projectionInput, errorFindings []jcheck.Finding) forge.Check {
	check := forge.Check{
		Name:     consts.CheckName,
		Metadata: in.fingerprint,
	}

	switch {
	case in.sourceConfErr != nil:
		check.Status = forge.CheckFailure
		check.Title = "Exception occurred during source jcheck - the operation will be retried"
		check.Summary = in.sourceConfErr.Error()
	case !in.resolution.Ok():
		check.Status = forge.CheckFailure
		check.Title = "Required"
		if in.resolution.Missing {
			check.Summary = fmt.Sprintf("- No jcheck configuration found at `%s`", in.resolution.Source)
		} else {
			check.Summary = fmt.Sprintf("- Invalid jcheck configuration at `%s`: %s",
				in.resolution.Source, in.resolution.Invalid)
		}
	case len(errorFindings) > 0:
		check.Status = forge.CheckFailure
		check.Title = "Required"
		check.Summary = findingSummary(errorFindings, in.summaryCap)
	default:
		check.Status = forge.CheckSuccess
		check.Title = "Required"
		check.Summary = "All checks passed"
	}
	return check
}

// findingSummary renders errors as a bullet list, truncated with an
// ellipsis when it exceeds the forge's summary cap. Truncation happens
// on a rune boundary so a multi-byte sequence is never split.
func findingSummary(findings []jcheck.Finding, limit int) string {
	var sb strings.Builder
	for _, f := range findings {
		sb.WriteString("- " + f.Message + "\n")
	}
	out := strings.TrimRight(sb.String(), "\n")
	if limit <= 0 || len(out) <= limit {
		return out
	}
	const ellipsis = "..."
	cut := limit - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return out[:cut] + ellipsis
}

func projectComments(in *projectionInput, rfr, conflict bool) []OutboundComment {
	var out []OutboundComment

	if conflict {
		out = append(out, OutboundComment{
			Marker:  MarkerMergeConflict,
			OneShot: true,
			Body: fmt.Sprintf("@%s this pull request can not be integrated into `%s` due to one or more merge conflicts. "+
				"To resolve these merge conflicts and update this pull request you can run the following commands "+
				"in the local repository for your personal fork:\n"+
				"```bash\ngit checkout %s\ngit fetch %s %s\ngit merge FETCH_HEAD\n"+
				"# resolve conflicts and follow the instructions given by git merge\ngit commit -m \"Merge %s\"\ngit push\n```",
				in.pr.Author, in.pr.TargetRef, in.pr.SourceRef, "origin", in.pr.TargetRef, in.pr.TargetRef),
		})
	}

	if rfr {
		out = append(out, OutboundComment{
			Marker:  MarkerRFR,
			OneShot: true,
			Body: fmt.Sprintf("@%s This change now passes all *automated* pre-integration checks. "+
				"After integration, the commit message for the final commit will be determined from the issue title and reviewers.",
				in.pr.Author),
		})
	}

	if !in.pr.LastForcePush.IsZero() {
		out = append(out, OutboundComment{
			Marker:  MarkerForcePush,
			OneShot: true,
			Body: fmt.Sprintf("@%s Please do not rebase or force-push to an active PR as it invalidates existing review comments. "+
				"Note for future reference, the bots always squash all changes into a single commit automatically as part of the integration.",
				in.pr.Author),
		})
	}

	if in.backport != nil {
		out = append(out, backportComment(in))
	}

	if !in.resolution.Ok() {
		body := fmt.Sprintf("@%s The jcheck configuration for this repository could not be loaded from `%s`. "+
			"Checks are suspended for this pull request until the configuration is remedied.",
			in.pr.Author, in.resolution.Source)
		out = append(out, OutboundComment{Marker: MarkerConfigError, OneShot: true, Body: body})
	}

	if in.mergePR && !in.mergeAllowed {
		out = append(out, OutboundComment{
			Marker:  MarkerMergeRefusal,
			OneShot: true,
			Body: fmt.Sprintf("@%s Merge-style pull requests are not accepted in this repository. "+
				"Please rebase your branch onto `%s` instead.", in.pr.Author, in.pr.TargetRef),
		})
	}

	return out
}

func backportComment(in *projectionInput) OutboundComment {
	bp := in.backport
	switch {
	case !bp.Found:
		return OutboundComment{
			Marker:  MarkerBackportError,
			OneShot: true,
			Body: fmt.Sprintf("@%s Could not find the commit referenced in the title of this pull request in any branch of this repository. "+
				"Please make sure the commit hash or issue id is correct.", in.pr.Author),
		}
	case bp.Ancestor:
		return OutboundComment{
			Marker:  MarkerBackportError,
			OneShot: true,
			Body: fmt.Sprintf("@%s The commit referenced in the title of this pull request is already present on the target branch, "+
				"so there is nothing to backport.", in.pr.Author),
		}
	case bp.Clean:
		return OutboundComment{
			Marker:  BackportMarker(bp.Hash),
			OneShot: true,
			Body: fmt.Sprintf("This backport pull request has now been updated with issue from the original [commit](%s). "+
				"The backport applies cleanly and will not require a re-review.", bp.Hash),
		}
	default:
		return OutboundComment{
			Marker:  BackportMarker(bp.Hash),
			OneShot: true,
			Body: fmt.Sprintf("This backport pull request has now been updated with issue from the original [commit](%s). "+
				"The backport did not apply cleanly; please review the differences against the original change carefully.", bp.Hash),
		}
	}
}
