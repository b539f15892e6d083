package bot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/jcheck"
)

// runChecks executes the jcheck pipeline for a pull request: special
// errors first, then the authoritative target-configuration pass, then
// the advisory source-configuration pass when the PR modifies the
// configuration itself. Findings from both passes are deduplicated with
// the target pass winning.
func (b *Bot) runChecks(ctx context.Context, pr *forge.PullRequest, res *Resolution, snap *Snapshot, verdicts []ReviewerVerdict) (findings []jcheck.Finding, sourceConfErr error) {
	if !res.Ok() || snap == nil {
		return nil, nil
	}

	findings = append(findings, specialErrors(b, pr, snap, verdicts)...)
	findings = append(findings, b.engine.Run(res.Conf, snap.Change)...)

	if snap.Change.TouchesPath(jcheck.ConfPath) {
		srcConf, err := b.sourceConf(ctx, pr)
		if err != nil {
			// A malformed proposed configuration must not crash the
			// run; it fails the check with a retry title instead.
			return findings, err
		}
		if srcConf != nil {
			for _, f := range b.engine.Run(srcConf, snap.Change) {
				f.Origin = jcheck.OriginSourceConf
				findings = append(findings, f)
			}
		}
	}

	return jcheck.Dedupe(findings), nil
}

// specialErrors are check failures emitted directly rather than through
// configured checks.
func specialErrors(b *Bot, pr *forge.PullRequest, snap *Snapshot, verdicts []ReviewerVerdict) []jcheck.Finding {
	var out []jcheck.Finding
	fail := func(message string) {
		out = append(out, jcheck.Finding{
			Severity: jcheck.SeverityError,
			Kind:     "pullrequest",
			Message:  message,
		})
	}

	if bodyPreamble(pr.Body) == "" {
		fail("The pull request body must not be empty.")
	}
	if snap.Change.IsEmpty() {
		fail("The pull request contains no changes.")
	}
	if snap.SubsetOfTarget {
		fail(fmt.Sprintf("The changes in this pull request are already present on the target branch `%s`.", pr.TargetRef))
	}
	if !b.cfg.TargetBranchAllowed(pr.TargetRef) {
		fail(fmt.Sprintf("The branch `%s` is not allowed as a target branch for pull requests.", pr.TargetRef))
	}
	for label, reason := range b.cfg.BlockingCheckLabels {
		if pr.HasLabel(label) {
			fail(reason)
		}
	}
	if hasSelfApproval(verdicts) {
		fail("Self-reviews are not allowed and do not count towards the required number of reviews.")
	}

	return out
}

// checkFingerprint is the opaque cache key of a completed check run.
// Two runs with equal fingerprints would produce identical projections,
// so the later one can be skipped entirely.
func checkFingerprint(targetHead, sourceHead, confHash, body string, generation int, events string) string {
	h := sha256.New()
	h.Write([]byte(targetHead))
	h.Write([]byte{0})
	h.Write([]byte(sourceHead))
	h.Write([]byte{0})
	h.Write([]byte(confHash))
	h.Write([]byte{0})
	bodySum := sha256.Sum256([]byte(body))
	h.Write(bodySum[:])
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(generation)))
	h.Write([]byte{0})
	h.Write([]byte(events))
	return "jmerge-v1:" + hex.EncodeToString(h.Sum(nil))
}

// eventsDigest folds the review stream, the comment stream and the
// label set into the fingerprint so any new activity on the PR forces a
// re-evaluation.
func eventsDigest(pr *forge.PullRequest, reviews []*forge.Review, comments []*forge.Comment) string {
	h := sha256.New()
	for _, r := range reviews {
		fmt.Fprintf(h, "r%d:%s:%d:%s:%s\n", r.ID, r.User, r.Verdict, r.Hash, r.TargetRef)
	}
	for _, c := range comments {
		fmt.Fprintf(h, "c%d:%d\n", c.ID, c.UpdatedAt.UnixNano())
	}
	labels := append([]string(nil), pr.Labels...)
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(h, "l%s\n", l)
	}
	return hex.EncodeToString(h.Sum(nil))
}
