package bot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/internal/census"
	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/jcheck"
)

func baseProjection() *projectionInput {
	conf, err := jcheck.ParseConf([]byte("[general]\nproject=jdk\n"))
	if err != nil {
		panic(err)
	}
	return &projectionInput{
		pr: &forge.PullRequest{
			Repo:      forge.Repo{Owner: "openjdk", Name: "jdk"},
			Number:    1,
			Title:     "8123456: Fix the frobnicator",
			Body:      "Please review.",
			Author:    "duke",
			HeadHash:  "abc123abc123",
			TargetRef: "master",
			Open:      true,
		},
		cfg:          &config.BotConfig{},
		resolution:   &Resolution{Conf: conf},
		requirement:  Requirement{census.RoleReviewer: 1},
		snapshot:     &Snapshot{TargetHead: "t0", RebaseClean: true, Change: &jcheck.Change{}},
		effects:      newCommandEffects(),
		readyPrereqs: true,
		fingerprint:  "jmerge-v1:test",
		issueURL:     func(key string) string { return "https://bugs.test/browse/" + key },
	}
}

func TestProjectRFRWithoutApproval(t *testing.T) {
	in := baseProjection()
	st := project(in)

	assert.True(t, st.Labels[consts.LabelRFR])
	assert.False(t, st.Labels[consts.LabelReady])
	assert.False(t, st.Labels[consts.LabelMergeConflict])
	assert.Equal(t, forge.CheckSuccess, st.Check.Status)
	assert.Equal(t, "jmerge-v1:test", st.Check.Metadata)
	require.Len(t, st.Comments, 1)
	assert.Equal(t, MarkerRFR, st.Comments[0].Marker)
	assert.True(t, st.Comments[0].OneShot)
}

func TestProjectReadyImpliesRFR(t *testing.T) {
	in := baseProjection()
	in.verdicts = []ReviewerVerdict{{
		User: "reviewer1", Role: census.RoleReviewer,
		Verdict: forge.VerdictApproved, Active: true,
	}}
	st := project(in)

	assert.True(t, st.Labels[consts.LabelReady])
	assert.True(t, st.Labels[consts.LabelRFR], "ready must imply rfr")
}

func TestProjectMergeConflict(t *testing.T) {
	in := baseProjection()
	in.snapshot.RebaseClean = false
	in.verdicts = []ReviewerVerdict{{
		User: "reviewer1", Role: census.RoleReviewer,
		Verdict: forge.VerdictApproved, Active: true,
	}}
	st := project(in)

	assert.True(t, st.Labels[consts.LabelMergeConflict])
	assert.False(t, st.Labels[consts.LabelRFR])
	assert.False(t, st.Labels[consts.LabelReady])
	require.Len(t, st.Comments, 1)
	assert.Equal(t, MarkerMergeConflict, st.Comments[0].Marker)
	assert.Contains(t, st.Comments[0].Body, "To resolve these merge conflicts")
}

func TestProjectDraftSkipsCheck(t *testing.T) {
	in := baseProjection()
	in.pr.Draft = true
	st := project(in)

	assert.False(t, st.Labels[consts.LabelRFR])
	assert.Empty(t, st.Check.Status)
	assert.Empty(t, st.Comments)
}

func TestProjectErrorFindingsFailCheck(t *testing.T) {
	in := baseProjection()
	in.findings = []jcheck.Finding{
		{Severity: jcheck.SeverityError, Kind: "whitespace", Message: "Whitespace error in a.c:1 (tab)"},
		{Severity: jcheck.SeverityWarning, Kind: "issuestitle", Message: "Issue title should not end with a period"},
	}
	st := project(in)

	assert.False(t, st.Labels[consts.LabelRFR])
	assert.Equal(t, forge.CheckFailure, st.Check.Status)
	assert.Contains(t, st.Check.Summary, "- Whitespace error in a.c:1 (tab)")
	assert.NotContains(t, st.Check.Summary, "Issue title")
	// warnings surface in the body instead
	assert.Contains(t, st.Body, "Issue title should not end with a period")
}

func TestProjectSourceConfFindingsAreAdvisory(t *testing.T) {
	in := baseProjection()
	in.findings = []jcheck.Finding{
		{Severity: jcheck.SeverityError, Kind: "whitespace", Message: "Whitespace error in b.c:2 (tab)", Origin: jcheck.OriginSourceConf},
	}
	st := project(in)

	assert.Equal(t, forge.CheckSuccess, st.Check.Status)
	assert.True(t, st.Labels[consts.LabelRFR])
	assert.Contains(t, st.Body, "failed with updated jcheck configuration in pull request")
}

func TestProjectReadyPrereqsGateRFR(t *testing.T) {
	in := baseProjection()
	in.readyPrereqs = false
	st := project(in)
	assert.False(t, st.Labels[consts.LabelRFR])
}

func TestProjectBlockersGateIntegration(t *testing.T) {
	in := baseProjection()
	in.verdicts = []ReviewerVerdict{{
		User: "reviewer1", Role: census.RoleReviewer,
		Verdict: forge.VerdictApproved, Active: true,
	}}
	in.effects.IntegrateRequested = true
	in.issueState = &IssueState{Blockers: []string{"The CSR must be approved."}}
	st := project(in)

	assert.True(t, st.Labels[consts.LabelReady], "blockers gate integration, not readiness")
	assert.False(t, st.Labels[consts.LabelIntegrated])
	assert.Contains(t, st.Body, "The CSR must be approved.")

	in.issueState.Blockers = nil
	st = project(in)
	assert.True(t, st.Labels[consts.LabelIntegrated])
}

func TestFindingSummaryTruncation(t *testing.T) {
	findings := []jcheck.Finding{
		{Message: strings.Repeat("x", 50)},
		{Message: strings.Repeat("y", 50)},
	}
	out := findingSummary(findings, 60)
	assert.Len(t, out, 60)
	assert.True(t, strings.HasSuffix(out, "..."))

	full := findingSummary(findings, 0)
	assert.Contains(t, full, strings.Repeat("y", 50))
}

func TestFindingSummaryTinyCap(t *testing.T) {
	findings := []jcheck.Finding{{Message: strings.Repeat("x", 50)}}

	// caps smaller than the ellipsis degrade to the ellipsis alone
	for _, limit := range []int{1, 2, 3} {
		assert.Equal(t, "...", findingSummary(findings, limit), "limit %d", limit)
	}
}

func TestFindingSummaryRuneBoundary(t *testing.T) {
	findings := []jcheck.Finding{{Message: strings.Repeat("é", 40)}}

	// the cut must never split a multi-byte rune
	for limit := 4; limit < 30; limit++ {
		out := findingSummary(findings, limit)
		assert.True(t, utf8.ValidString(out), "limit %d produced invalid UTF-8", limit)
		assert.LessOrEqual(t, len(out), limit)
		assert.True(t, strings.HasSuffix(out, "..."))
	}
}

func TestBodyPreamble(t *testing.T) {
	plain := "Fixes the frobnicator."
	assert.Equal(t, plain, bodyPreamble(plain))

	generated := plain + "\n" + consts.BodyAutoMarker + "\n### Progress\n- [ ] something\n"
	assert.Equal(t, plain, bodyPreamble(generated))

	assert.Equal(t, "", bodyPreamble(consts.BodyAutoMarker+"\nonly generated"))
}

func TestRenderBodyPreservesPreamble(t *testing.T) {
	in := baseProjection()
	in.pr.Body = "My description.\n" + consts.BodyAutoMarker + "\nstale generated content"
	body := projectBody(in, false, true)

	assert.True(t, strings.HasPrefix(body, "My description.\n"))
	assert.NotContains(t, body, "stale generated content")
	assert.Equal(t, 1, strings.Count(body, consts.BodyAutoMarker))
}

func TestReviewRequirementLine(t *testing.T) {
	line := reviewRequirementLine(Requirement{census.RoleReviewer: 1})
	assert.Equal(t, "Change must be properly reviewed (1 review required, with at least 1 Reviewer)", line)

	line = reviewRequirementLine(Requirement{census.RoleReviewer: 2, census.RoleCommitter: 1})
	assert.Contains(t, line, "3 reviews required")
	assert.Contains(t, line, "2 Reviewers")
	assert.Contains(t, line, "1 Committer")
}

func TestNormalizeBody(t *testing.T) {
	assert.Equal(t, normalizeBody("a\nb"), normalizeBody("a\r\nb\r\n"))
	assert.Equal(t, normalizeBody("a \nb\t"), normalizeBody("a\nb"))
	assert.NotEqual(t, normalizeBody("a\nb"), normalizeBody("a\nc"))
}

func TestFindMarker(t *testing.T) {
	assert.Equal(t, MarkerRFR, FindMarker("hello\n"+MarkerRFR))
	assert.Equal(t, "", FindMarker("no marker here"))
	assert.Equal(t, CommandReplyMarker(3), FindMarker("@duke done\n"+CommandReplyMarker(3)))
}

func TestBuildMarkerIndex(t *testing.T) {
	comments := []*forge.Comment{
		{ID: 1, Author: "duke", Body: "user text " + MarkerRFR},         // not the bot
		{ID: 2, Author: "jmerge-bot", Body: "rfr\n" + MarkerRFR},        // indexed
		{ID: 3, Author: "jmerge-bot", Body: "duplicate\n" + MarkerRFR},  // first wins
		{ID: 4, Author: "jmerge-bot", Body: "plain comment, no marker"}, // skipped
	}
	idx := buildMarkerIndex(comments, "jmerge-bot")
	require.Contains(t, idx, MarkerRFR)
	assert.Equal(t, int64(2), idx[MarkerRFR].ID)
	assert.Len(t, idx, 1)
}

func TestCheckFingerprint(t *testing.T) {
	fp := checkFingerprint("t1", "s1", "c1", "body", 0, "e1")
	assert.True(t, strings.HasPrefix(fp, "jmerge-v1:"))
	assert.Equal(t, fp, checkFingerprint("t1", "s1", "c1", "body", 0, "e1"))

	assert.NotEqual(t, fp, checkFingerprint("t2", "s1", "c1", "body", 0, "e1"))
	assert.NotEqual(t, fp, checkFingerprint("t1", "s2", "c1", "body", 0, "e1"))
	assert.NotEqual(t, fp, checkFingerprint("t1", "s1", "c2", "body", 0, "e1"))
	assert.NotEqual(t, fp, checkFingerprint("t1", "s1", "c1", "other", 0, "e1"))
	assert.NotEqual(t, fp, checkFingerprint("t1", "s1", "c1", "body", 1, "e1"))
	assert.NotEqual(t, fp, checkFingerprint("t1", "s1", "c1", "body", 0, "e2"))
}

func TestParseBackportRef(t *testing.T) {
	ref, ok := parseBackportRef("Backport abc123abc123abc123abc123abc123abc123abc1")
	require.True(t, ok)
	assert.Equal(t, "abc123abc123abc123abc123abc123abc123abc1", ref)

	ref, ok = parseBackportRef("Backport JDK-8123456")
	require.True(t, ok)
	assert.Equal(t, "JDK-8123456", ref)

	_, ok = parseBackportRef("8123456: Fix the frobnicator")
	assert.False(t, ok)
}

func TestParseMergeRef(t *testing.T) {
	source, branch, ok := parseMergeRef("Merge jdk:master")
	require.True(t, ok)
	assert.Equal(t, "jdk", source)
	assert.Equal(t, "master", branch)

	source, branch, ok = parseMergeRef("Merge jdk24")
	require.True(t, ok)
	assert.Empty(t, source)
	assert.Equal(t, "jdk24", branch)

	_, _, ok = parseMergeRef("8123456: Merge sort fix")
	assert.False(t, ok)
}
