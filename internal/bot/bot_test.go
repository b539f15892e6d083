package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/internal/census"
	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/forge"
	forgemem "github.com/openjdk/jmerge/internal/forge/memory"
	"github.com/openjdk/jmerge/internal/issues"
	issuemem "github.com/openjdk/jmerge/internal/issues/memory"
	"github.com/openjdk/jmerge/internal/jcheck"
	"github.com/openjdk/jmerge/internal/store"
)

const testConf = `[general]
project=jdk
version=24

[checks]
error=reviewers,whitespace,issues

[checks "reviewers"]
reviewers=1

[repository]
tags=jdk-[0-9]+\+[0-9]+
`

// fakeProber substitutes the git-backed prober with canned answers.
type fakeProber struct {
	snap        *Snapshot
	backport    *BackportInfo
	simpleMerge bool
	// created records the tag names passed to CreateTag.
	created []string
}

func (p *fakeProber) Snapshot(ctx context.Context, pr *forge.PullRequest) (*Snapshot, error) {
	return p.snap, nil
}

func (p *fakeProber) ClassifyBackport(ctx context.Context, pr *forge.PullRequest, ref string) (*BackportInfo, error) {
	if p.backport != nil {
		return p.backport, nil
	}
	return &BackportInfo{}, nil
}

func (p *fakeProber) OnlyTargetMerges(ctx context.Context, pr *forge.PullRequest, sinceHash string) (bool, error) {
	return p.simpleMerge, nil
}

func (p *fakeProber) CreateTag(ctx context.Context, pr *forge.PullRequest, name, message string) error {
	p.created = append(p.created, name)
	return nil
}

func cleanSnapshot(title string) *Snapshot {
	return &Snapshot{
		TargetHead: "f0e1d2c3b4a5968778695a4b3c2d1e0f12345678",
		MergeBase:  "00112233445566778899aabbccddeeff00112233",
		Change: &jcheck.Change{
			Title: title,
			Files: []jcheck.FileChange{{
				Path:  "src/frob.c",
				Added: []jcheck.Line{{Number: 1, Text: "int frob(void);"}},
			}},
		},
		RebaseClean: true,
	}
}

type fixture struct {
	bot     *Bot
	forge   *forgemem.Forge
	tracker *issuemem.Tracker
	prober  *fakeProber
	store   store.Store
}

func newFixture(t *testing.T, mutate func(cfg *config.BotConfig)) *fixture {
	t.Helper()

	fm := forgemem.NewForge(forge.Repo{Owner: "openjdk", Name: "jdk"}, "jmerge-bot")
	fm.SetFile("master", jcheck.ConfPath, []byte(testConf))

	tracker := issuemem.NewTracker()
	tracker.AddIssue(&issues.Issue{Key: "JDK-8123456", Title: "Fix the frobnicator", Type: "Bug"})

	cen := census.NewBuilder("jdk").
		Add("duke", census.RoleAuthor).
		Add("reviewer1", census.RoleReviewer).
		Add("reviewer2", census.RoleReviewer).
		Add("committer1", census.RoleCommitter).
		Build()

	st, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)

	cfg := &config.BotConfig{
		Name:            "jmerge",
		Repo:            "openjdk/jdk",
		IssueProject:    "JDK",
		EnableCSR:       true,
		EnableJEP:       true,
		EnableBackport:  true,
		Integrators:     []string{"integrator1"},
		CheckSummaryCap: consts.DefaultCheckSummaryCap,
	}
	if mutate != nil {
		mutate(cfg)
	}

	prober := &fakeProber{}
	b, err := New(&Options{
		Config:      cfg,
		Forge:       fm,
		Tracker:     tracker,
		CensusStore: census.NewStaticStore(cen),
		Store:       st,
		Prober:      prober,
		BotUser:     "jmerge-bot",
		TrackerURL:  "https://bugs.test",
		RetryDelay:  time.Millisecond,
	})
	require.NoError(t, err)

	return &fixture{bot: b, forge: fm, tracker: tracker, prober: prober, store: st}
}

func (fx *fixture) addPR(t *testing.T, title string) *forge.PullRequest {
	t.Helper()
	pr := fx.forge.AddPullRequest(&forge.PullRequest{
		Number:    1,
		Title:     title,
		Body:      "Please review this fix to the frobnicator.",
		Author:    "duke",
		HeadHash:  "abc123abc123abc123abc123abc123abc123abc1",
		SourceRef: "frob-fix",
		TargetRef: "master",
		URL:       "https://forge.test/openjdk/jdk/pull/1",
	})
	fx.prober.snap = cleanSnapshot(pr.Title)
	return pr
}

// run processes PR 1 and returns its refreshed forge state.
func (fx *fixture) run(t *testing.T) forge.PullRequest {
	t.Helper()
	pr := fx.forge.PR(1)
	require.NoError(t, fx.bot.ProcessPR(context.Background(), &pr))
	return fx.forge.PR(1)
}

func (fx *fixture) countComments(marker string) int {
	n := 0
	for _, c := range fx.forge.Comments(1) {
		if FindMarker(c.Body) == marker {
			n++
		}
	}
	return n
}

func (fx *fixture) lastBotComment() *forge.Comment {
	comments := fx.forge.Comments(1)
	for i := len(comments) - 1; i >= 0; i-- {
		if comments[i].Author == "jmerge-bot" {
			return comments[i]
		}
	}
	return nil
}

func TestProcessPRLifecycle(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")

	pr := fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelRFR))
	assert.False(t, pr.HasLabel(consts.LabelReady))
	assert.Contains(t, pr.Body, consts.BodyAutoMarker)
	assert.Contains(t, pr.Body, "Please review this fix to the frobnicator.")
	assert.Contains(t, pr.Body, "- [x] Change must not cause any new jcheck errors")
	assert.Contains(t, pr.Body, "- [ ] Change must be properly reviewed")
	assert.Equal(t, 1, fx.countComments(MarkerRFR))

	checks := fx.forge.Checks(pr.HeadHash)
	require.Len(t, checks, 1)
	assert.Equal(t, consts.CheckName, checks[0].Name)
	assert.Equal(t, forge.CheckSuccess, checks[0].Status)
	assert.Equal(t, "All checks passed", checks[0].Summary)

	// an approval from a Reviewer flips the PR to ready
	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})
	pr = fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelReady))
	assert.True(t, pr.HasLabel(consts.LabelRFR))
	assert.Contains(t, pr.Body, "- [x] Change must be properly reviewed")
	assert.Contains(t, pr.Body, "reviewer1")
	assert.Contains(t, pr.Body, "(**Reviewer**)")
}

func TestProcessPRIdempotent(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")

	fx.run(t)
	fx.run(t) // converge on the bot's own body and comment edits
	fx.forge.ResetMutations()

	fx.run(t)
	assert.Zero(t, fx.forge.MutationCount(),
		"unchanged PR must produce no mutations: %v", fx.forge.Mutations())
}

func TestProcessPRCacheInvalidatedByPush(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.run(t)
	fx.run(t)
	fx.forge.ResetMutations()

	fx.forge.SetHead(1, "def456def456def456def456def456def456def4")
	pr := fx.run(t)
	assert.NotZero(t, fx.forge.MutationCount())
	require.Len(t, fx.forge.Checks(pr.HeadHash), 1)
}

func TestMergeConflict(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.prober.snap.RebaseClean = false
	fx.prober.snap.ConflictPaths = []string{"src/frob.c"}

	pr := fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelMergeConflict))
	assert.False(t, pr.HasLabel(consts.LabelRFR))
	assert.False(t, pr.HasLabel(consts.LabelReady))
	assert.Equal(t, 1, fx.countComments(MarkerMergeConflict))
	assert.Contains(t, fx.lastBotComment().Body, "To resolve these merge conflicts")

	// the conflict instructions are posted exactly once
	fx.run(t)
	assert.Equal(t, 1, fx.countComments(MarkerMergeConflict))

	// pushing a resolution recovers the labels; the comment stays
	fx.prober.snap.RebaseClean = true
	fx.prober.snap.ConflictPaths = nil
	fx.forge.SetHead(1, "def456def456def456def456def456def456def4")
	pr = fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelMergeConflict))
	assert.True(t, pr.HasLabel(consts.LabelRFR))
	assert.Equal(t, 1, fx.countComments(MarkerMergeConflict))
}

func TestStaleReviewAfterPush(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})

	pr := fx.run(t)
	require.True(t, pr.HasLabel(consts.LabelReady))

	fx.forge.SetHead(1, "def456def456def456def456def456def456def4")
	pr = fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelReady))
	assert.True(t, pr.HasLabel(consts.LabelRFR))
	assert.Contains(t, pr.Body, "Re-review required")

	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})
	pr = fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelReady))
}

func TestSelfReviewFailsCheck(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddReview(1, &forge.Review{User: "duke", Verdict: forge.VerdictApproved})

	pr := fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelRFR))
	assert.False(t, pr.HasLabel(consts.LabelReady))

	checks := fx.forge.Checks(pr.HeadHash)
	require.Len(t, checks, 1)
	assert.Equal(t, forge.CheckFailure, checks[0].Status)
	assert.Contains(t, checks[0].Summary, "Self-reviews are not allowed")
	assert.Contains(t, pr.Body, "Self-reviews are not allowed")
}

func TestDraftExcluded(t *testing.T) {
	fx := newFixture(t, nil)
	pr := fx.forge.AddPullRequest(&forge.PullRequest{
		Number:    1,
		Title:     "8123456: Fix the frobnicator",
		Body:      "Please review.",
		Author:    "duke",
		HeadHash:  "abc123abc123abc123abc123abc123abc123abc1",
		SourceRef: "frob-fix",
		TargetRef: "master",
		Draft:     true,
	})
	fx.prober.snap = cleanSnapshot(pr.Title)

	got := fx.run(t)
	assert.False(t, got.HasLabel(consts.LabelRFR))
	assert.False(t, got.HasLabel(consts.LabelReady))
	assert.Empty(t, fx.forge.Checks(got.HeadHash))
}

func TestReviewersCommand(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})

	pr := fx.run(t)
	require.True(t, pr.HasLabel(consts.LabelReady))

	// raising the requirement is open to anyone
	fx.forge.AddUserComment(1, "committer1", "/reviewers 2")
	pr = fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelReady))
	reply := fx.lastBotComment()
	require.NotNil(t, reply)
	assert.Contains(t, reply.Body, "is now set to 2")
	assert.Contains(t, reply.Body, CommandReplyMarker(1))
	assert.Contains(t, reply.Body, "@committer1")
	assert.Contains(t, pr.Body, "2 reviews required")

	// lowering it back is restricted to Reviewers
	fx.forge.AddUserComment(1, "duke", "/reviewers 1")
	pr = fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelReady))
	assert.Contains(t, fx.lastBotComment().Body,
		"Only Reviewers are allowed to decrease the number of required reviewers.")

	fx.forge.AddUserComment(1, "reviewer2", "/reviewers 1")
	pr = fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelReady))
}

func TestCommandProcessedOnce(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddUserComment(1, "committer1", "/reviewers 2")

	fx.run(t)
	fx.run(t)
	fx.run(t)
	assert.Equal(t, 1, fx.countComments(CommandReplyMarker(1)))
	assert.Equal(t, 0, fx.countComments(CommandReplyMarker(2)))
}

func TestBodyCommandsSilent(t *testing.T) {
	fx := newFixture(t, nil)
	pr := fx.forge.AddPullRequest(&forge.PullRequest{
		Number:    1,
		Title:     "8123456: Fix the frobnicator",
		Body:      "Please review.\n\n/reviewers 2",
		Author:    "duke",
		HeadHash:  "abc123abc123abc123abc123abc123abc123abc1",
		SourceRef: "frob-fix",
		TargetRef: "master",
	})
	fx.prober.snap = cleanSnapshot(pr.Title)

	got := fx.run(t)
	assert.Contains(t, got.Body, "2 reviews required")
	assert.Equal(t, 0, fx.countComments(CommandReplyMarker(1)))
}

func TestIntegrateSponsorFlow(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})
	fx.run(t)

	// the author is not a Committer, so /integrate asks for sponsorship
	fx.forge.AddUserComment(1, "duke", "/integrate")
	pr := fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelSponsor))
	assert.False(t, pr.HasLabel(consts.LabelIntegrated))
	assert.Contains(t, fx.lastBotComment().Body, "ready to be sponsored by a Committer")

	fx.forge.AddUserComment(1, "committer1", "/sponsor")
	pr = fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelIntegrated))
	assert.False(t, pr.HasLabel(consts.LabelSponsor))
	assert.Contains(t, fx.lastBotComment().Body, "on behalf of duke")
}

func TestCSRCommand(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")

	fx.forge.AddUserComment(1, "reviewer1", "/csr")
	pr := fx.run(t)
	assert.Contains(t, pr.Body, "Withdraw this pull request or create a CSR request")

	// integration blockers never fail the status check
	checks := fx.forge.Checks(pr.HeadHash)
	require.Len(t, checks, 1)
	assert.Equal(t, forge.CheckSuccess, checks[0].Status)

	fx.forge.AddUserComment(1, "reviewer1", "/csr unneeded")
	pr = fx.run(t)
	assert.NotContains(t, pr.Body, "Withdraw this pull request")
}

func TestTouchCommand(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.run(t)

	fx.forge.AddUserComment(1, "duke", "/touch")
	fx.run(t)
	assert.Contains(t, fx.lastBotComment().Body, "is being re-evaluated")
}

func TestBackportClean(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "Backport abc123abc123abc123abc123abc123abc123abc1")
	origHash := "9876543210987654321098765432109876543210"
	fx.prober.backport = &BackportInfo{
		Hash:     origHash,
		Found:    true,
		Clean:    true,
		IssueIDs: []string{"8123456"},
	}

	pr := fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelBackport))
	assert.True(t, pr.HasLabel(consts.LabelClean))
	assert.Equal(t, "8123456: Fix the frobnicator", pr.Title)
	assert.Equal(t, 1, fx.countComments(BackportMarker(origHash)))
	assert.Contains(t, fx.lastBotComment().Body, "applies cleanly")
}

func TestBackportNotFound(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "Backport abc123abc123abc123abc123abc123abc123abc1")
	fx.prober.backport = &BackportInfo{}

	pr := fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelBackport))
	assert.False(t, pr.HasLabel(consts.LabelClean))
	assert.Equal(t, 1, fx.countComments(MarkerBackportError))
}

func TestMissingConfiguration(t *testing.T) {
	fx := newFixture(t, nil)
	fx.forge.SetFile("master", jcheck.ConfPath, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")

	pr := fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelRFR))
	assert.Equal(t, 1, fx.countComments(MarkerConfigError))

	checks := fx.forge.Checks(pr.HeadHash)
	require.Len(t, checks, 1)
	assert.Equal(t, forge.CheckFailure, checks[0].Status)
	assert.Contains(t, checks[0].Summary, "No jcheck configuration found")
}

func TestWrongProjectInTitle(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "JAVAFX-8123456: Fix the frobnicator")

	pr := fx.run(t)
	assert.Contains(t, pr.Body, "does not belong to the `JDK` project")
}

func TestTitleAdoptedFromIssue(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456")

	pr := fx.run(t)
	assert.Equal(t, "8123456: Fix the frobnicator", pr.Title)
}

func TestClosedPRMarked(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.run(t)

	pr := fx.forge.PR(1)
	pr.Open = false
	require.NoError(t, fx.bot.ProcessPR(context.Background(), &pr))

	state, err := fx.store.PRState().Get("openjdk/jdk", 1)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.Open)
}

func TestBlockingCheckLabel(t *testing.T) {
	fx := newFixture(t, func(cfg *config.BotConfig) {
		cfg.BlockingCheckLabels = map[string]string{
			consts.LabelBlock: "The integration of this pull request has been blocked.",
		}
	})
	pr := fx.forge.AddPullRequest(&forge.PullRequest{
		Number:    1,
		Title:     "8123456: Fix the frobnicator",
		Body:      "Please review.",
		Author:    "duke",
		HeadHash:  "abc123abc123abc123abc123abc123abc123abc1",
		SourceRef: "frob-fix",
		TargetRef: "master",
		Labels:    []string{consts.LabelBlock},
	})
	fx.prober.snap = cleanSnapshot(pr.Title)

	got := fx.run(t)
	assert.False(t, got.HasLabel(consts.LabelRFR))
	// the block label itself is human-owned and must survive
	assert.True(t, got.HasLabel(consts.LabelBlock))

	checks := fx.forge.Checks(got.HeadHash)
	require.Len(t, checks, 1)
	assert.Contains(t, checks[0].Summary, "has been blocked")
}

func TestNoTrackerSkipsIssueBridging(t *testing.T) {
	fx := newFixture(t, nil)
	fx.bot.tracker = nil
	fx.addPR(t, "8123456: Fix the frobnicator")

	pr := fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelRFR))
	assert.NotContains(t, pr.Body, "Failed to retrieve information")
}

func TestIntegrateRefusedOnMergeConflict(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})
	fx.prober.snap.RebaseClean = false
	fx.prober.snap.ConflictPaths = []string{"src/frob.c"}

	fx.forge.AddUserComment(1, "duke", "/integrate")
	pr := fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelSponsor))
	assert.Contains(t, fx.lastBotComment().Body,
		"until the merge conflicts have been resolved")
}

func TestIntegrateRefusedOnFailingChecks(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})
	fx.prober.snap.Change.Files[0].Added = []jcheck.Line{
		{Number: 7, Text: "int frob(void);\t"},
	}

	fx.forge.AddUserComment(1, "duke", "/integrate")
	pr := fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelSponsor))
	assert.Contains(t, fx.lastBotComment().Body,
		"has not yet been marked as ready for integration")
}

func TestIntegrateRequiresMaintainerApproval(t *testing.T) {
	fx := newFixture(t, func(cfg *config.BotConfig) {
		cfg.Approval = &config.ApprovalConfig{Prefix: "jdk17u-fix-", Label: "approval"}
	})
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})

	fx.forge.AddUserComment(1, "duke", "/integrate")
	pr := fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelSponsor))
	assert.Contains(t, fx.lastBotComment().Body,
		"has not yet been approved by the repository maintainers")

	fx.forge.AddUserComment(1, "integrator1", "/approve yes")
	fx.run(t)

	fx.forge.AddUserComment(1, "duke", "/integrate")
	pr = fx.run(t)
	assert.True(t, pr.HasLabel(consts.LabelSponsor))
	assert.Contains(t, fx.lastBotComment().Body, "ready to be sponsored")
}

func TestTagCommandCreatesTag(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")

	fx.forge.AddUserComment(1, "integrator1", "/tag jdk-24+11")
	fx.run(t)
	assert.Equal(t, []string{"jdk-24+11"}, fx.prober.created)
	assert.Contains(t, fx.lastBotComment().Body, "will be created")

	// once the tag exists, replaying the ledger must not recreate it
	fx.prober.snap.Tags = []string{"jdk-24+11"}
	fx.forge.AddUserComment(1, "duke", "/touch")
	fx.run(t)
	assert.Equal(t, []string{"jdk-24+11"}, fx.prober.created)
}

func TestWrongIssueTypeBlocksIntegration(t *testing.T) {
	fx := newFixture(t, nil)
	fx.tracker.AddIssue(&issues.Issue{
		Key: "JDK-8888888", Title: "Backport the frobnicator fix", Type: "Backport",
	})
	fx.addPR(t, "8888888: Backport the frobnicator fix")

	pr := fx.run(t)
	assert.Contains(t, pr.Body, "cannot be used as the primary issue")
}

func TestMLBridgeCommentsIgnored(t *testing.T) {
	fx := newFixture(t, func(cfg *config.BotConfig) {
		cfg.MLBridgeBotName = "mlbridge-bot"
	})
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.forge.AddReview(1, &forge.Review{User: "reviewer1", Verdict: forge.VerdictApproved})
	fx.run(t)

	fx.forge.AddUserComment(1, "mlbridge-bot", "/integrate")
	pr := fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelSponsor))
	assert.Equal(t, 0, fx.countComments(CommandReplyMarker(1)))
}

func TestWhitespaceErrorFailsCheck(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addPR(t, "8123456: Fix the frobnicator")
	fx.prober.snap.Change.Files[0].Added = []jcheck.Line{
		{Number: 7, Text: "int frob(void);\t"},
	}

	pr := fx.run(t)
	assert.False(t, pr.HasLabel(consts.LabelRFR))

	checks := fx.forge.Checks(pr.HeadHash)
	require.Len(t, checks, 1)
	assert.Equal(t, forge.CheckFailure, checks[0].Status)
	assert.Contains(t, checks[0].Summary, "Whitespace error in src/frob.c:7")
}
