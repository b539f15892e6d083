package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/internal/census"
	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/issues"
	"github.com/openjdk/jmerge/internal/jcheck"
	"github.com/openjdk/jmerge/internal/model"
	"github.com/openjdk/jmerge/internal/store"
	"github.com/openjdk/jmerge/pkg/idgen"
	"github.com/openjdk/jmerge/pkg/logger"
	"github.com/openjdk/jmerge/pkg/telemetry"
)

// Bot reconciles the pull requests of a single watched repository.
// One Bot instance is bound to one repository and one configuration;
// the engine serializes runs per PR, so ProcessPR never races with
// itself for the same PR identity.
type Bot struct {
	cfg     *config.BotConfig
	repo    forge.Repo
	forge   forge.Forge
	tracker issues.Tracker
	censusStore census.Store
	store   store.Store
	prober  Prober
	engine  *jcheck.Engine

	botUser    string
	trackerURL string
	maxRetries int
	retryDelay time.Duration

	log *zap.Logger
	now func() time.Time
}

// Options wires a Bot's collaborators.
type Options struct {
	Config      *config.BotConfig
	Forge       forge.Forge
	Tracker     issues.Tracker
	CensusStore census.Store
	Store       store.Store
	Prober      Prober

	BotUser    string
	TrackerURL string
	MaxRetries int
	RetryDelay time.Duration
}

// New creates a Bot for the repository named in the configuration.
func New(opts *Options) (*Bot, error) {
	repo, err := forge.ParseRepo(opts.Config.Repo)
	if err != nil {
		return nil, err
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Bot{
		cfg:         opts.Config,
		repo:        repo,
		forge:       opts.Forge,
		tracker:     opts.Tracker,
		censusStore: opts.CensusStore,
		store:       opts.Store,
		prober:      opts.Prober,
		engine:      jcheck.NewEngine(),
		botUser:     opts.BotUser,
		trackerURL:  opts.TrackerURL,
		maxRetries:  retries,
		retryDelay:  delay,
		log:         logger.Named("bot").With(zap.String("repo", opts.Config.Repo)),
		now:         time.Now,
	}, nil
}

// Repo returns the repository this bot watches.
func (b *Bot) Repo() forge.Repo {
	return b.repo
}

// Name returns the configured bot name.
func (b *Bot) Name() string {
	return b.cfg.Name
}

// ListOpen returns the open pull requests of the watched repository.
func (b *Bot) ListOpen(ctx context.Context) ([]*forge.PullRequest, error) {
	return b.forge.ListOpenPullRequests(ctx, b.repo)
}

// ProcessNumber fetches the current state of a pull request and runs a
// reconciliation. Work items carry only the PR number so a queued item
// always operates on fresh forge state.
func (b *Bot) ProcessNumber(ctx context.Context, number int) error {
	pr, err := b.forge.GetPullRequest(ctx, b.repo, number)
	if err != nil {
		return err
	}
	return b.ProcessPR(ctx, pr)
}

// ProcessPR runs one full reconciliation for a pull request: resolve
// configuration, snapshot the VCS state, evaluate reviews, dispatch
// commands, run jcheck, project the desired state and apply it.
func (b *Bot) ProcessPR(ctx context.Context, pr *forge.PullRequest) error {
	log := logger.WithPRContext(pr.Repo.FullName(), pr.Number)
	start := b.now()
	metrics := telemetry.GetMetrics()
	metrics.RecordCheckRunStarted(ctx, b.cfg.Name, pr.Repo.FullName())

	status, err := b.processPR(ctx, pr, log)
	metrics.RecordCheckRunCompleted(ctx, status, b.now().Sub(start).Seconds())
	return err
}

func (b *Bot) processPR(ctx context.Context, pr *forge.PullRequest, log *zap.Logger) (string, error) {
	if !pr.Open {
		if err := b.store.PRState().MarkClosed(pr.Repo.FullName(), pr.Number); err != nil {
			return "error", err
		}
		return "closed", nil
	}

	state, err := b.store.PRState().GetOrCreate(pr.Repo.FullName(), pr.Number)
	if err != nil {
		return "error", err
	}

	res, err := b.resolveConf(ctx, pr)
	if err != nil {
		return "error", err
	}

	var snap *Snapshot
	if res.Ok() {
		snap, err = b.prober.Snapshot(ctx, pr)
		if err != nil {
			return "error", err
		}
	}

	var backport *BackportInfo
	linkPR := pr
	if b.cfg.EnableBackport {
		if ref, ok := parseBackportRef(pr.Title); ok {
			backport, err = b.prober.ClassifyBackport(ctx, pr, ref)
			if err != nil {
				return "error", err
			}
			if backport.Found && len(backport.IssueIDs) > 0 {
				// Seed the issue linker with the original commit's
				// primary issue so the title is rewritten.
				seeded := *pr
				seeded.Title = backport.IssueIDs[0]
				linkPR = &seeded
			}
		}
	}
	mergePR := false
	if _, _, ok := parseMergeRef(pr.Title); ok {
		mergePR = true
	}

	cen, err := b.censusStore.Current(ctx)
	if err != nil {
		return "error", err
	}
	reviews, err := b.forge.ListReviews(ctx, pr.Repo, pr.Number)
	if err != nil {
		return "error", err
	}
	comments, err := b.forge.ListComments(ctx, pr.Repo, pr.Number)
	if err != nil {
		return "error", err
	}

	confReq := Requirement{}
	tagPattern := ""
	version := ""
	confHash := ""
	if res.Ok() {
		confReq = Requirement(res.Conf.ReviewerRequirements())
		tagPattern = res.Conf.TagPattern()
		version = res.Conf.Version()
		confHash = res.Conf.Hash()
	}

	verdicts := evaluateReviews(reviews, cen, evalOptions{
		headHash:         pr.HeadHash,
		targetRef:        pr.TargetRef,
		author:           pr.Author,
		ignored:          confIgnoredReviewers(res),
		useStaleReviews:  b.cfg.UseStaleReviews,
		simpleMergeSince: b.simpleMergePredicate(ctx, pr),
	})

	// Checks run before command dispatch: /integrate and /sponsor gate
	// on the check outcome of the current head.
	findings, sourceConfErr := b.runChecks(ctx, pr, res, snap, verdicts)
	prereqs := b.readyPrereqs(pr, comments)

	env := &commandEnv{
		bot:        b,
		pr:         pr,
		census:     cen,
		confReq:    confReq,
		verdicts:   verdicts,
		tagPattern: tagPattern,
		conflict:   snap != nil && !snap.RebaseClean,
		checksOK:   res.Ok() && len(targetErrors(findings)) == 0 && sourceConfErr == nil,
		prereqsOK:  prereqs,
	}
	if snap != nil {
		env.tags = snap.Tags
	}

	effects, replies, err := b.dispatchCommands(ctx, env, pr, comments, state)
	if err != nil {
		return "error", err
	}

	generation := state.Generation
	targetHead := ""
	if snap != nil {
		targetHead = snap.TargetHead
	}
	fp := checkFingerprint(targetHead, pr.HeadHash, confHash, pr.Body, generation,
		eventsDigest(pr, reviews, comments))
	if b.cacheValid(state, fp, effects) && len(replies) == 0 {
		telemetry.GetMetrics().RecordCacheHit(ctx, pr.Repo.FullName())
		log.Debug("Fingerprint unchanged, skipping check run")
		return "cached", nil
	}

	issueState, err := b.linkIssues(ctx, linkPR, version, effects)
	if err != nil {
		return "error", err
	}

	desired := project(&projectionInput{
		pr:            pr,
		cfg:           b.cfg,
		resolution:    res,
		issueState:    issueState,
		verdicts:      verdicts,
		requirement:   env.effective(effects),
		findings:      findings,
		snapshot:      snap,
		backport:      backport,
		mergePR:       mergePR,
		mergeAllowed:  b.mergeAllowed(res),
		effects:       effects,
		readyPrereqs:  prereqs,
		sourceConfErr: sourceConfErr,
		fingerprint:   fp,
		summaryCap:    b.cfg.CheckSummaryCap,
		censusLink:    b.cfg.CensusLink,
		issueURL:      b.issueURL,
	})
	desired.Comments = append(desired.Comments, replies...)

	if err := b.reconcile(ctx, pr, desired, comments); err != nil {
		return "error", err
	}

	if err := b.createRequestedTags(ctx, pr, snap, effects); err != nil {
		return "error", err
	}

	if err := b.persistRunState(pr, state, fp, issueState, effects); err != nil {
		return "error", err
	}

	log.Info("Check run completed",
		zap.String("status", string(desired.Check.Status)),
		zap.Int("findings", len(findings)))
	return strings.ToLower(string(desired.Check.Status)), nil
}

// cacheValid reports whether the stored fingerprint makes this run a
// no-op. A /touch command or an elapsed recheck time invalidates it.
func (b *Bot) cacheValid(state *model.PullRequestState, fp string, effects *CommandEffects) bool {
	if effects.Touched || state.Fingerprint != fp {
		return false
	}
	now := b.now()
	if state.ExpiresAt != nil && now.After(*state.ExpiresAt) {
		return false
	}
	if state.RecheckAt != nil && now.After(*state.RecheckAt) {
		return false
	}
	return true
}

// persistRunState stores the fingerprint, head hash and issue links
// after a successful reconciliation.
func (b *Bot) persistRunState(pr *forge.PullRequest, state *model.PullRequestState, fp string, issueState *IssueState, effects *CommandEffects) error {
	repo := pr.Repo.FullName()
	if err := b.store.PRState().SetFingerprint(repo, pr.Number, fp, state.CheckID, nil); err != nil {
		return err
	}
	state.LastHeadHash = pr.HeadHash
	state.Fingerprint = fp
	if err := b.store.PRState().Save(state); err != nil {
		return err
	}
	if effects.Touched {
		if err := b.store.PRState().ClearRecheck(repo, pr.Number); err != nil {
			return err
		}
	}
	if b.cfg.IssuePRMap && issueState != nil {
		keys := issueState.allIssueKeys()
		if err := b.store.IssueLink().Replace(repo, pr.Number, keys, issueState.PrimaryKey); err != nil {
			return err
		}
	}
	return nil
}

// dispatchCommands replays the persisted command ledger and processes
// any new commands from the PR body and comments. New comment commands
// are recorded, assigned a generation and answered with a marker-keyed
// reply.
func (b *Bot) dispatchCommands(ctx context.Context, env *commandEnv, pr *forge.PullRequest, comments []*forge.Comment, state *model.PullRequestState) (*CommandEffects, []OutboundComment, error) {
	effects := newCommandEffects()
	repo := pr.Repo.FullName()

	records, err := b.store.Command().ListForPR(repo, pr.Number)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range records {
		applyRecordedCommand(env, r.Verb, r.Args, r.User, effects)
	}

	// Commands in the PR description act as standing effects; they are
	// re-evaluated on every distinct body revision and get no reply.
	for _, cmd := range parseCommands(bodyPreamble(pr.Body)) {
		cmd.User = pr.Author
		handleCommand(env, &cmd, effects)
	}

	var replies []OutboundComment
	for _, c := range comments {
		if c.Author == b.botUser {
			continue
		}
		// Mailing-list bridge bots echo list traffic into the PR; their
		// comments never carry commands addressed to us.
		if b.cfg.MLBridgeBotName != "" && c.Author == b.cfg.MLBridgeBotName {
			continue
		}
		cmds := parseCommands(c.Body)
		if len(cmds) == 0 {
			continue
		}
		seen, err := b.store.Command().Seen(c.ID)
		if err != nil {
			return nil, nil, err
		}
		if seen {
			continue
		}

		// One command per comment; extra command lines are ignored.
		cmd := cmds[0]
		cmd.User = c.Author
		cmd.CommentID = c.ID
		cmd.CreatedAt = c.CreatedAt

		gen, err := b.store.PRState().BumpGeneration(repo, pr.Number)
		if err != nil {
			return nil, nil, err
		}
		state.Generation = gen

		reply, authorized := handleCommand(env, &cmd, effects)
		telemetry.GetMetrics().RecordCommand(ctx, cmd.Verb, authorized)

		if err := b.store.Command().Record(&model.CommandRecord{
			ID:           idgen.NewID(),
			RepoFullName: repo,
			PRNumber:     pr.Number,
			CommentID:    c.ID,
			Verb:         cmd.Verb,
			Args:         cmd.Args,
			User:         cmd.User,
			Authorized:   authorized,
			Generation:   gen,
		}); err != nil {
			return nil, nil, err
		}

		replies = append(replies, OutboundComment{
			Marker: CommandReplyMarker(gen),
			Body:   "@" + cmd.User + " " + reply,
		})
	}

	return effects, replies, nil
}

// createRequestedTags creates the tags accepted from /tag commands as
// annotated tags on the PR head and pushes them. Tags that already
// exist are skipped, which keeps ledger replay of old /tag commands
// idempotent.
func (b *Bot) createRequestedTags(ctx context.Context, pr *forge.PullRequest, snap *Snapshot, effects *CommandEffects) error {
	if len(effects.TagRequests) == 0 || snap == nil {
		return nil
	}
	existing := make(map[string]bool, len(snap.Tags))
	for _, t := range snap.Tags {
		existing[t] = true
	}
	for _, name := range effects.TagRequests {
		if existing[name] {
			continue
		}
		message := fmt.Sprintf("Added tag %s for changeset %s", name, shortHash(pr.HeadHash))
		if err := b.prober.CreateTag(ctx, pr, name, message); err != nil {
			return err
		}
		b.log.Info("Created tag", zap.String("tag", name), zap.String("hash", pr.HeadHash))
	}
	return nil
}

// simpleMergePredicate returns the accept-simple-merges staleness
// predicate, nil when the feature is disabled.
func (b *Bot) simpleMergePredicate(ctx context.Context, pr *forge.PullRequest) func(string) bool {
	if !b.cfg.AcceptSimpleMerges || b.prober == nil {
		return nil
	}
	return func(hash string) bool {
		ok, err := b.prober.OnlyTargetMerges(ctx, pr, hash)
		if err != nil {
			b.log.Warn("Simple-merge probe failed", zap.Error(err))
			return false
		}
		return ok
	}
}

// readyPrereqs evaluates the readyLabels and readyComments gates.
func (b *Bot) readyPrereqs(pr *forge.PullRequest, comments []*forge.Comment) bool {
	for _, label := range b.cfg.ReadyLabels {
		if !pr.HasLabel(label) {
			return false
		}
	}
	for _, rc := range b.cfg.ReadyComments {
		re, err := regexp.Compile(rc.Pattern)
		if err != nil {
			continue
		}
		found := false
		for _, c := range comments {
			if c.Author == rc.User && re.MatchString(c.Body) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// mergeAllowed resolves the reviewMerge policy for merge-style PRs.
func (b *Bot) mergeAllowed(res *Resolution) bool {
	if !b.cfg.EnableMerge {
		return false
	}
	switch b.cfg.ReviewMerge {
	case config.ReviewMergeAlways:
		return true
	case config.ReviewMergeByConfig:
		return res.Ok() && res.Conf.GetOr("general", "merge", "") != "disallow"
	default:
		return true
	}
}

func confIgnoredReviewers(res *Resolution) []string {
	if !res.Ok() {
		return nil
	}
	return res.Conf.IgnoredReviewers()
}

// ScheduleRecheckAt asks for a future re-evaluation of a PR regardless
// of its fingerprint, used by tracker-side fan-out.
func (b *Bot) ScheduleRecheckAt(pr int, at time.Time) error {
	return b.store.PRState().ScheduleRecheck(b.repo.FullName(), pr, at)
}

// labelVocabulary returns every label the bot may manage for this
// repository, used by the status API.
func (b *Bot) labelVocabulary() []string {
	labels := []string{
		consts.LabelRFR, consts.LabelReady, consts.LabelMergeConflict,
		consts.LabelClean, consts.LabelBackport, consts.LabelJEP,
		consts.LabelSponsor, consts.LabelIntegrated, consts.LabelBlock,
	}
	if b.cfg.Approval != nil && b.cfg.Approval.Label != "" {
		labels = append(labels, b.cfg.Approval.Label)
	}
	return labels
}
