package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openjdk/jmerge/internal/census"
	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/issues"
)

// Command is one slash command extracted from a comment or the PR body.
type Command struct {
	Verb      string
	Args      string
	User      string
	CommentID int64
	CreatedAt time.Time
}

// commandLineRe matches a leading /<verb> on its own line. The optional
// bot-name prefix form "/jmerge tag v1" is normalized by parseCommands.
var commandLineRe = regexp.MustCompile(`(?m)^[ \t]*/([A-Za-z]+)\b[ \t]*(.*?)[ \t\r]*$`)

// knownVerbs is the command vocabulary. Unknown verbs are ignored so
// ordinary prose containing a leading slash never triggers a reply.
var knownVerbs = map[string]bool{
	"reviewers": true,
	"integrate": true,
	"sponsor":   true,
	"csr":       true,
	"jep":       true,
	"approval":  true,
	"approve":   true,
	"tag":       true,
	"issue":     true,
	"solves":    true,
	"touch":     true,
	"keepalive": true,
}

// parseCommands extracts the commands embedded in a text body.
func parseCommands(body string) []Command {
	var out []Command
	for _, m := range commandLineRe.FindAllStringSubmatch(body, -1) {
		verb := strings.ToLower(m[1])
		args := strings.TrimSpace(m[2])
		if verb == "jmerge" {
			// Bot-owned prefix form: "/jmerge tag v1".
			fields := strings.SplitN(args, " ", 2)
			verb = strings.ToLower(fields[0])
			if len(fields) > 1 {
				args = strings.TrimSpace(fields[1])
			} else {
				args = ""
			}
		}
		if !knownVerbs[verb] {
			continue
		}
		out = append(out, Command{Verb: verb, Args: args})
	}
	return out
}

// CommandEffects accumulates the state-projector inputs produced by the
// command stream. Effects are replayed from the persisted ledger on
// every run, so the projection is a pure function of the full history.
type CommandEffects struct {
	// ReviewerOverride is the requirement vector from the most recent
	// authorized /reviewers command, nil when none was issued.
	ReviewerOverride Requirement

	// AdditionalIssues and RemovedIssues adjust the issue list beyond
	// the title-derived primary issue.
	AdditionalIssues []string
	RemovedIssues    map[string]bool

	// CSRRequired overrides CSR discovery: true after /csr, false after
	// /csr unneeded, nil when never commanded.
	CSRRequired *bool
	// JEPKey is the issue key named by /jep, "" when none.
	JEPKey string

	// IntegrateRequested and SponsorRequested track the integration
	// intents expressed by the author and a sponsoring committer.
	IntegrateRequested bool
	SponsorRequested   bool

	// Approvals maps issue keys to the verdict of /approve commands.
	Approvals map[string]bool
	// ApprovalRequested is set by /approval request.
	ApprovalRequested bool

	// TagRequests holds tag names accepted from /tag commands.
	TagRequests []string

	// Touched forces fingerprint expiry for this run.
	Touched bool
}

func newCommandEffects() *CommandEffects {
	return &CommandEffects{
		RemovedIssues: make(map[string]bool),
		Approvals:     make(map[string]bool),
	}
}

// approvalGranted reports whether any /approve verdict was positive.
func (eff *CommandEffects) approvalGranted() bool {
	for _, ok := range eff.Approvals {
		if ok {
			return true
		}
	}
	return false
}

// commandEnv is the read-only context available to command handlers.
type commandEnv struct {
	bot      *Bot
	pr       *forge.PullRequest
	census   *census.Census
	confReq  Requirement
	verdicts []ReviewerVerdict
	// tagPattern is the [repository] tag pattern from the effective
	// jcheck configuration, empty when unrestricted.
	tagPattern string
	tags       []string
	// conflict is the merge-conflict probe result for the current head.
	conflict bool
	// checksOK reports whether the jcheck pass for the current head
	// produced no errors.
	checksOK bool
	// prereqsOK reflects the readyLabels/readyComments gates.
	prereqsOK bool
}

func (e *commandEnv) role(user string) census.Role {
	return e.census.Role(user)
}

// effective returns the requirement vector with the effects applied.
func (e *commandEnv) effective(eff *CommandEffects) Requirement {
	if eff.ReviewerOverride == nil {
		return e.confReq
	}
	return e.confReq.Merge(eff.ReviewerOverride)
}

// ready reports whether the PR currently meets its review requirement.
func (e *commandEnv) ready(eff *CommandEffects) bool {
	return satisfied(e.effective(eff), e.verdicts)
}

// integrationGate checks the gates shared by /integrate and /sponsor:
// ready prerequisites and passing checks, reviewer satisfaction,
// merge-conflict absence, and maintainer approval when configured. It
// returns the refusal message for the first gate not met.
func (e *commandEnv) integrationGate(eff *CommandEffects) (string, bool) {
	if !e.checksOK || !e.prereqsOK || !e.ready(eff) {
		return "This pull request has not yet been marked as ready for integration.", false
	}
	if e.conflict {
		return "This pull request can not be integrated into the target branch until the merge conflicts have been resolved.", false
	}
	if e.bot.cfg.Approval != nil && !eff.approvalGranted() {
		return "This pull request has not yet been approved by the repository maintainers.", false
	}
	return "", true
}

// handleCommand authorizes and applies one command. It returns the
// reply body (always non-empty for known verbs) and whether the command
// was authorized; unauthorized commands have no effect.
func handleCommand(env *commandEnv, cmd *Command, eff *CommandEffects) (reply string, authorized bool) {
	switch cmd.Verb {
	case "reviewers":
		return handleReviewers(env, cmd, eff)
	case "integrate":
		return handleIntegrate(env, cmd, eff)
	case "sponsor":
		return handleSponsor(env, cmd, eff)
	case "csr":
		return handleCSR(env, cmd, eff)
	case "jep":
		return handleJEP(env, cmd, eff)
	case "approval":
		return handleApproval(env, cmd, eff)
	case "approve":
		return handleApprove(env, cmd, eff)
	case "tag":
		return handleTag(env, cmd, eff)
	case "issue", "solves":
		return handleIssue(env, cmd, eff)
	case "touch", "keepalive":
		eff.Touched = true
		return "The pull request is being re-evaluated and the inactivity timeout has been reset.", true
	default:
		return "", false
	}
}

func handleReviewers(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	fields := strings.Fields(cmd.Args)
	if len(fields) == 0 {
		return "Usage: `/reviewers <n> [<role>]` where `<n>` is the number of required reviewers.", false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return fmt.Sprintf("`%s` is not a valid number of required reviewers.", fields[0]), false
	}
	role := census.RoleReviewer
	if len(fields) > 1 {
		role = census.ParseRole(strings.ToLower(fields[1]))
		if role == census.RoleNone {
			return fmt.Sprintf("`%s` is not a valid role.", fields[1]), false
		}
	}

	override := Requirement{role: n}
	current := env.effective(eff)
	if env.confReq.Merge(override).LowerThan(current) &&
		!env.role(cmd.User).AtLeast(census.RoleReviewer) {
		return "Only Reviewers are allowed to decrease the number of required reviewers.", false
	}

	eff.ReviewerOverride = override
	updated := env.effective(eff)
	return fmt.Sprintf("The total number of required reviews for this PR "+
		"(including the jcheck configuration and the last `/reviewers` command) "+
		"is now set to %d (with at least %d of role %s).",
		updated.Total(), n, role), true
}

func handleIntegrate(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	if cmd.User != env.pr.Author {
		return "Only the author of this pull request is allowed to issue the `/integrate` command.", false
	}
	if refusal, ok := env.integrationGate(eff); !ok {
		return refusal, false
	}
	if env.role(cmd.User).AtLeast(census.RoleCommitter) {
		eff.IntegrateRequested = true
		return fmt.Sprintf("Going to integrate this change at version %s.", shortHash(env.pr.HeadHash)), true
	}
	eff.SponsorRequested = true
	return fmt.Sprintf("Your change (at version %s) is now ready to be sponsored by a Committer.",
		shortHash(env.pr.HeadHash)), true
}

func handleSponsor(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	if !env.role(cmd.User).AtLeast(census.RoleCommitter) {
		return "Only Committers are allowed to sponsor changes.", false
	}
	if !eff.SponsorRequested {
		return "The author of this pull request has not yet asked for sponsorship with the `/integrate` command.", false
	}
	if refusal, ok := env.integrationGate(eff); !ok {
		return refusal, false
	}
	eff.IntegrateRequested = true
	return fmt.Sprintf("Going to integrate this change at version %s on behalf of %s.",
		shortHash(env.pr.HeadHash), env.pr.Author), true
}

func handleCSR(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	arg := strings.ToLower(strings.TrimSpace(cmd.Args))
	switch arg {
	case "", "needed":
		required := true
		eff.CSRRequired = &required
		return "This pull request will not be integrated until the CSR request for the main issue has been approved.", true
	case "unneeded":
		if !env.role(cmd.User).AtLeast(census.RoleReviewer) {
			return "Only Reviewers can determine that a CSR is not needed.", false
		}
		required := false
		eff.CSRRequired = &required
		return "Determined that a CSR request is not needed for this pull request.", true
	default:
		return "Usage: `/csr [needed|unneeded]`.", false
	}
}

func handleJEP(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	arg := strings.TrimSpace(cmd.Args)
	if strings.EqualFold(arg, "unneeded") {
		eff.JEPKey = ""
		return "Determined that the JEP request is not needed for this pull request.", true
	}
	arg = strings.TrimPrefix(strings.TrimPrefix(arg, "JEP-"), "jep-")
	project, id, ok := issues.ParseID(arg)
	if !ok {
		return "Usage: `/jep <id>|JEP-<id>|unneeded`.", false
	}
	if project == "" {
		project = env.bot.cfg.IssueProject
	}
	eff.JEPKey = issues.Key(project, id)
	return fmt.Sprintf("This pull request will not be integrated until the [%s](%s) has been targeted.",
		eff.JEPKey, env.bot.issueURL(eff.JEPKey)), true
}

func handleApproval(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	if env.bot.cfg.Approval == nil {
		return "Maintainer approval is not enabled for this repository.", false
	}
	if cmd.User != env.pr.Author {
		return "Only the author of this pull request is allowed to issue the `/approval` command.", false
	}
	fields := strings.SplitN(strings.TrimSpace(cmd.Args), " ", 2)
	switch strings.ToLower(fields[0]) {
	case "request", "":
		eff.ApprovalRequested = true
		reply := "A maintainer approval request has been submitted for this pull request."
		if url := env.bot.cfg.Approval.DocumentationURL; url != "" {
			reply += fmt.Sprintf(" See the [approval process documentation](%s) for next steps.", url)
		}
		return reply, true
	case "cancel":
		eff.ApprovalRequested = false
		return "The maintainer approval request has been cancelled.", true
	default:
		return "Usage: `/approval [request|cancel] [<text>]`.", false
	}
}

func handleApprove(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	if !env.bot.cfg.IsIntegrator(cmd.User) {
		return "Only repository maintainers are allowed to issue the `/approve` command.", false
	}
	fields := strings.Fields(cmd.Args)
	if len(fields) == 0 {
		return "Usage: `/approve yes|no [<issue id>]`.", false
	}
	verdict := strings.ToLower(fields[0])
	if verdict != "yes" && verdict != "no" {
		return "Usage: `/approve yes|no [<issue id>]`.", false
	}
	key := ""
	if len(fields) > 1 {
		project, id, ok := issues.ParseID(fields[1])
		if !ok {
			return fmt.Sprintf("`%s` is not a valid issue id.", fields[1]), false
		}
		if project == "" {
			project = env.bot.cfg.IssueProject
		}
		key = issues.Key(project, id)
	}
	eff.Approvals[key] = verdict == "yes"
	if verdict == "yes" {
		return "The maintainer approval request has been approved.", true
	}
	return "The maintainer approval request has been rejected.", true
}

func handleTag(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	if !env.bot.cfg.IsIntegrator(cmd.User) {
		return "Only repository maintainers are allowed to create tags.", false
	}
	name := strings.TrimSpace(cmd.Args)
	if name == "" {
		return "Usage: `/tag <name>`.", false
	}
	if pattern := env.tagPattern; pattern != "" {
		re, err := regexp.Compile("^(" + pattern + ")$")
		if err == nil && !re.MatchString(name) {
			return fmt.Sprintf("The tag name `%s` does not match the repository tag pattern `%s`.", name, pattern), false
		}
	}
	for _, existing := range env.tags {
		if existing == name {
			return fmt.Sprintf("A tag named `%s` already exists.", name), false
		}
	}
	eff.TagRequests = append(eff.TagRequests, name)
	return fmt.Sprintf("The tag [%s](%s) will be created at version %s.",
		name, env.pr.URL, shortHash(env.pr.HeadHash)), true
}

func handleIssue(env *commandEnv, cmd *Command, eff *CommandEffects) (string, bool) {
	fields := strings.Fields(cmd.Args)
	if len(fields) == 0 {
		return "Usage: `/issue [add|remove] <id>[,<id>,...]`.", false
	}
	op := "add"
	rest := fields
	switch strings.ToLower(fields[0]) {
	case "add":
		rest = fields[1:]
	case "remove", "delete":
		op = "remove"
		rest = fields[1:]
	}
	var keys []string
	for _, raw := range strings.FieldsFunc(strings.Join(rest, " "), func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		project, id, ok := issues.ParseID(raw)
		if !ok {
			return fmt.Sprintf("`%s` is not a valid issue id.", raw), false
		}
		if project == "" {
			project = env.bot.cfg.IssueProject
		}
		keys = append(keys, issues.Key(project, id))
	}
	if len(keys) == 0 {
		return "Usage: `/issue [add|remove] <id>[,<id>,...]`.", false
	}
	if op == "remove" {
		for _, k := range keys {
			eff.RemovedIssues[k] = true
		}
		return fmt.Sprintf("Removing additional issue%s from issue list: %s.",
			plural(len(keys)), strings.Join(keys, ", ")), true
	}
	eff.AdditionalIssues = append(eff.AdditionalIssues, keys...)
	return fmt.Sprintf("Adding additional issue%s to issue list: %s.",
		plural(len(keys)), strings.Join(keys, ", ")), true
}

// applyRecordedCommand replays a ledger entry into the effects without
// generating a reply. Only authorized commands carry effects.
func applyRecordedCommand(env *commandEnv, verb, args, user string, eff *CommandEffects) {
	cmd := &Command{Verb: verb, Args: args, User: user}
	_, _ = handleCommand(env, cmd, eff)
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
