package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/jcheck"
	"github.com/openjdk/jmerge/internal/vcs"
	"github.com/openjdk/jmerge/pkg/errors"
)

// Snapshot is the VCS view of a pull request at a single point in time:
// the resolved heads, the cumulative diff and the rebase probe result.
type Snapshot struct {
	TargetHead string
	MergeBase  string
	// Change is the cumulative diff between merge base and PR head.
	Change *jcheck.Change
	// RebaseClean reports whether the head rebases onto the target
	// without conflicts.
	RebaseClean   bool
	ConflictPaths []string
	// SubsetOfTarget is set when every change in the PR is already
	// present on the target branch.
	SubsetOfTarget bool
	// Tags are the existing tag names, for /tag duplicate detection.
	Tags []string
}

// BackportInfo classifies a backport PR.
type BackportInfo struct {
	// Hash is the referenced upstream commit, "" when unresolved.
	Hash string
	// Found reports whether the referenced commit exists on any branch.
	Found bool
	// Ancestor is set when the referenced commit is already an ancestor
	// of the PR head, which makes the backport meaningless.
	Ancestor bool
	// Clean reports whether the commit cherry-picks onto the target
	// without conflicts.
	Clean bool
	// IssueIDs are the issue ids extracted from the referenced commit
	// message, used to seed the issue linker.
	IssueIDs []string
}

// Prober answers the VCS questions a reconciliation run asks about a
// pull request. The production implementation shells out to git in a
// per-repository scratch area; tests substitute a fake.
type Prober interface {
	// Snapshot fetches the PR head and target and probes mergeability.
	Snapshot(ctx context.Context, pr *forge.PullRequest) (*Snapshot, error)
	// ClassifyBackport resolves the commit referenced by a backport
	// title and classifies the backport as clean or dirty.
	ClassifyBackport(ctx context.Context, pr *forge.PullRequest, ref string) (*BackportInfo, error)
	// OnlyTargetMerges reports whether everything between sinceHash and
	// the PR head is exclusively merges of the target branch, with no
	// source-only file modifications. This is the simple-merge
	// predicate behind acceptSimpleMerges.
	OnlyTargetMerges(ctx context.Context, pr *forge.PullRequest, sinceHash string) (bool, error)
	// CreateTag creates an annotated tag at the PR head and pushes it
	// to the upstream repository.
	CreateTag(ctx context.Context, pr *forge.PullRequest, name, message string) error
}

// gitProber implements Prober over a local scratch area.
type gitProber struct {
	scratch *Scratch
}

// Scratch bundles the VCS scratch area with the forge that provides
// clone URLs and fetch credentials.
type Scratch struct {
	Area  *vcs.Scratch
	Forge forge.Forge
	Opts  *vcs.FetchOptions
}

// NewGitProber creates the production prober.
func NewGitProber(scratch *Scratch) Prober {
	return &gitProber{scratch: scratch}
}

func (p *gitProber) acquire(ctx context.Context, pr *forge.PullRequest) (*vcs.Checkout, error) {
	refspecs := []string{
		fmt.Sprintf("+refs/heads/%s:refs/remotes/target/%s", pr.TargetRef, pr.TargetRef),
		fmt.Sprintf("+refs/pull/%d/head:refs/remotes/pr/%d", pr.Number, pr.Number),
	}
	return p.scratch.Area.Acquire(ctx, pr.Repo.FullName(),
		p.scratch.Forge.AuthenticatedCloneURL(pr.Repo), p.scratch.Opts, refspecs...)
}

func (p *gitProber) Snapshot(ctx context.Context, pr *forge.PullRequest) (*Snapshot, error) {
	co, err := p.acquire(ctx, pr)
	if err != nil {
		return nil, err
	}
	defer co.Release()

	targetHead, err := co.ResolveRef(ctx, "refs/remotes/target/"+pr.TargetRef)
	if err != nil {
		return nil, err
	}
	base, err := co.MergeBase(ctx, targetHead, pr.HeadHash)
	if err != nil {
		return nil, err
	}
	change, err := co.Diff(ctx, base, pr.HeadHash)
	if err != nil {
		return nil, err
	}
	change.Title = pr.Title

	probe, err := co.DryRunRebase(ctx, base, pr.HeadHash, targetHead)
	if err != nil {
		return nil, err
	}
	tags, err := co.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		TargetHead:     targetHead,
		MergeBase:      base,
		Change:         change,
		RebaseClean:    probe.Clean,
		ConflictPaths:  probe.ConflictPaths,
		SubsetOfTarget: base == pr.HeadHash,
		Tags:           tags,
	}, nil
}

// commitIssueRe extracts leading issue ids from commit message lines,
// e.g. "8123456: Fix the frobnicator".
var commitIssueRe = regexp.MustCompile(`(?m)^([0-9]{7,8}): `)

func (p *gitProber) ClassifyBackport(ctx context.Context, pr *forge.PullRequest, ref string) (*BackportInfo, error) {
	co, err := p.acquire(ctx, pr)
	if err != nil {
		return nil, err
	}
	defer co.Release()

	info := &BackportInfo{}
	hash, err := co.ResolveRef(ctx, ref)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeVCSUnknownCommit) {
			return info, nil
		}
		return nil, err
	}
	info.Hash = hash
	info.Found = true

	if base, err := co.MergeBase(ctx, hash, pr.HeadHash); err == nil && base == hash {
		info.Ancestor = true
		return info, nil
	}

	targetHead, err := co.ResolveRef(ctx, "refs/remotes/target/"+pr.TargetRef)
	if err != nil {
		return nil, err
	}
	if _, err := co.CherryPick(ctx, targetHead, hash); err != nil {
		if errors.HasCode(err, errors.ErrCodeVCSMergeConflict) {
			return info, nil
		}
		return nil, err
	}
	info.Clean = true

	patch, err := co.CommitPatch(ctx, hash)
	if err == nil {
		for _, m := range commitIssueRe.FindAllStringSubmatch(patch, -1) {
			info.IssueIDs = append(info.IssueIDs, m[1])
		}
	}
	return info, nil
}

func (p *gitProber) OnlyTargetMerges(ctx context.Context, pr *forge.PullRequest, sinceHash string) (bool, error) {
	co, err := p.acquire(ctx, pr)
	if err != nil {
		return false, err
	}
	defer co.Release()

	commits, err := co.CommitsBetween(ctx, sinceHash, pr.HeadHash)
	if err != nil {
		return false, err
	}
	if len(commits) == 0 {
		return false, nil
	}
	for _, c := range commits {
		if !c.IsMerge {
			return false, nil
		}
	}
	// All merges: verify that none of them changed anything beyond what
	// the target branch already carries.
	files, err := co.FilesTouched(ctx, sinceHash, pr.HeadHash)
	if err != nil {
		return false, err
	}
	targetHead, err := co.ResolveRef(ctx, "refs/remotes/target/"+pr.TargetRef)
	if err != nil {
		return false, err
	}
	targetFiles, err := co.FilesTouched(ctx, sinceHash, targetHead)
	if err != nil {
		return false, err
	}
	onTarget := make(map[string]bool, len(targetFiles))
	for _, f := range targetFiles {
		onTarget[f] = true
	}
	for _, f := range files {
		if !onTarget[f] {
			return false, nil
		}
	}
	return true, nil
}

func (p *gitProber) CreateTag(ctx context.Context, pr *forge.PullRequest, name, message string) error {
	co, err := p.acquire(ctx, pr)
	if err != nil {
		return err
	}
	defer co.Release()

	if err := co.Tag(ctx, name, pr.HeadHash, message); err != nil {
		return err
	}
	return co.PushTag(ctx, p.scratch.Forge.AuthenticatedCloneURL(pr.Repo), name, p.scratch.Opts)
}

// backportTitleRe matches the backport title form "Backport <ref>".
var backportTitleRe = regexp.MustCompile(`^Backport\s+([0-9a-fA-F]{7,40}|[A-Za-z][A-Za-z0-9]*-[0-9]+|[0-9]+)$`)

// parseBackportRef extracts the referenced commit or issue from a
// backport PR title.
func parseBackportRef(title string) (string, bool) {
	m := backportTitleRe.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// mergeTitleRe matches the merge title form "Merge [<source>:]<branch>".
var mergeTitleRe = regexp.MustCompile(`^Merge\s+(?:([^:\s]+):)?(\S+)$`)

// parseMergeRef extracts the source repository (may be empty) and
// branch from a merge PR title.
func parseMergeRef(title string) (source, branch string, ok bool) {
	m := mergeTitleRe.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
