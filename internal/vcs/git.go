// Package vcs provides local git operations for the check pipeline:
// fetching PR heads, resolving refs, structured diffs, dry-run merge
// and rebase probes, cherry-picks and annotated tags. All operations
// shell out to git, as the forge adapters do for clones.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openjdk/jmerge/pkg/errors"
	"github.com/openjdk/jmerge/pkg/logger"
	"github.com/openjdk/jmerge/pkg/telemetry"
)

// OperationTimeout bounds every git invocation so a wedged remote
// cannot block a work item indefinitely.
const OperationTimeout = 5 * time.Minute

// Git runs git commands in a repository directory.
type Git struct {
	dir string
}

// NewGit returns a Git bound to the given repository directory.
func NewGit(dir string) *Git {
	return &Git{dir: dir}
}

// Dir returns the repository directory.
func (g *Git) Dir() string {
	return g.dir
}

// run executes a git command in the repository directory and returns
// trimmed stdout. Extra environment entries are appended on top of the
// process environment; GIT_TERMINAL_PROMPT is always disabled.
func (g *Git) run(ctx context.Context, env []string, args ...string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "git", append([]string{"-C", g.dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, env...)

	if err := cmd.Run(); err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s timed out after %v", args[0], OperationTimeout)
		}
		return "", fmt.Errorf("git %s failed: %w (stderr: %s)", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// MaskToken masks a token for safe logging.
func MaskToken(token string) string {
	if token == "" {
		return "(empty)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// credentialHelper writes a temporary GIT_ASKPASS script that emits the
// token, so credentials never appear in the command line or the URL.
func credentialHelper(token string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "jmerge-askpass-*.sh")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create credential helper: %w", err)
	}

	var script string
	if runtime.GOOS == "windows" {
		script = fmt.Sprintf("@echo off\necho %s\n", token)
	} else {
		script = fmt.Sprintf("#!/bin/sh\necho \"%s\"\n", token)
	}

	if _, err := tmpFile.WriteString(script); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to write credential helper: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to close credential helper: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpFile.Name(), 0700); err != nil {
			os.Remove(tmpFile.Name())
			return "", nil, fmt.Errorf("failed to make credential helper executable: %w", err)
		}
	}

	return tmpFile.Name(), func() { os.Remove(tmpFile.Name()) }, nil
}

// FetchOptions carries authentication for fetch operations.
type FetchOptions struct {
	Token              string
	InsecureSkipVerify bool
}

// Clone clones a repository into the bound directory.
func Clone(ctx context.Context, url, dir string, opts *FetchOptions) (*Git, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "git", "clone", url, dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	env := []string{"GIT_TERMINAL_PROMPT=0"}
	if opts != nil {
		if opts.InsecureSkipVerify {
			env = append(env, "GIT_SSL_NO_VERIFY=true")
		}
		if opts.Token != "" {
			helper, cleanup, err := credentialHelper(opts.Token)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeVCSClone, "failed to prepare credentials", err)
			}
			defer cleanup()
			env = append(env, "GIT_ASKPASS="+helper)
		}
	}
	cmd.Env = append(cmd.Environ(), env...)

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSClone,
			fmt.Sprintf("failed to clone %s", redactURL(url)),
			fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String())))
	}

	logger.Info("Cloned repository", zap.String("dir", dir))
	return NewGit(dir), nil
}

// redactURL strips userinfo from a URL before it reaches logs or errors.
func redactURL(url string) string {
	if at := strings.LastIndex(url, "@"); at >= 0 {
		if scheme := strings.Index(url, "://"); scheme >= 0 && scheme+3 < at {
			return url[:scheme+3] + url[at+1:]
		}
	}
	return url
}

// Fetch fetches a refspec from the given remote URL. Fetch durations
// feed the git metrics since they dominate check-run latency.
func (g *Git) Fetch(ctx context.Context, remoteURL, refspec string, opts *FetchOptions) error {
	start := time.Now()

	var env []string
	var cleanup func()
	if opts != nil {
		if opts.InsecureSkipVerify {
			env = append(env, "GIT_SSL_NO_VERIFY=true")
		}
		if opts.Token != "" {
			helper, c, err := credentialHelper(opts.Token)
			if err != nil {
				return errors.Wrap(errors.ErrCodeVCSFetch, "failed to prepare credentials", err)
			}
			cleanup = c
			env = append(env, "GIT_ASKPASS="+helper)
		}
	}
	if cleanup != nil {
		defer cleanup()
	}

	args := []string{"fetch", "--no-tags", "--force", remoteURL}
	if refspec != "" {
		args = append(args, refspec)
	}
	_, err := g.run(ctx, env, args...)

	telemetry.GetMetrics().RecordGitFetch(ctx, g.dir, err == nil, time.Since(start).Seconds())
	if err != nil {
		return errors.Wrap(errors.ErrCodeVCSFetch,
			fmt.Sprintf("failed to fetch %s from %s", refspec, redactURL(remoteURL)), err)
	}
	return nil
}

// ResolveRef resolves a ref to a commit hash.
func (g *Git) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := g.run(ctx, nil, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeVCSUnknownCommit, fmt.Sprintf("unknown ref %s", ref), err)
	}
	return out, nil
}

// MergeBase returns the best common ancestor of two commits.
func (g *Git) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, err := g.run(ctx, nil, "merge-base", a, b)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeVCSUnknownCommit,
			fmt.Sprintf("no merge base between %s and %s", a, b), err)
	}
	return out, nil
}

// Commit is a single commit in a range listing.
type Commit struct {
	Hash    string
	Author  string
	Title   string
	IsMerge bool
}

// CommitsBetween lists the commits in base..head, oldest first.
func (g *Git) CommitsBetween(ctx context.Context, base, head string) ([]Commit, error) {
	out, err := g.run(ctx, nil, "log", "--reverse", "--format=%H%x00%an%x00%P%x00%s", base+".."+head)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSUnknownCommit,
			fmt.Sprintf("failed to list commits %s..%s", base, head), err)
	}
	return parseCommitLog(out), nil
}

func parseCommitLog(out string) []Commit {
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\x00", 4)
		if len(fields) != 4 {
			continue
		}
		commits = append(commits, Commit{
			Hash:    fields[0],
			Author:  fields[1],
			Title:   fields[3],
			IsMerge: len(strings.Fields(fields[2])) > 1,
		})
	}
	return commits
}

// FilesTouched lists the paths modified between two commits.
func (g *Git) FilesTouched(ctx context.Context, base, head string) ([]string, error) {
	out, err := g.run(ctx, nil, "diff", "--name-only", base, head)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSUnknownCommit,
			fmt.Sprintf("failed to diff %s..%s", base, head), err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CommitPatch returns the patch id of a single commit, used to match
// backported commits against their upstream originals.
func (g *Git) CommitPatch(ctx context.Context, hash string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	show := exec.CommandContext(timeoutCtx, "git", "-C", g.dir, "show", hash)
	patchID := exec.CommandContext(timeoutCtx, "git", "-C", g.dir, "patch-id", "--stable")

	pipe, err := show.StdoutPipe()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeVCSUnknownCommit, "failed to pipe git show", err)
	}
	patchID.Stdin = pipe
	var out bytes.Buffer
	patchID.Stdout = &out

	if err := show.Start(); err != nil {
		return "", errors.Wrap(errors.ErrCodeVCSUnknownCommit, "failed to run git show", err)
	}
	if err := patchID.Run(); err != nil {
		return "", errors.Wrap(errors.ErrCodeVCSUnknownCommit, "failed to run git patch-id", err)
	}
	if err := show.Wait(); err != nil {
		return "", errors.Wrap(errors.ErrCodeVCSUnknownCommit, fmt.Sprintf("unknown commit %s", hash), err)
	}

	fields := strings.Fields(out.String())
	if len(fields) == 0 {
		return "", errors.New(errors.ErrCodeVCSUnknownCommit, fmt.Sprintf("empty patch for %s", hash))
	}
	return fields[0], nil
}

// MergeProbe is the outcome of a dry-run merge.
type MergeProbe struct {
	// Clean reports whether the merge applies without conflicts.
	Clean bool
	// ConflictPaths lists conflicting paths when the merge is dirty.
	ConflictPaths []string
	// TreeHash is the resulting tree when the merge is clean.
	TreeHash string
}

// DryRunMerge probes whether head merges cleanly onto base without
// touching the working tree, using git merge-tree.
func (g *Git) DryRunMerge(ctx context.Context, base, head string) (*MergeProbe, error) {
	out, err := g.run(ctx, nil, "merge-tree", "--write-tree", "--name-only", base, head)
	if err == nil {
		return &MergeProbe{Clean: true, TreeHash: firstLine(out)}, nil
	}

	// merge-tree exits 1 on conflicts with the conflicted paths after
	// the tree hash; other exit codes are real failures.
	conflicted, cerr := g.run(ctx, nil, "merge-tree", "--write-tree", "--name-only", "--no-messages", base, head)
	if cerr == nil {
		return &MergeProbe{Clean: true, TreeHash: firstLine(conflicted)}, nil
	}
	paths := conflictPathsFromMergeTree(err.Error())
	if len(paths) == 0 {
		return nil, errors.Wrap(errors.ErrCodeVCSMergeConflict,
			fmt.Sprintf("merge probe of %s onto %s failed", head, base), err)
	}
	return &MergeProbe{Clean: false, ConflictPaths: paths}, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// conflictPathsFromMergeTree extracts conflicted paths from merge-tree
// output embedded in an exec error message.
func conflictPathsFromMergeTree(msg string) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "git ") || strings.Contains(line, "stderr:") {
			continue
		}
		// Conflicted path lines have no spaces; skip the tree hash.
		if strings.ContainsAny(line, " \t") || len(line) == 40 {
			continue
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}
	return paths
}

// DryRunRebase probes whether the commits in base..head replay cleanly
// onto target. Each commit is probed as a merge of its changes onto the
// accumulated result; a conflict on any commit fails the probe.
func (g *Git) DryRunRebase(ctx context.Context, base, head, target string) (*MergeProbe, error) {
	commits, err := g.CommitsBetween(ctx, base, head)
	if err != nil {
		return nil, err
	}

	onto := target
	for _, c := range commits {
		if c.IsMerge {
			continue
		}
		probe, err := g.DryRunMerge(ctx, onto, c.Hash)
		if err != nil {
			return nil, err
		}
		if !probe.Clean {
			return probe, nil
		}
	}
	return &MergeProbe{Clean: true}, nil
}

// CherryPick applies a commit onto a new branch from target inside a
// temporary worktree, leaving the main checkout untouched. Returns the
// resulting commit hash.
func (g *Git) CherryPick(ctx context.Context, target, hash string) (string, error) {
	worktree, err := os.MkdirTemp("", "jmerge-pick-*")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeVCSMergeConflict, "failed to create worktree dir", err)
	}
	defer os.RemoveAll(worktree)

	if _, err := g.run(ctx, nil, "worktree", "add", "--detach", worktree, target); err != nil {
		return "", errors.Wrap(errors.ErrCodeVCSMergeConflict, "failed to add worktree", err)
	}
	defer g.run(context.WithoutCancel(ctx), nil, "worktree", "remove", "--force", worktree)

	wt := NewGit(worktree)
	if _, err := wt.run(ctx, nil, "cherry-pick", "--allow-empty", hash); err != nil {
		wt.run(context.WithoutCancel(ctx), nil, "cherry-pick", "--abort")
		return "", errors.Wrap(errors.ErrCodeVCSMergeConflict,
			fmt.Sprintf("cherry-pick of %s onto %s conflicts", hash, target), err)
	}
	return wt.ResolveRef(ctx, "HEAD")
}

// Tag creates an annotated tag on the given commit.
func (g *Git) Tag(ctx context.Context, name, hash, message string) error {
	if _, err := g.run(ctx, nil, "tag", "-a", name, "-m", message, hash); err != nil {
		return errors.Wrap(errors.ErrCodeVCSTag, fmt.Sprintf("failed to tag %s at %s", name, hash), err)
	}
	return nil
}

// PushTag pushes a tag to the remote.
func (g *Git) PushTag(ctx context.Context, remoteURL, name string, opts *FetchOptions) error {
	var env []string
	if opts != nil && opts.Token != "" {
		helper, cleanup, err := credentialHelper(opts.Token)
		if err != nil {
			return errors.Wrap(errors.ErrCodeVCSTag, "failed to prepare credentials", err)
		}
		defer cleanup()
		env = append(env, "GIT_ASKPASS="+helper)
	}
	if _, err := g.run(ctx, env, "push", remoteURL, "refs/tags/"+name); err != nil {
		return errors.Wrap(errors.ErrCodeVCSTag, fmt.Sprintf("failed to push tag %s", name), err)
	}
	return nil
}

// ListBranches lists local and remote-tracking branch names.
func (g *Git) ListBranches(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, nil, "for-each-ref", "--format=%(refname:short)", "refs/heads", "refs/remotes")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSFetch, "failed to list branches", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ListTags lists tag names.
func (g *Git) ListTags(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, nil, "for-each-ref", "--format=%(refname:short)", "refs/tags")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSFetch, "failed to list tags", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
