package bot

import (
	"sort"

	"github.com/openjdk/jmerge/internal/census"
	"github.com/openjdk/jmerge/internal/forge"
)

// ReviewerVerdict is a reviewer's latest verdict annotated with the
// census role held at evaluation time and its staleness with respect to
// the current head and target ref.
type ReviewerVerdict struct {
	User    string
	Role    census.Role
	Verdict forge.Verdict
	Hash    string
	// Active reports whether the verdict still applies to the current
	// (head, targetRef) pair.
	Active bool
	// SelfReview marks a verdict cast by the PR author.
	SelfReview bool
}

// Requirement is the reviewer-requirement vector: a minimum verdict
// count per role. Satisfaction lets higher roles fill lower slots.
type Requirement map[census.Role]int

// rolesDesc orders roles from most to least senior.
var rolesDesc = []census.Role{
	census.RoleLead,
	census.RoleReviewer,
	census.RoleCommitter,
	census.RoleAuthor,
	census.RoleContributor,
}

// Total returns the sum of all role minimums.
func (r Requirement) Total() int {
	n := 0
	for _, v := range r {
		n += v
	}
	return n
}

// Merge returns the element-wise maximum of two requirement vectors.
func (r Requirement) Merge(other Requirement) Requirement {
	out := make(Requirement)
	for _, role := range rolesDesc {
		a, b := r[role], other[role]
		if a > b {
			out[role] = a
		} else {
			out[role] = b
		}
	}
	return out
}

// LowerThan reports whether any slot of r is below the corresponding
// slot of other. Used to decide whether a /reviewers command decreases
// the requirement.
func (r Requirement) LowerThan(other Requirement) bool {
	for _, role := range rolesDesc {
		if r[role] < other[role] {
			return true
		}
	}
	return false
}

// evalOptions carries the per-run inputs for review evaluation.
type evalOptions struct {
	// headHash and targetRef identify the PR version under review.
	headHash  string
	targetRef string
	author    string
	ignored   []string
	// simpleMergeSince reports whether everything between the given
	// verdict hash and the current head is exclusively a merge of the
	// target branch. Nil disables the accept-simple-merges heuristic.
	simpleMergeSince func(hash string) bool
	// useStaleReviews keeps verdicts active across head changes.
	useStaleReviews bool
}

// evaluateReviews reduces the raw review stream to one annotated verdict
// per reviewer. Later reviews supersede earlier ones from the same user;
// plain comments never supersede an approval.
func evaluateReviews(reviews []*forge.Review, cen *census.Census, opts evalOptions) []ReviewerVerdict {
	latest := make(map[string]*forge.Review)
	order := make(map[string]int)
	for i, r := range reviews {
		if r.Verdict == forge.VerdictComment {
			continue
		}
		latest[r.User] = r
		order[r.User] = i
	}

	ignored := make(map[string]bool, len(opts.ignored))
	for _, u := range opts.ignored {
		ignored[u] = true
	}

	var out []ReviewerVerdict
	for user, r := range latest {
		if ignored[user] {
			continue
		}
		v := ReviewerVerdict{
			User:       user,
			Role:       cen.Role(user),
			Verdict:    r.Verdict,
			Hash:       r.Hash,
			SelfReview: user == opts.author,
		}
		v.Active = verdictActive(r, opts)
		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool {
		return order[out[i].User] < order[out[j].User]
	})
	return out
}

// verdictActive decides staleness per the rules: a verdict stays active
// when its (hash, targetRef) matches the current PR, or when the only
// commits since the verdict are simple merges of the target branch.
func verdictActive(r *forge.Review, opts evalOptions) bool {
	if r.TargetRef != "" && r.TargetRef != opts.targetRef {
		return false
	}
	if r.Hash == opts.headHash {
		return true
	}
	if opts.useStaleReviews {
		return true
	}
	if opts.simpleMergeSince != nil && opts.simpleMergeSince(r.Hash) {
		return true
	}
	return false
}

// hasSelfApproval reports whether the author approved their own PR.
func hasSelfApproval(verdicts []ReviewerVerdict) bool {
	for _, v := range verdicts {
		if v.SelfReview && v.Verdict == forge.VerdictApproved {
			return true
		}
	}
	return false
}

// satisfied reports whether the active approvals meet the requirement
// vector. Approvals are assigned greedily from the most senior slot
// down; a verdict may fill any slot at or below the holder's role.
// Self-reviews contribute nothing.
func satisfied(req Requirement, verdicts []ReviewerVerdict) bool {
	return missingCount(req, verdicts) == 0
}

// missingCount returns how many required approvals are still missing.
func missingCount(req Requirement, verdicts []ReviewerVerdict) int {
	var pool []census.Role
	for _, v := range verdicts {
		if !v.Active || v.SelfReview || v.Verdict != forge.VerdictApproved {
			continue
		}
		pool = append(pool, v.Role)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i] > pool[j] })

	missing := 0
	used := make([]bool, len(pool))
	for _, role := range rolesDesc {
		need := req[role]
		for i := range pool {
			if need == 0 {
				break
			}
			if !used[i] && pool[i].AtLeast(role) {
				used[i] = true
				need--
			}
		}
		missing += need
	}
	return missing
}

// creditedReviewers returns the users whose approvals are counted in
// the integration credit line. Stale approvals are credited too, per
// project convention, but self-reviews are not.
func creditedReviewers(verdicts []ReviewerVerdict) []string {
	var out []string
	for _, v := range verdicts {
		if v.Verdict == forge.VerdictApproved && !v.SelfReview {
			out = append(out, v.User)
		}
	}
	return out
}
