// Package bot implements the per-PR reconciliation engine: resolving
// the check configuration, linking tracker issues, evaluating reviews,
// running jcheck, probing mergeability, projecting the desired forge
// state and applying the minimal mutations to reach it.
package bot

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openjdk/jmerge/internal/forge"
)

// Markers embedded in bot-authored comments. The reconciler locates a
// previous comment by its marker so updates are idempotent; a comment
// never carries more than one marker.
const (
	MarkerForcePush     = "<!-- force-push marker -->"
	MarkerMergeConflict = "<!-- merge conflict message -->"
	MarkerRFR           = "<!-- PullRequestBot rfr -->"
	MarkerBackportError = "<!-- backport error -->"
	MarkerConfigError   = "<!-- jcheck configuration error -->"
	MarkerMergeRefusal  = "<!-- merge refusal -->"
	MarkerWebrev        = "<!-- webrev -->"
	MarkerApproval      = "<!-- approval -->"
)

// CommandReplyMarker keys a command reply to its generation number.
func CommandReplyMarker(gen int) string {
	return fmt.Sprintf("<!-- Jmerge command reply message (%d) -->", gen)
}

// BackportMarker keys the backport classification comment to the
// referenced upstream commit.
func BackportMarker(hash string) string {
	return fmt.Sprintf("<!-- backport %s -->", hash)
}

var markerRe = regexp.MustCompile(`<!--\s*[^>]+?\s*-->`)

// FindMarker returns the first marker embedded in a comment body, or ""
// when the comment carries none.
func FindMarker(body string) string {
	m := markerRe.FindString(body)
	return strings.TrimSpace(m)
}

// markerIndex maps each marker to the bot comment carrying it. Rebuilt
// on every reconciliation from the observed comment stream.
type markerIndex map[string]*forge.Comment

// buildMarkerIndex scans the comments authored by botUser and indexes
// them by marker. When a marker appears in several comments the first
// one wins; later duplicates are left alone.
func buildMarkerIndex(comments []*forge.Comment, botUser string) markerIndex {
	idx := make(markerIndex)
	for _, c := range comments {
		if c.Author != botUser {
			continue
		}
		marker := FindMarker(c.Body)
		if marker == "" {
			continue
		}
		if _, ok := idx[marker]; !ok {
			idx[marker] = c
		}
	}
	return idx
}
