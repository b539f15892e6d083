package vcs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openjdk/jmerge/internal/jcheck"
	"github.com/openjdk/jmerge/pkg/errors"
)

// Diff produces the structured change snapshot the check pipeline
// consumes: touched files with mode information and the added lines of
// each text file.
func (g *Git) Diff(ctx context.Context, base, head string) (*jcheck.Change, error) {
	raw, err := g.run(ctx, nil, "diff", "--raw", "--no-renames", base, head)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSUnknownCommit,
			fmt.Sprintf("failed to diff %s..%s", base, head), err)
	}

	change := &jcheck.Change{}
	index := make(map[string]*jcheck.FileChange)
	for _, entry := range parseRawDiff(raw) {
		change.Files = append(change.Files, entry)
		index[entry.Path] = &change.Files[len(change.Files)-1]
	}

	patch, err := g.run(ctx, nil, "diff", "--unified=0", "--no-renames", base, head)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSUnknownCommit,
			fmt.Sprintf("failed to diff %s..%s", base, head), err)
	}
	applyAddedLines(index, patch)

	return change, nil
}

// parseRawDiff parses `git diff --raw` lines of the form
// ":100644 100755 abc... def... M<TAB>path".
func parseRawDiff(out string) []jcheck.FileChange {
	var files []jcheck.FileChange
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, ":") {
			continue
		}
		meta, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(meta, ":"))
		if len(fields) < 5 {
			continue
		}
		dstMode := fields[1]
		status := fields[4]
		if status == "D" {
			// Deletions carry no added content and no new mode.
			files = append(files, jcheck.FileChange{Path: path})
			continue
		}
		files = append(files, jcheck.FileChange{
			Path:       path,
			Executable: dstMode == "100755",
			Symlink:    dstMode == "120000",
		})
	}
	return files
}

// applyAddedLines walks a unified diff and attaches added lines (with
// their new-file line numbers) to the matching file entries. Binary
// files are flagged from the "Binary files ... differ" marker.
func applyAddedLines(index map[string]*jcheck.FileChange, patch string) {
	var current *jcheck.FileChange
	lineNo := 0
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			path := strings.TrimPrefix(line, "+++ ")
			path = strings.TrimPrefix(path, "b/")
			current = index[path]
		case strings.HasPrefix(line, "Binary files "):
			for path, fc := range index {
				if strings.Contains(line, "b/"+path) {
					fc.Binary = true
				}
			}
		case strings.HasPrefix(line, "@@"):
			lineNo = newFileStart(line)
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			if current != nil {
				current.Added = append(current.Added, jcheck.Line{
					Number: lineNo,
					Text:   strings.TrimPrefix(line, "+"),
				})
			}
			lineNo++
		case strings.HasPrefix(line, "-"):
			// Removed lines do not advance the new-file counter.
		default:
			lineNo++
		}
	}
}

// newFileStart extracts the new-file start line from a hunk header like
// "@@ -10,2 +15,4 @@".
func newFileStart(header string) int {
	plus := strings.Index(header, "+")
	if plus < 0 {
		return 0
	}
	rest := header[plus+1:]
	if end := strings.IndexAny(rest, ", @"); end >= 0 {
		rest = rest[:end]
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}
