package jcheck

// Line is a single added line within a file change.
type Line struct {
	Number int
	Text   string
}

// FileChange describes one file touched by the change under check.
type FileChange struct {
	Path       string
	Executable bool
	Symlink    bool
	Binary     bool
	Added      []Line
}

// Change is the snapshot of a pull request's cumulative diff that the
// check pipeline operates on. It is assembled by the caller from VCS
// output; the engine itself never touches the repository.
type Change struct {
	// Title is the pull request title after canonicalization.
	Title string
	// Files are the touched files with their added lines.
	Files []FileChange
}

// IsEmpty reports whether the change touches no files.
func (c *Change) IsEmpty() bool {
	return len(c.Files) == 0
}

// TouchesPath reports whether the change modifies the given path.
func (c *Change) TouchesPath(path string) bool {
	for _, f := range c.Files {
		if f.Path == path {
			return true
		}
	}
	return false
}
