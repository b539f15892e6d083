// Package forges registers all forge adapter implementations. Importing
// it triggers each adapter's init() registration, so the entry point
// does not need to know about individual adapters.
package forges

import (
	_ "github.com/openjdk/jmerge/internal/forge/gitea"
	_ "github.com/openjdk/jmerge/internal/forge/github"
	_ "github.com/openjdk/jmerge/internal/forge/gitlab"
)
