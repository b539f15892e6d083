package jcheck

import (
	"sort"
)

// Engine runs the enabled structural checks over a change snapshot.
// Run is a pure function of (conf, change); any caller-side state such
// as result caching keys off Conf.Hash and the change identity.
type Engine struct {
	checks []check
}

// NewEngine creates an engine with the built-in checks registered.
func NewEngine() *Engine {
	return &Engine{checks: builtinChecks()}
}

// Run executes every check enabled by the configuration and returns the
// aggregated findings, errors before warnings, in registration order
// within each severity.
func (e *Engine) Run(conf *Conf, change *Change) []Finding {
	var findings []Finding
	for _, c := range e.checks {
		severity, enabled := conf.CheckEnabled(c.Name())
		if !enabled {
			continue
		}
		findings = append(findings, c.Run(conf, change, severity)...)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity < findings[j].Severity
	})
	return findings
}
