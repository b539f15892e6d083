package jcheck

// Severity classifies a finding.
type Severity int

const (
	// SeverityError blocks integration.
	SeverityError Severity = iota + 1
	// SeverityWarning is rendered but does not block.
	SeverityWarning
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Origin records which configuration produced a finding when the check
// executor runs both the target and the proposed configuration.
type Origin int

const (
	// OriginTargetConf marks findings from the authoritative target-branch
	// configuration.
	OriginTargetConf Origin = iota
	// OriginSourceConf marks advisory findings from a configuration the PR
	// itself modifies.
	OriginSourceConf
)

// Finding is a single check result. Findings are the sole bridge between
// check execution and the state projector.
type Finding struct {
	Severity Severity
	Kind     string // check name, e.g. "whitespace"
	Message  string
	Origin   Origin
}

// Errors filters findings down to errors.
func Errors(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

// Warnings filters findings down to warnings.
func Warnings(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			out = append(out, f)
		}
	}
	return out
}

// Dedupe removes findings whose (kind, message) already occurred earlier
// in the slice. When a finding appears under both origins, the target
// origin wins because target findings sort first.
func Dedupe(findings []Finding) []Finding {
	seen := make(map[string]bool)
	var out []Finding
	for _, f := range findings {
		key := f.Kind + "\x00" + f.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}
