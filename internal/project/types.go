// Package project detects project context from a working directory (C5) and
// watches it for changes relevant to that context (half of C8).
package project

// Context is the ProjectContext value type from spec.md §3. It is pure data,
// recomputed wholesale on every detection pass rather than mutated in place.
type Context struct {
	ProjectPath            string
	PrimaryLanguage        string
	Frameworks             []string
	ProjectType            string
	DependencyFingerprint  string
}

// Unknown is the zero-value context returned when no marker matches.
func Unknown(path string) Context {
	return Context{ProjectPath: path, ProjectType: "unknown"}
}

// SameSignature reports whether two contexts carry the same detection
// signature fields that the activation tracker (C8) treats as relevant for a
// recompute: dependency fingerprint, project type, and primary language
// (spec.md §4.7: "if dependency_fingerprint or project_type or
// primary_language changed").
func SameSignature(a, b Context) bool {
	return a.DependencyFingerprint == b.DependencyFingerprint &&
		a.ProjectType == b.ProjectType &&
		a.PrimaryLanguage == b.PrimaryLanguage
}

// Signature returns the "<primary_language>:<project_type>" key used for
// provider signatures and usage records (spec.md §3 UsageRecord).
func (c Context) Signature() string {
	return c.PrimaryLanguage + ":" + c.ProjectType
}
