package model

import "github.com/evergreen-ci/utility"

// IsApplied reports whether the named upgrade is recorded in the
// ledger. A nil ledger records nothing.
func IsApplied(applied []string, upgrade string) bool {
	return utility.StringSliceContains(applied, upgrade)
}

// MarkApplied records an upgrade in the ledger, returning the input
// unchanged when the name is already present and a freshly allocated
// ledger with the name appended otherwise. The input slice is never
// mutated, so callers may hand the result to another row without
// aliasing the original.
func MarkApplied(applied []string, upgrade string) []string {
	if utility.StringSliceContains(applied, upgrade) {
		return applied
	}

	out := make([]string, 0, len(applied)+1)
	out = append(out, applied...)
	return append(out, upgrade)
}
