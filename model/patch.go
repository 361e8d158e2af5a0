package model

import "github.com/evergreen-ci/utility"

// Patch is a sparse change to a single row: fields to merge over the
// row's document, fields to remove, and optionally a replacement
// ledger. Transforms produce the Set and Unset parts; the engine alone
// populates Ledger when it persists a row, and ignores any ledger a
// transform tries to smuggle through.
type Patch struct {
	Set    Document
	Unset  []string
	Ledger []string
}

// IsZero reports whether applying the patch would change nothing.
func (p Patch) IsZero() bool {
	return len(p.Set) == 0 && len(p.Unset) == 0 && p.Ledger == nil
}

// Merge combines two patches into one that has the same effect as
// applying the receiver and then next. A key set by next overrides an
// earlier unset of the same key and vice versa, so the result never
// both sets and unsets one key. Neither input is modified.
func (p Patch) Merge(next Patch) Patch {
	out := Patch{}

	if len(p.Set)+len(next.Set) > 0 {
		out.Set = make(Document, len(p.Set)+len(next.Set))
		for k, v := range p.Set {
			out.Set[k] = v
		}
	}
	out.Unset = append(out.Unset, p.Unset...)

	for k, v := range next.Set {
		out.Set[k] = v
		out.Unset = removeString(out.Unset, k)
	}
	for _, k := range next.Unset {
		delete(out.Set, k)
		if !utility.StringSliceContains(out.Unset, k) {
			out.Unset = append(out.Unset, k)
		}
	}
	if len(out.Set) == 0 {
		out.Set = nil
	}

	out.Ledger = p.Ledger
	if next.Ledger != nil {
		out.Ledger = next.Ledger
	}

	return out
}

func removeString(items []string, victim string) []string {
	if !utility.StringSliceContains(items, victim) {
		return items
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != victim {
			out = append(out, item)
		}
	}
	return out
}
