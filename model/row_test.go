package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerMembership(t *testing.T) {
	assert := assert.New(t)

	assert.False(IsApplied(nil, "rename-headline"))
	assert.False(IsApplied([]string{}, "rename-headline"))
	assert.False(IsApplied([]string{"add-slug"}, "rename-headline"))
	assert.True(IsApplied([]string{"add-slug", "rename-headline"}, "rename-headline"))
}

func TestMarkAppliedIsIdempotent(t *testing.T) {
	assert := assert.New(t)

	ledger := MarkApplied(nil, "add-slug")
	assert.Equal([]string{"add-slug"}, ledger)

	again := MarkApplied(ledger, "add-slug")
	assert.Equal([]string{"add-slug"}, again)

	ledger = MarkApplied(again, "rename-headline")
	assert.Equal([]string{"add-slug", "rename-headline"}, ledger)
	assert.Equal([]string{"add-slug", "rename-headline"}, MarkApplied(ledger, "add-slug"))
}

func TestMarkAppliedDoesNotMutateInput(t *testing.T) {
	assert := assert.New(t)

	original := []string{"add-slug"}
	extended := MarkApplied(original, "rename-headline")

	assert.Equal([]string{"add-slug"}, original)
	assert.Equal([]string{"add-slug", "rename-headline"}, extended)

	// appending to the result must never clobber the original's
	// backing array
	extended[0] = "mutated"
	assert.Equal("add-slug", original[0])
}

func TestApplyLeavesReceiverUntouched(t *testing.T) {
	assert := assert.New(t)

	row := Row{
		ID:              "doc-1",
		AppliedUpgrades: []string{"add-slug"},
		Fields:          Document{"headline": "hello", "views": 3},
	}

	patched := row.Apply(Patch{
		Set:    Document{"title": "hello"},
		Unset:  []string{"headline"},
		Ledger: []string{"add-slug", "rename-headline"},
	})

	assert.Equal(Document{"headline": "hello", "views": 3}, row.Fields)
	assert.Equal([]string{"add-slug"}, row.AppliedUpgrades)

	assert.Equal("doc-1", patched.ID)
	assert.Equal(Document{"title": "hello", "views": 3}, patched.Fields)
	assert.Equal([]string{"add-slug", "rename-headline"}, patched.AppliedUpgrades)
}

func TestApplyZeroPatch(t *testing.T) {
	assert := assert.New(t)

	row := Row{ID: 1, Fields: Document{"k": "v"}}
	out := row.Apply(Patch{})

	assert.Equal(row.ID, out.ID)
	assert.Equal(row.Fields, out.Fields)
	assert.Nil(out.AppliedUpgrades)
}

func TestPatchIsZero(t *testing.T) {
	assert := assert.New(t)

	assert.True(Patch{}.IsZero())
	assert.False(Patch{Set: Document{"k": "v"}}.IsZero())
	assert.False(Patch{Unset: []string{"k"}}.IsZero())
	assert.False(Patch{Ledger: []string{}}.IsZero())
}

func TestMergeLaterPatchWins(t *testing.T) {
	assert := assert.New(t)

	first := Patch{
		Set:   Document{"title": "old", "slug": "old-slug"},
		Unset: []string{"legacy"},
	}
	second := Patch{
		Set:   Document{"title": "new", "legacy": "revived"},
		Unset: []string{"slug"},
	}

	merged := first.Merge(second)

	assert.Equal(Document{"title": "new", "legacy": "revived"}, merged.Set)
	assert.Equal([]string{"slug"}, merged.Unset)
}

func TestMergeNeverSetsAndUnsetsOneKey(t *testing.T) {
	assert := assert.New(t)

	merged := Patch{Set: Document{"a": 1}}.Merge(Patch{Unset: []string{"a"}})
	assert.Nil(merged.Set)
	assert.Equal([]string{"a"}, merged.Unset)

	merged = Patch{Unset: []string{"b"}}.Merge(Patch{Set: Document{"b": 2}})
	assert.Equal(Document{"b": 2}, merged.Set)
	assert.Empty(merged.Unset)
}

func TestMergeLedgerReplacement(t *testing.T) {
	assert := assert.New(t)

	merged := Patch{Ledger: []string{"a"}}.Merge(Patch{})
	assert.Equal([]string{"a"}, merged.Ledger)

	merged = Patch{Ledger: []string{"a"}}.Merge(Patch{Ledger: []string{"a", "b"}})
	assert.Equal([]string{"a", "b"}, merged.Ledger)
}

func TestMergeEquivalentToSequentialApply(t *testing.T) {
	assert := assert.New(t)

	row := Row{ID: 9, Fields: Document{"headline": "x", "n": 1, "stale": true}}
	first := Patch{Set: Document{"title": "x"}, Unset: []string{"headline"}}
	second := Patch{Set: Document{"n": 2}, Unset: []string{"stale"}}

	sequential := row.Apply(first).Apply(second)
	merged := row.Apply(first.Merge(second))

	assert.Equal(sequential.Fields, merged.Fields)
}

func TestCopyIsDeep(t *testing.T) {
	assert := assert.New(t)

	row := Row{ID: 4, AppliedUpgrades: []string{"a"}, Fields: Document{"k": "v"}}
	dup := row.Copy()

	dup.AppliedUpgrades[0] = "mutated"
	dup.Fields["k"] = "mutated"

	assert.Equal([]string{"a"}, row.AppliedUpgrades)
	assert.Equal(Document{"k": "v"}, row.Fields)
}
