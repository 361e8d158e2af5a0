package model

// Document is the keyed field set of a stored row. The engine treats
// it as opaque data; only upgrade transforms assign meaning to keys.
type Document map[string]any

// Row is the engine's view of a single stored record: a stable unique
// ID, the ordered ledger of upgrade names already applied to it, and
// the remaining fields of the record. A nil ledger means no upgrades
// have been applied.
type Row struct {
	ID              any
	AppliedUpgrades []string
	Fields          Document
}

// Copy returns a row that shares no mutable state with the receiver.
// Field values themselves are not cloned.
func (r Row) Copy() Row {
	out := Row{ID: r.ID}
	if r.AppliedUpgrades != nil {
		out.AppliedUpgrades = make([]string, len(r.AppliedUpgrades))
		copy(out.AppliedUpgrades, r.AppliedUpgrades)
	}
	if r.Fields != nil {
		out.Fields = make(Document, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Apply returns the row produced by applying the patch to the
// receiver. The receiver is never modified; the field map is copied
// before the first change. A non-nil patch ledger replaces the row's
// ledger wholesale.
func (r Row) Apply(p Patch) Row {
	out := Row{ID: r.ID, AppliedUpgrades: r.AppliedUpgrades, Fields: r.Fields}

	if len(p.Set) > 0 || len(p.Unset) > 0 {
		fields := make(Document, len(r.Fields)+len(p.Set))
		for k, v := range r.Fields {
			fields[k] = v
		}
		for k, v := range p.Set {
			fields[k] = v
		}
		for _, k := range p.Unset {
			delete(fields, k)
		}
		out.Fields = fields
	}

	if p.Ledger != nil {
		out.AppliedUpgrades = p.Ledger
	}

	return out
}
