// Package resolver computes, from a declarative field schema, which
// product-configuration form fields are currently visible, in what order
// they unlock, and whether the configuration is complete enough to emit a
// modification.
//
// The algorithm is a progressive reveal: fields unlock in declaration order
// as their predecessors are filled. Parallel groups (multi-leg instruments,
// e.g. swap pay/receive legs) advance on their own chains so two legs can be
// filled in either order without blocking each other.
package resolver

// Condition gates a field's visibility on another field's value.
type Condition struct {
	FieldID string `json:"field_id"`
	Equals  string `json:"equals"`
}

// Derivation declares a field whose value is computed from another field
// through a lookup table. Derived fields are never manually edited.
type Derivation struct {
	FieldID string            `json:"field_id"`
	Map     map[string]string `json:"map"`
}

// Field is one declared form field.
type Field struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required,omitempty"`

	// Group names a parallel leg group. Grouped fields advance on a
	// per-group chain instead of the main one.
	Group string `json:"group,omitempty"`

	ShowWhen    *Condition  `json:"show_when,omitempty"`
	DerivedFrom *Derivation `json:"derived_from,omitempty"`

	// ClearOnChange lists downstream fields whose values are reset when
	// this field changes, to avoid stale configurations.
	ClearOnChange []string `json:"clear_on_change,omitempty"`
}

// Resolution is the resolver's output: the visibility map and the overall
// readiness of the form.
type Resolution struct {
	Visible map[string]bool `json:"visible"`
	Ready   bool            `json:"ready"`
}

// Resolve computes the visibility map and readiness for the given schema,
// current values, and set of excluded field ids. Excluded fields (used by
// the limit-search workflow to blank out the field being solved for) stay
// visible but never block a chain regardless of required-ness.
//
// Resolve is a pure function: same inputs, same output. Fields are
// processed strictly in declaration order, so there is no hidden
// nondeterminism from map iteration.
func Resolve(schema []Field, values map[string]string, excluded map[string]bool) Resolution {
	visible := make(map[string]bool, len(schema))
	ids := make(map[string]bool, len(schema))
	for _, f := range schema {
		ids[f.ID] = true
	}

	canShowNext := true
	groupChains := make(map[string]bool)
	groupOrder := make([]string, 0, 2)
	groupsSeen := false

	allGroupsComplete := func() bool {
		for _, g := range groupOrder {
			if !groupChains[g] {
				return false
			}
		}
		return true
	}

	for _, f := range schema {
		// Conditional visibility: an unsatisfied (or malformed) ShowWhen
		// hides the field without consuming or blocking any chain. A
		// ShowWhen referencing an unknown field id degrades to
		// always-hidden so the form stays usable.
		if f.ShowWhen != nil {
			if !ids[f.ShowWhen.FieldID] || values[f.ShowWhen.FieldID] != f.ShowWhen.Equals {
				visible[f.ID] = false
				continue
			}
		}

		blocking := f.Required && !f.IsDerived() && !excluded[f.ID] && values[f.ID] == ""

		if f.Group != "" {
			// Per-group chain, seeded from the main chain's value at the
			// point the group's first field was encountered.
			chain, ok := groupChains[f.Group]
			if !ok {
				chain = canShowNext
				groupChains[f.Group] = chain
				groupOrder = append(groupOrder, f.Group)
				groupsSeen = true
			}
			if !chain {
				visible[f.ID] = false
				continue
			}
			visible[f.ID] = true
			if blocking {
				groupChains[f.Group] = false
			}
			continue
		}

		// Ungrouped fields declared after groups wait for every group's
		// chain to reach completion before the main chain resumes.
		show := canShowNext
		if groupsSeen {
			show = show && allGroupsComplete()
		}
		if !show {
			visible[f.ID] = false
			continue
		}
		visible[f.ID] = true
		if blocking {
			canShowNext = false
		}
	}

	// Ready: every visible, required, non-derived, non-excluded field has a
	// value, and no group chain is still blocked.
	ready := allGroupsComplete()
	for _, f := range schema {
		if !visible[f.ID] || !f.Required || f.IsDerived() || excluded[f.ID] {
			continue
		}
		if values[f.ID] == "" {
			ready = false
			break
		}
	}

	return Resolution{Visible: visible, Ready: ready}
}

// IsDerived reports whether the field's value is computed, not entered.
func (f Field) IsDerived() bool {
	return f.DerivedFrom != nil
}

// ApplyDerived recomputes every derived field from its source value and
// returns an updated copy of values. A source value absent from the lookup
// table clears the derived field.
func ApplyDerived(schema []Field, values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, f := range schema {
		if f.DerivedFrom == nil {
			continue
		}
		src := out[f.DerivedFrom.FieldID]
		if mapped, ok := f.DerivedFrom.Map[src]; ok {
			out[f.ID] = mapped
		} else {
			delete(out, f.ID)
		}
	}
	return out
}

// CascadeClear returns a copy of values with the transitive downstream
// dependents of changedID cleared. Changing an upstream field must reset
// its dependents so the form never holds a stale, inconsistent combination
// (a family change clears amortization and variant; a side change clears
// family, amortization, and variant).
func CascadeClear(schema []Field, values map[string]string, changedID string) map[string]string {
	byID := make(map[string]Field, len(schema))
	for _, f := range schema {
		byID[f.ID] = f
	}

	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}

	queue := append([]string(nil), byID[changedID].ClearOnChange...)
	cleared := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if cleared[id] {
			continue
		}
		cleared[id] = true
		delete(out, id)
		queue = append(queue, byID[id].ClearOnChange...)
	}
	return out
}
