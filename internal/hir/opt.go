package hir

// eliminateTrivialPhis replaces every phi whose inputs are all one
// distinct value (ignoring self-references) with that value, rewriting
// all users, and iterates to a fixpoint: removing one phi can make
// another trivial.
func (b *Builder) eliminateTrivialPhis() {
	for {
		replacements := make(map[ValueID]Value)
		for _, blk := range b.frame.Blocks {
			kept := blk.Phis[:0]
			for _, phi := range blk.Phis {
				if tv := phi.TrivialValue(); tv.Valid() {
					replacements[phi.value.Number] = tv
				} else {
					kept = append(kept, phi)
				}
			}
			blk.Phis = kept
		}
		if len(replacements) == 0 {
			return
		}

		// Collapse replacement chains so users rewrite directly to the
		// surviving value. Chains are acyclic except for degenerate
		// mutual phis, which the step guard breaks.
		for from, to := range replacements {
			steps := 0
			for {
				next, ok := replacements[to.Number]
				if !ok || next.Number == from || steps > len(replacements) {
					break
				}
				to = next
				steps++
			}
			replacements[from] = to
		}

		for _, blk := range b.frame.Blocks {
			for _, phi := range blk.Phis {
				changed := false
				for i, in := range phi.Inputs {
					if rep, ok := replacements[in.Number]; ok {
						phi.Inputs[i] = rep
						changed = true
					}
				}
				if changed {
					phi.rebuildReads()
				}
			}
			for _, h := range blk.Statements {
				replaceUses(h, replacements)
			}
		}
	}
}

func replaceOne(v *Value, replacements map[ValueID]Value) {
	if rep, ok := replacements[v.Number]; ok {
		*v = rep
	}
}

// replaceUses rewrites every value reference in h per replacements,
// keeping the reads slice in sync with the named operand fields.
func replaceUses(h HIR, replacements map[ValueID]Value) {
	switch op := h.(type) {
	case *BinaryOp:
		replaceOne(&op.Left, replacements)
		replaceOne(&op.Right, replacements)
	case *StoreReturn:
		replaceOne(&op.ReturnValue, replacements)
		replaceOne(&op.ReturnType, replacements)
	case *ResolveType:
		replaceOne(&op.TypeOfValue, replacements)
	case *StoreInstanceVariable:
		replaceOne(&op.ToStore, replacements)
		replaceOne(&op.StoreType, replacements)
	case *StoreClassVariable:
		replaceOne(&op.ToStore, replacements)
		replaceOne(&op.StoreType, replacements)
	case *BranchIfZero:
		replaceOne(&op.Condition, replacements)
	case *DispatchSetupStack:
		replaceOne(&op.SelectorValue, replacements)
		replaceOne(&op.SelectorType, replacements)
	case *DispatchStoreArg:
		replaceOne(&op.ArgumentValue, replacements)
		replaceOne(&op.ArgumentType, replacements)
	case *DispatchStoreKeyArg:
		replaceOne(&op.Keyword, replacements)
		replaceOne(&op.KeywordType, replacements)
		replaceOne(&op.KeywordValue, replacements)
		replaceOne(&op.KeywordValueType, replacements)
	case *Phi:
		changed := false
		for i := range op.Inputs {
			if rep, ok := replacements[op.Inputs[i].Number]; ok {
				op.Inputs[i] = rep
				changed = true
			}
		}
		if changed {
			op.rebuildReads()
		}
		return
	default:
		return
	}

	reads := h.Reads()
	for i := range reads {
		replaceOne(&reads[i], replacements)
	}
}
