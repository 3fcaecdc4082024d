package store

// recycle folds next into prev, returning prev's subtrees wherever they are
// structurally equal to next's. The second result reports whether the whole
// tree is unchanged, in which case the first result is prev itself. Because
// unchanged subtrees keep their identity, later snapshots can be compared
// by reference.
func recycle(prev, next any) (any, bool) {
	if prev == nil || next == nil {
		return next, prev == nil && next == nil
	}
	switch nextVal := next.(type) {
	case map[string]any:
		prevVal, ok := prev.(map[string]any)
		if !ok {
			return next, false
		}
		same := len(prevVal) == len(nextVal)
		for k, nv := range nextVal {
			pv, ok := prevVal[k]
			if !ok {
				same = false
				continue
			}
			merged, eq := recycle(pv, nv)
			nextVal[k] = merged
			if !eq {
				same = false
			}
		}
		if same {
			return prevVal, true
		}
		return nextVal, false
	case []any:
		prevVal, ok := prev.([]any)
		if !ok {
			return next, false
		}
		same := len(prevVal) == len(nextVal)
		for i, nv := range nextVal {
			if i >= len(prevVal) {
				break
			}
			merged, eq := recycle(prevVal[i], nv)
			nextVal[i] = merged
			if !eq {
				same = false
			}
		}
		if same {
			return prevVal, true
		}
		return nextVal, false
	default:
		if prev == next {
			return prev, true
		}
		return next, false
	}
}
