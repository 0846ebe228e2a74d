package feeds

import (
	"strings"

	"github.com/web3guy0/gemcaller/types"
)

// Deduped is the per-cycle candidate set keyed by identity
type Deduped struct {
	// Ordered holds one candidate per identity in first-seen order
	Ordered    []types.Candidate
	ByIdentity map[string]types.Candidate
	Dropped    int // records without a usable identity
}

// Dedupe merges candidates from all adapters by identity.
// Higher H1 momentum wins; when neither record has it, or both are equal, the
// last record seen wins. The winner keeps the first-seen position.
func Dedupe(in []types.Candidate) Deduped {
	out := Deduped{ByIdentity: make(map[string]types.Candidate, len(in))}
	var order []string

	for _, c := range in {
		id := strings.ToLower(strings.TrimSpace(c.Identity))
		if id == "" {
			out.Dropped++
			continue
		}
		c.Identity = id

		existing, seen := out.ByIdentity[id]
		if !seen {
			order = append(order, id)
			out.ByIdentity[id] = c
			continue
		}
		if prefer(c, existing) {
			out.ByIdentity[id] = c
		}
	}

	out.Ordered = make([]types.Candidate, 0, len(order))
	for _, id := range order {
		out.Ordered = append(out.Ordered, out.ByIdentity[id])
	}
	return out
}

// prefer reports whether next should replace prev
func prefer(next, prev types.Candidate) bool {
	a, b := next.PriceChange.H1, prev.PriceChange.H1
	switch {
	case a.Set && b.Set:
		return a.Pct >= b.Pct
	case a.Set:
		return true
	case b.Set:
		return false
	default:
		return true
	}
}
