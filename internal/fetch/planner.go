package fetch

import (
	"github.com/jmllr/alertchain/internal/models"
)

// RowRef addresses one operand side of one condition row of one evaluation
// unit, so evaluation can look up the fetch result that backs it.
type RowRef struct {
	ProfileID string
	GID       string
	Symbol    string
	RID       string
	Side      string
}

// Plan is the deduplicated request set of one run, plus the mapping from
// every operand side back to its request key.
type Plan struct {
	Keys   []RequestKey
	ByRow  map[RowRef]RequestKey
	counts map[RequestKey]int
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{
		ByRow:  make(map[RowRef]RequestKey),
		counts: make(map[RequestKey]int),
	}
}

// Add registers one operand side. The first reference of a key appends it to
// the unique request list; later references only record the mapping.
func (p *Plan) Add(ref RowRef, key RequestKey) {
	if p.counts[key] == 0 {
		p.Keys = append(p.Keys, key)
	}
	p.counts[key]++
	p.ByRow[ref] = key
}

// Refs returns how many operand sides reference the given key.
func (p *Plan) Refs(key RequestKey) int {
	return p.counts[key]
}

// AddRow registers both sides of a resolved condition row.
func (p *Plan) AddRow(profileID, gid, symbol string, cond *models.Condition, pair models.ResolvedPair) {
	p.Add(RowRef{ProfileID: profileID, GID: gid, Symbol: symbol, RID: cond.RID, Side: models.SideLeft},
		NewRequestKey(cond.Left, pair.Left))
	p.Add(RowRef{ProfileID: profileID, GID: gid, Symbol: symbol, RID: cond.RID, Side: models.SideRight},
		NewRequestKey(cond.Right, pair.Right))
}
