package matching

import (
	"slices"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/services/extract"
)

type bucketKey struct {
	cents int64
	typ   ledger.TransactionType
}

// CandidateIndex buckets the accounting records by amount in cents and type
// so that a financial record only looks at records it could possibly match.
type CandidateIndex struct {
	buckets map[bucketKey][]int
}

var oneCent = decimal.New(1, -2)

// NewCandidateIndex indexes records by position; bucket lists keep source order.
func NewCandidateIndex(records []ledger.Record) *CandidateIndex {
	ix := &CandidateIndex{buckets: make(map[bucketKey][]int)}
	for i := range records {
		k := bucketKey{cents: extract.Cents(records[i].Amount), typ: records[i].Type}
		ix.buckets[k] = append(ix.buckets[k], i)
	}
	return ix
}

// Candidates returns the positions of the records sharing the counterpart type
// of finType at the same rounded amount. With tol of at least one cent the
// neighbouring ±1 and ±2 cent buckets are checked too. The result is in source
// order.
func (ix *CandidateIndex) Candidates(amount decimal.Decimal, finType ledger.TransactionType, tol decimal.Decimal) []int {
	typ := finType.Counterpart()
	base := extract.Cents(amount)

	offsets := []int64{0}
	if tol.GreaterThanOrEqual(oneCent) {
		offsets = append(offsets, -1, 1, -2, 2)
	}

	var out []int
	for _, off := range offsets {
		out = append(out, ix.buckets[bucketKey{cents: base + off, typ: typ}]...)
	}
	slices.Sort(out)
	return out
}
