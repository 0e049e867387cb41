package netting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Strategy selects which receipt an invoice is paired with.
type Strategy string

const (
	// StrategyFirst takes the first unconsumed receipt within tolerance.
	StrategyFirst Strategy = "first"
	// StrategyClosest takes the unconsumed receipt with the smallest
	// difference, the first one on ties.
	StrategyClosest Strategy = "closest"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyFirst:
		return StrategyFirst, nil
	case StrategyClosest:
		return StrategyClosest, nil
	}
	return "", fmt.Errorf("unknown pairing strategy %q", s)
}

// Pair is an invoice settled by a receipt of the same net value.
type Pair struct {
	Invoice    *Bucket
	Receipt    *Bucket
	Difference decimal.Decimal
}

// Pairing is the outcome of PairBuckets. Leftovers keep bucket order.
type Pairing struct {
	Pairs             []Pair
	UnmatchedInvoices []*Bucket
	UnmatchedReceipts []*Bucket

	pairedInvoices map[string]bool
	pairedReceipts map[string]bool
}

func (p Pairing) InvoicePaired(id string) bool {
	return p.pairedInvoices[id]
}

func (p Pairing) ReceiptPaired(id string) bool {
	return p.pairedReceipts[id]
}

// PairBuckets pairs every invoice, in bucket order, with a receipt whose net
// value differs by strictly less than tol. Both sides are consumed once
// paired.
func PairBuckets(invoices, receipts *BucketSet, tol decimal.Decimal, strategy Strategy) Pairing {
	p := Pairing{
		pairedInvoices: make(map[string]bool),
		pairedReceipts: make(map[string]bool),
	}
	recs := receipts.Buckets()
	consumed := make([]bool, len(recs))

	for _, inv := range invoices.Buckets() {
		pick := -1
		var best decimal.Decimal
		for i, rec := range recs {
			if consumed[i] {
				continue
			}
			diff := inv.Net.Sub(rec.Net).Abs()
			if !diff.LessThan(tol) {
				continue
			}
			if strategy != StrategyClosest {
				pick = i
				break
			}
			if pick < 0 || diff.LessThan(best) {
				pick, best = i, diff
			}
		}

		if pick < 0 {
			p.UnmatchedInvoices = append(p.UnmatchedInvoices, inv)
			continue
		}
		consumed[pick] = true
		rec := recs[pick]
		p.Pairs = append(p.Pairs, Pair{
			Invoice:    inv,
			Receipt:    rec,
			Difference: inv.Net.Sub(rec.Net),
		})
		p.pairedInvoices[inv.Identifier] = true
		p.pairedReceipts[rec.Identifier] = true
	}

	for i, rec := range recs {
		if !consumed[i] {
			p.UnmatchedReceipts = append(p.UnmatchedReceipts, rec)
		}
	}
	return p
}
