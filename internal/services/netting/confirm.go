package netting

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
)

var digitRun = regexp.MustCompile(`\d+`)

// Confirmation tells whether an unpaired invoice shows up in the receivables.
type Confirmation struct {
	Invoice   *Bucket
	Found     bool
	Reference string
}

func (c Confirmation) Status() string {
	if c.Found {
		return "ENCONTRADO"
	}
	return "NAO ENCONTRADO"
}

// CrossCheck confronts unpaired invoices with the receivables report.
type CrossCheck struct {
	Found    []Confirmation
	NotFound []Confirmation
	// References counts the non-empty reference cells.
	References int
	SumOverdue decimal.Decimal
	SumCurrent decimal.Decimal
	// Balance is SumOverdue + SumCurrent.
	Balance   decimal.Decimal
	Unmatched int
}

// All lists found confirmations before the missing ones.
func (c CrossCheck) All() []Confirmation {
	out := make([]Confirmation, 0, len(c.Found)+len(c.NotFound))
	out = append(out, c.Found...)
	return append(out, c.NotFound...)
}

// Confirm looks every unpaired invoice up in the receivables references: an
// exact hit on a reference or on a number inside one, otherwise a reference
// containing the invoice number with or without its leading zeros.
func Confirm(unmatched []*Bucket, rows []ledger.Receivable) CrossCheck {
	out := CrossCheck{
		SumOverdue: decimal.Zero,
		SumCurrent: decimal.Zero,
		Unmatched:  len(unmatched),
	}

	var refs []string
	known := make(map[string]bool)
	for _, r := range rows {
		out.SumOverdue = out.SumOverdue.Add(r.Overdue)
		out.SumCurrent = out.SumCurrent.Add(r.Current)

		ref := strings.TrimSpace(r.Reference)
		if ref == "" {
			continue
		}
		refs = append(refs, ref)
		for _, n := range digitRun.FindAllString(ref, -1) {
			known[n] = true
		}
		known[strings.ToUpper(ref)] = true
	}
	out.References = len(refs)
	out.Balance = out.SumOverdue.Add(out.SumCurrent)

	for _, inv := range unmatched {
		c := lookup(inv, refs, known)
		if c.Found {
			out.Found = append(out.Found, c)
		} else {
			out.NotFound = append(out.NotFound, c)
		}
	}
	return out
}

func lookup(inv *Bucket, refs []string, known map[string]bool) Confirmation {
	id := inv.Identifier
	if known[id] {
		return Confirmation{Invoice: inv, Found: true, Reference: id}
	}
	stripped := strings.TrimLeft(id, "0")
	for _, ref := range refs {
		if strings.Contains(ref, id) || (stripped != "" && strings.Contains(ref, stripped)) {
			return Confirmation{Invoice: inv, Found: true, Reference: ref}
		}
	}
	return Confirmation{Invoice: inv}
}
