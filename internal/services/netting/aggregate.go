package netting

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/services/extract"
)

// Kind tells invoice buckets from receipt buckets.
type Kind string

const (
	KindInvoice Kind = "invoice"
	KindReceipt Kind = "receipt"
)

// Bucket nets every journal line that carries the same document number.
type Bucket struct {
	Identifier  string
	Kind        Kind
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	// Net is debit-credit for invoices and credit-debit for receipts.
	Net       decimal.Decimal
	LineCount int
	Rows      []int
}

func (b *Bucket) add(line ledger.JournalLine) {
	b.TotalDebit = b.TotalDebit.Add(line.Debit)
	b.TotalCredit = b.TotalCredit.Add(line.Credit)
	if b.Kind == KindInvoice {
		b.Net = b.TotalDebit.Sub(b.TotalCredit)
	} else {
		b.Net = b.TotalCredit.Sub(b.TotalDebit)
	}
	b.LineCount++
	b.Rows = append(b.Rows, line.Row)
}

// BucketSet keeps buckets in the order their identifiers were first seen.
type BucketSet struct {
	kind  Kind
	order []*Bucket
	byID  map[string]*Bucket
}

func NewBucketSet(kind Kind) *BucketSet {
	return &BucketSet{kind: kind, byID: make(map[string]*Bucket)}
}

// Add routes a line into the bucket of id, creating it on first sight.
func (s *BucketSet) Add(id string, line ledger.JournalLine) *Bucket {
	b, ok := s.Get(id)
	if !ok {
		b = &Bucket{
			Identifier:  id,
			Kind:        s.kind,
			TotalDebit:  decimal.Zero,
			TotalCredit: decimal.Zero,
			Net:         decimal.Zero,
		}
		s.byID[id] = b
		s.order = append(s.order, b)
	}
	b.add(line)
	return b
}

func (s *BucketSet) Get(id string) (*Bucket, bool) {
	b, ok := s.byID[id]
	return b, ok
}

func (s *BucketSet) Kind() Kind {
	return s.kind
}

func (s *BucketSet) Len() int {
	return len(s.order)
}

// Buckets returns the buckets in first-seen order.
func (s *BucketSet) Buckets() []*Bucket {
	return s.order
}

// Sorted returns the buckets ordered by identifier, as listed in reports.
func (s *BucketSet) Sorted() []*Bucket {
	out := make([]*Bucket, len(s.order))
	copy(out, s.order)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// TotalNet sums the net value of every bucket.
func (s *BucketSet) TotalNet() decimal.Decimal {
	total := decimal.Zero
	for _, b := range s.order {
		total = total.Add(b.Net)
	}
	return total
}

// Window is an inclusive date range. A zero bound leaves that side open.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Bounded() bool {
	return !w.Start.IsZero() || !w.End.IsZero()
}

// Contains reports whether t falls in the window. Undated lines only belong
// to an unbounded window.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return !w.Bounded()
	}
	d := extract.DateOnly(t)
	if !w.Start.IsZero() && d.Before(extract.DateOnly(w.Start)) {
		return false
	}
	if !w.End.IsZero() && d.After(extract.DateOnly(w.End)) {
		return false
	}
	return true
}

// Config drives the routing of journal lines into buckets and the pairing.
type Config struct {
	Window         Window
	InvoiceLot     string
	ReceiptLot     string
	ReceiptKeyword string
	Tolerance      decimal.Decimal
	Strategy       Strategy
}

func DefaultConfig() Config {
	return Config{
		InvoiceLot:     "008820001",
		ReceiptLot:     "008850001",
		ReceiptKeyword: "RECEBIM",
		Tolerance:      decimal.New(1, -2),
		Strategy:       StrategyFirst,
	}
}

// Aggregation is the outcome of routing a journal into buckets.
type Aggregation struct {
	Invoices *BucketSet
	Receipts *BucketSet
	// Lines are the journal lines inside the window, in sheet order.
	Lines        []ledger.JournalLine
	Unidentified int
}

// IsInvoiceLine reports whether the line belongs to the invoice lot.
func (c Config) IsInvoiceLine(line ledger.JournalLine) bool {
	return line.Description != "" && c.InvoiceLot != "" && strings.HasPrefix(line.Lot, c.InvoiceLot)
}

// IsReceiptLine reports whether the line is a receipt, by lot or keyword.
func (c Config) IsReceiptLine(line ledger.JournalLine) bool {
	if c.ReceiptLot != "" && strings.HasPrefix(line.Lot, c.ReceiptLot) {
		return true
	}
	return c.ReceiptKeyword != "" &&
		strings.Contains(strings.ToUpper(line.Description), strings.ToUpper(c.ReceiptKeyword))
}

// Aggregate filters the journal to the window and nets invoice and receipt
// lines by document number. A line may feed both bucket sets.
func Aggregate(ctx context.Context, lines []ledger.JournalLine, cfg Config) *Aggregation {
	log := logger.FromContext(ctx)
	out := &Aggregation{
		Invoices: NewBucketSet(KindInvoice),
		Receipts: NewBucketSet(KindReceipt),
	}

	for _, line := range lines {
		if !cfg.Window.Contains(line.Date) {
			continue
		}
		out.Lines = append(out.Lines, line)

		if cfg.IsInvoiceLine(line) {
			if id := extract.InvoiceNumber.Extract(line.Description); id != "" {
				out.Invoices.Add(id, line)
			} else {
				out.Unidentified++
				log.Debug().Int("row", line.Row).Str("description", line.Description).
					Msg("invoice line without document number")
			}
		}
		if cfg.IsReceiptLine(line) {
			if id := extract.ReceiptNumber.Extract(line.Description); id != "" {
				out.Receipts.Add(id, line)
			} else {
				out.Unidentified++
				log.Debug().Int("row", line.Row).Str("description", line.Description).
					Msg("receipt line without document number")
			}
		}
	}

	log.Info().
		Int("lines", len(out.Lines)).
		Int("invoices", out.Invoices.Len()).
		Int("receipts", out.Receipts.Len()).
		Int("unidentified", out.Unidentified).
		Msg("journal aggregated")
	return out
}
