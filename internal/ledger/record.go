package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which report a record came from.
type Side string

const (
	SideFinancial  Side = "financial"
	SideAccounting Side = "accounting"
)

// TransactionType is inflow/outflow on the financial side and debit/credit on
// the accounting side.
type TransactionType string

const (
	Inflow  TransactionType = "ENTRADA"
	Outflow TransactionType = "SAIDA"
	Debit   TransactionType = "DEBITO"
	Credit  TransactionType = "CREDITO"
)

// Counterpart returns the accounting type expected to mirror a financial one:
// money coming in is debited to the bank account, money going out is credited.
func (t TransactionType) Counterpart() TransactionType {
	switch t {
	case Inflow:
		return Debit
	case Outflow:
		return Credit
	case Debit:
		return Inflow
	case Credit:
		return Outflow
	}
	return ""
}

// Record is one normalized ledger line.
type Record struct {
	Side           Side
	RawText        string
	NormalizedText string
	NumericToken   string
	Identifier     string
	Amount         decimal.Decimal
	Type           TransactionType
	Date           time.Time
	SourceRow      int
}

// HasDate reports whether the row carried a parseable date.
func (r *Record) HasDate() bool {
	return !r.Date.IsZero()
}

// Ledger is the record sequence of one side plus the column sums used by the
// balance table.
type Ledger struct {
	Name     string
	Side     Side
	Records  []Record
	HasDates bool

	// SumJ and SumK are the totals of the two amount columns over kept rows
	// (ENTRADAS/SAIDAS or DEBITO/CREDITO).
	SumJ decimal.Decimal
	SumK decimal.Decimal

	Dropped      int
	SoftFailures int
}
