package matching

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
)

// Status is the outcome of one reconciliation row.
type Status string

const (
	StatusMatched   Status = "MATCHED"
	StatusDivergent Status = "DIVERGENT"
	StatusReview    Status = "REVIEW"
)

// Label is the status as printed in the report.
func (s Status) Label() string {
	switch s {
	case StatusMatched:
		return "OK"
	case StatusDivergent:
		return "DIVERGENTE"
	case StatusReview:
		return "REVISAR"
	}
	return string(s)
}

const (
	NoteMatched          = "Conciliado automaticamente"
	NoteUnmatched        = "Nao conciliado"
	NoteInsufficientText = "Texto insuficiente para conciliacao"
	NoteNoFinancial      = "Sem correspondencia no Financeiro"
	NoteReview           = "Data e valor proximos"
)

// Config holds the matching parameters.
type Config struct {
	Tolerance decimal.Decimal
	MinLength int
	// ReviewTolerance defaults to max(Tolerance, 0.02) when zero.
	ReviewTolerance decimal.Decimal
}

var defaultReviewTolerance = decimal.New(2, -2)

// DefaultConfig returns tolerance 0.01 and minimum length 3.
func DefaultConfig() Config {
	return Config{
		Tolerance: decimal.New(1, -2),
		MinLength: 3,
	}
}

// EffectiveReviewTolerance resolves the review pass tolerance.
func (c Config) EffectiveReviewTolerance() decimal.Decimal {
	if c.ReviewTolerance.IsPositive() {
		return c.ReviewTolerance
	}
	return decimal.Max(c.Tolerance, defaultReviewTolerance)
}

// Result is one reconciliation row. A nil side means the row only carries the
// other ledger's record.
type Result struct {
	Status     Status
	Financial  *ledger.Record
	Accounting *ledger.Record
	Difference decimal.Decimal
	Note       string
	Score      float64
}

// Engine runs the greedy matcher and the review pass.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	if cfg.MinLength < 0 {
		cfg.MinLength = 0
	}
	return &Engine{cfg: cfg, log: log}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// UseDates reports whether date awareness applies to the pair of ledgers.
func UseDates(fin, acc *ledger.Ledger) bool {
	return fin.HasDates && acc.HasDates
}

// Match pairs every financial record, in source order, with the best scoring
// unused accounting candidate. The first candidate wins on equal scores.
// Every record of both ledgers appears in exactly one returned result:
// financial records first, in order, then the accounting leftovers in order.
func (e *Engine) Match(fin, acc *ledger.Ledger) []Result {
	useDates := UseDates(fin, acc)
	index := NewCandidateIndex(acc.Records)
	used := make([]bool, len(acc.Records))
	results := make([]Result, 0, len(fin.Records)+len(acc.Records))

	var matched, skipped int
	for i := range fin.Records {
		f := &fin.Records[i]

		if len(f.NormalizedText) < e.cfg.MinLength && len(f.Identifier) < e.cfg.MinLength {
			skipped++
			results = append(results, Result{
				Status:     StatusDivergent,
				Financial:  f,
				Difference: f.Amount,
				Note:       NoteInsufficientText,
			})
			continue
		}

		best, bestScore := -1, -1.0
		for _, c := range index.Candidates(f.Amount, f.Type, e.cfg.Tolerance) {
			if used[c] {
				continue
			}
			a := &acc.Records[c]
			if !Eligible(f, a, e.cfg.Tolerance, useDates) {
				continue
			}
			if sc := Score(f, a, useDates); sc > bestScore {
				best, bestScore = c, sc
			}
		}

		if best < 0 {
			results = append(results, Result{
				Status:     StatusDivergent,
				Financial:  f,
				Difference: f.Amount,
				Note:       NoteUnmatched,
			})
			continue
		}

		used[best] = true
		matched++
		a := &acc.Records[best]
		results = append(results, Result{
			Status:     StatusMatched,
			Financial:  f,
			Accounting: a,
			Difference: f.Amount.Sub(a.Amount).Abs(),
			Note:       NoteMatched,
			Score:      bestScore,
		})
		e.log.Debug().
			Int("financial_row", f.SourceRow).
			Int("accounting_row", a.SourceRow).
			Float64("score", bestScore).
			Msg("records matched")
	}

	var leftovers int
	for i := range acc.Records {
		if used[i] {
			continue
		}
		leftovers++
		a := &acc.Records[i]
		results = append(results, Result{
			Status:     StatusDivergent,
			Accounting: a,
			Difference: a.Amount,
			Note:       NoteNoFinancial,
		})
	}

	e.log.Info().
		Int("financial", len(fin.Records)).
		Int("accounting", len(acc.Records)).
		Int("matched", matched).
		Int("skipped", skipped).
		Int("accounting_leftovers", leftovers).
		Bool("dated", useDates).
		Msg("matching finished")
	return results
}
