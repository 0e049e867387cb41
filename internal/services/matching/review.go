package matching

import (
	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/services/extract"
)

// Review looks for probable counterparts of the divergent financial records
// by type, a looser amount tolerance and a one-day window, ignoring text.
// Every accounting record is scanned, including the ones already used by
// Match, so a suggestion may repeat a matched pair. Nothing is mutated.
func (e *Engine) Review(results []Result, fin, acc *ledger.Ledger) []Result {
	if !UseDates(fin, acc) {
		return nil
	}
	tol := e.cfg.EffectiveReviewTolerance()

	var out []Result
	for _, r := range results {
		if r.Status != StatusDivergent || r.Financial == nil || !r.Financial.HasDate() {
			continue
		}
		f := r.Financial
		want := f.Type.Counterpart()

		for i := range acc.Records {
			a := &acc.Records[i]
			if a.Type != want || !a.HasDate() {
				continue
			}
			if !WithinTolerance(f.Amount, a.Amount, tol) {
				continue
			}
			if extract.DaysBetween(f.Date, a.Date) > maxDayGap {
				continue
			}
			out = append(out, Result{
				Status:     StatusReview,
				Financial:  f,
				Accounting: a,
				Difference: f.Amount.Sub(a.Amount).Abs(),
				Note:       NoteReview,
			})
		}
	}

	e.log.Info().Int("suggestions", len(out)).Msg("review pass finished")
	return out
}

// ReviewSheet is the content of the review tab: every non-matched result
// followed by the review suggestions.
func ReviewSheet(results, review []Result) []Result {
	out := make([]Result, 0, len(results)+len(review))
	for _, r := range results {
		if r.Status != StatusMatched {
			out = append(out, r)
		}
	}
	return append(out, review...)
}

// Counts tallies the results by status.
func Counts(results []Result) map[Status]int {
	out := make(map[Status]int, 3)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
