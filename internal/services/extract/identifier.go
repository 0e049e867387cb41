package extract

import (
	"regexp"
	"strings"
)

// Rule is one identifier pattern. The first capture group is the identifier.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// RuleSet is an ordered list of rules; the first rule that matches wins.
// Prepare runs on the raw text before matching, Finish on the captured value,
// and Fallback supplies the identifier when no rule matches (empty if nil).
type RuleSet struct {
	Name     string
	Prepare  func(string) string
	Rules    []Rule
	Finish   func(string) string
	Fallback func(string) string
}

// Extract applies the rule set to text.
func (rs RuleSet) Extract(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if rs.Prepare != nil {
		text = rs.Prepare(text)
	}
	for _, r := range rs.Rules {
		m := r.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		id := m[0]
		if len(m) > 1 {
			id = m[1]
		}
		if rs.Finish != nil {
			id = rs.Finish(id)
		}
		return id
	}
	if rs.Fallback != nil {
		return rs.Fallback(text)
	}
	return ""
}

var (
	leadingSequence = regexp.MustCompile(`^\d+\s*-\s*`)
	sixDigits       = regexp.MustCompile(`\d{6,}`)
)

// FinancialIdentifier extracts the title number from the financial report's
// PREFIXO/TITULO text ("5 - FT-00123456-A"). When nothing matches, the cleaned
// text itself is the identifier.
var FinancialIdentifier = RuleSet{
	Name: "financial",
	Prepare: func(s string) string {
		return leadingSequence.ReplaceAllString(StripPrefix(s), "")
	},
	Rules: []Rule{
		{Name: "digits6", Pattern: regexp.MustCompile(`(\d{6,})`)},
		{Name: "letters-digits", Pattern: regexp.MustCompile(`([A-Z]{2,}\d{4,})`)},
	},
	Fallback: func(s string) string { return s },
}

// AccountingIdentifier extracts the document reference from an accounting
// HISTORICO line.
var AccountingIdentifier = RuleSet{
	Name: "accounting",
	Rules: []Rule{
		{Name: "sequence5", Pattern: regexp.MustCompile(`5\s*-?\s*(\d{6,})`)},
		{Name: "digits9", Pattern: regexp.MustCompile(`(\d{9,})`)},
		{Name: "letters-digits", Pattern: regexp.MustCompile(`([A-Z]{2,}\d{4,})`)},
		{Name: "alnum6", Pattern: regexp.MustCompile(`([A-Z0-9]{6,})`)},
	},
	Finish: func(id string) string {
		id = nonAlnum.ReplaceAllString(id, "")
		// "00123456A" carries an installment letter after the number
		if sixDigits.MatchString(id) && id != "" {
			last := id[len(id)-1]
			if last >= 'A' && last <= 'Z' {
				id = id[:len(id)-1]
			}
		}
		return id
	},
}

// InvoiceNumber finds the NF number in a journal description such as
// "NFS: 000002902" or "NF REC ISS:000002902 CAERN".
var InvoiceNumber = RuleSet{
	Name: "invoice",
	Rules: []Rule{
		{Name: "nf", Pattern: regexp.MustCompile(`(?i)NF[SE:]?[\s:]+(\d+)`)},
		{Name: "iss", Pattern: regexp.MustCompile(`(?i)ISS[:\s]+(\d+)`)},
		{Name: "digits9", Pattern: regexp.MustCompile(`(\d{9})`)},
		{Name: "digits6", Pattern: regexp.MustCompile(`(\d{6,})`)},
	},
}

// ReceiptNumber finds the receipt number in a journal description such as
// "REF.RECEBIM.CR: 3  000002900" or "REF.RECEBIM.CR: ND1000670".
var ReceiptNumber = RuleSet{
	Name: "receipt",
	Rules: []Rule{
		{Name: "recebim", Pattern: regexp.MustCompile(`(?i)RECEBIM.*?[:\s]+(?:ND)?(\d{6,})`)},
		{Name: "nd", Pattern: regexp.MustCompile(`(?i)ND(\d{6,})`)},
		{Name: "digits7", Pattern: regexp.MustCompile(`(\d{7,})`)},
		{Name: "digits6", Pattern: regexp.MustCompile(`(\d{6,})`)},
	},
}
