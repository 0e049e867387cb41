package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// documentPrefixes are document-type codes that precede titles in the
// financial report. Order matters: the dashed forms must win over the bare ones.
var documentPrefixes = []string{
	"MED-", "FT-", "DP-", "BOL-", "NF-", "RC-", "FOL-",
	"MED", "FT", "DP", "BOL", "NF", "RC", "FOL",
}

var (
	letterSuffix  = regexp.MustCompile(`-[A-Z]$`)
	numericSuffix = regexp.MustCompile(`-\d{1,2}$`)
	nonAlnum      = regexp.MustCompile(`[^A-Z0-9]`)
	nonDigit      = regexp.MustCompile(`[^0-9]`)
)

// StripPrefix removes the first known document prefix and any installment
// suffix such as "-A" or "-01".
func StripPrefix(text string) string {
	txt := strings.TrimSpace(text)
	if txt == "" {
		return ""
	}

	for _, p := range documentPrefixes {
		if len(txt) >= len(p) && strings.EqualFold(txt[:len(p)], p) {
			txt = txt[len(p):]
			break
		}
	}

	txt = letterSuffix.ReplaceAllString(txt, "")
	txt = numericSuffix.ReplaceAllString(txt, "")
	return txt
}

// Normalize produces the comparison key of a description: prefix and suffix
// stripped, uppercased, accents folded and everything but A-Z0-9 removed.
//
// Stripping a prefix can expose another one ("FTFT12"), so the transformation
// is repeated until the key stops changing.
func Normalize(text string) string {
	key := normalizeOnce(text)
	for {
		next := normalizeOnce(key)
		if next == key {
			return key
		}
		key = next
	}
}

func normalizeOnce(text string) string {
	s := Fold(StripPrefix(text))
	return nonAlnum.ReplaceAllString(s, "")
}

// Digits returns the digit-only token of a description, after prefix removal.
func Digits(text string) string {
	return nonDigit.ReplaceAllString(StripPrefix(text), "")
}

// Fold uppercases s and removes diacritics, so "Lançamentos Contábeis" and
// "LANCAMENTOS CONTABEIS" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.TrimSpace(out))
}
