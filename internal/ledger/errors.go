package ledger

import (
	"fmt"
	"strings"
)

// SchemaKind tells whether a sheet or a column was missing.
type SchemaKind string

const (
	KindSheet  SchemaKind = "sheet"
	KindColumn SchemaKind = "column"
)

// SchemaNotFoundError aborts a run when an expected sheet or column is
// missing. The message lists what was expected and what the file contains.
type SchemaNotFoundError struct {
	Ledger   string
	Kind     SchemaKind
	Expected []string
	Found    []string
	Missing  string
}

func (e *SchemaNotFoundError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindColumn:
		fmt.Fprintf(&b, "[%s] column %q not found", e.Ledger, e.Missing)
		fmt.Fprintf(&b, "; expected columns: %s", strings.Join(e.Expected, ", "))
		fmt.Fprintf(&b, "; columns found: %s", strings.Join(e.Found, ", "))
	default:
		fmt.Fprintf(&b, "[%s] no matching sheet", e.Ledger)
		fmt.Fprintf(&b, "; looking for sheets like: %s", strings.Join(e.Expected, ", "))
		fmt.Fprintf(&b, "; sheets found: %s", strings.Join(e.Found, ", "))
	}
	return b.String()
}
