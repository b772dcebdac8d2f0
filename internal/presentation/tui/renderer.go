package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/authgate/pkg/ledger"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// Without styling (pipes, CI logs) it uses the notty style.
func NewRenderer(styled bool) (func(string) (string, error), error) {
	opt := glamour.WithAutoStyle()
	if !styled {
		opt = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(100))
	if err != nil {
		return nil, err
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}, nil
}

// LedgerReport formats a ledger document as markdown.
// verifyErr is the result of verifying doc; nil means intact.
func LedgerReport(doc ledger.Document, verifyErr error) string {
	var sb strings.Builder
	sb.WriteString("# Audit ledger\n\n")

	status := "intact"
	if verifyErr != nil {
		status = "**COMPROMISED**: " + verifyErr.Error()
	}
	fmt.Fprintf(&sb, "- Entries: %d\n", len(doc.Entries))
	fmt.Fprintf(&sb, "- Sealed: %t\n", doc.Sealed)
	fmt.Fprintf(&sb, "- Tip: `%s`\n", short(doc.Tip))
	fmt.Fprintf(&sb, "- Integrity: %s\n\n", status)

	if len(doc.Entries) == 0 {
		sb.WriteString("_No entries._\n")
		return sb.String()
	}

	sb.WriteString("| # | Action | Executed | Context | Confirm | Sig | Hash |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, e := range doc.Entries {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s | v%d %s | `%s` |\n",
			e.ChainIndex,
			e.ActionID,
			e.ExecutedAt.UTC().Format("2006-01-02 15:04:05.000"),
			e.ContextID,
			e.ConfirmationTime,
			e.Signature.Version,
			e.Signature.Algorithm,
			short(e.OwnHash),
		)
	}
	return sb.String()
}

func short(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
