package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/signature"
	"gopkg.in/yaml.v3"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ExportVersion is the version of the export document layout.
const ExportVersion = 1

// Document is the exported form of a ledger.
type Document struct {
	Version int                 `json:"version" yaml:"version"`
	Sealed  bool                `json:"sealed" yaml:"sealed"`
	Tip     string              `json:"tip" yaml:"tip"`
	Entries []domain.AuditEntry `json:"entries" yaml:"entries"`
}

// Document returns the current ledger as an export document.
func (l *Ledger) Document() Document {
	entries := l.Entries()
	l.mu.Lock()
	defer l.mu.Unlock()
	return Document{
		Version: ExportVersion,
		Sealed:  l.sealed,
		Tip:     l.tip,
		Entries: entries,
	}
}

// Export writes the ledger to w.
func (l *Ledger) Export(ctx context.Context, w io.Writer, format Format) error {
	doc := l.Document()
	l.logger.DebugContext(ctx, "exporting ledger", "format", format, "entries", len(doc.Entries))
	return Encode(w, doc, format)
}

// Encode writes doc to w.
func Encode(w io.Writer, doc Document, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(yamlDocument(doc)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// Decode reads an export document from r.
func Decode(r io.Reader, format Format) (Document, error) {
	var doc Document
	switch format {
	case FormatJSON, "":
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return Document{}, fmt.Errorf("failed to decode ledger: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return Document{}, fmt.Errorf("failed to decode ledger: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("unsupported export format %q", format)
	}
	if doc.Version != ExportVersion {
		return Document{}, fmt.Errorf("unsupported ledger document version %d", doc.Version)
	}
	return doc, nil
}

// Verify checks the chain in doc and that its recorded tip matches the last entry.
func (doc Document) Verify(signer signature.Signer) error {
	if err := VerifyEntries(signer, doc.Entries); err != nil {
		return err
	}
	tip := Genesis
	if n := len(doc.Entries); n > 0 {
		tip = doc.Entries[n-1].OwnHash
	}
	if doc.Tip != tip {
		return &domain.ChainIntegrityError{
			Index:  len(doc.Entries),
			Reason: "recorded tip does not match the last entry",
		}
	}
	return nil
}

// yamlDocument replaces json.Number snapshot values, which YAML would emit
// as strings, with native numbers that encode to the same JSON digits.
func yamlDocument(doc Document) Document {
	entries := make([]domain.AuditEntry, len(doc.Entries))
	for i, e := range doc.Entries {
		e = e.Clone()
		if e.PreExecutionSnapshot != nil {
			e.PreExecutionSnapshot = nativeNumbers(map[string]any(e.PreExecutionSnapshot)).(map[string]any)
		}
		entries[i] = e
	}
	doc.Entries = entries
	return doc
}

func nativeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(val.String(), 10, 64); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = nativeNumbers(inner)
		}
		return out
	case domain.Snapshot:
		return nativeNumbers(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = nativeNumbers(inner)
		}
		return out
	default:
		return val
	}
}
