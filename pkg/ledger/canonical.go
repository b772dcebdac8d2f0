package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/authgate/pkg/domain"
	"golang.org/x/text/unicode/norm"
)

// Domain prefix for entry digests. The version suffix enables future
// encoding migration.
const entryDomain = "authgate/audit-entry/v1"

// Genesis is the PrevHash of entry 0.
const Genesis = "authgate/genesis/v1"

// canonicalEntry fixes the field set and order that is digested.
// OwnHash, Sealed and the signature bundle are outputs of signing and are
// checked separately during verification.
type canonicalEntry struct {
	ActionID             string                `json:"action_id"`
	ChainIndex           int                   `json:"chain_index"`
	ConfirmationTimeNS   int64                 `json:"confirmation_time_ns"`
	ContextID            string                `json:"context_id"`
	ExecutedAt           string                `json:"executed_at"`
	ExecutionDurationNS  int64                 `json:"execution_duration_ns"`
	PreExecutionSnapshot json.RawMessage       `json:"pre_execution_snapshot"`
	PrevHash             string                `json:"prev_hash"`
	SourceHash           string                `json:"source_hash"`
	TransitionPath       []canonicalTransition `json:"transition_path"`
}

type canonicalTransition struct {
	At    string `json:"at"`
	Event string `json:"event"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// canonicalJSON encodes the digested fields of e deterministically.
// Strings are hashed exactly as stored, instants are UTC RFC 3339 with
// nanoseconds, durations are integer nanoseconds and snapshot keys are sorted.
func canonicalJSON(e domain.AuditEntry) ([]byte, error) {
	snapshot, err := canonicalSnapshot(e.PreExecutionSnapshot)
	if err != nil {
		return nil, fmt.Errorf("canonical snapshot: %w", err)
	}

	path := make([]canonicalTransition, len(e.TransitionPath))
	for i, r := range e.TransitionPath {
		path[i] = canonicalTransition{
			At:    instant(r.At),
			Event: string(r.Event),
			From:  string(r.From),
			To:    string(r.To),
		}
	}

	return marshal(canonicalEntry{
		ActionID:             e.ActionID,
		ChainIndex:           e.ChainIndex,
		ConfirmationTimeNS:   int64(e.ConfirmationTime),
		ContextID:            e.ContextID,
		ExecutedAt:           instant(e.ExecutedAt),
		ExecutionDurationNS:  int64(e.ExecutionDuration),
		PreExecutionSnapshot: snapshot,
		PrevHash:             e.PrevHash,
		SourceHash:           e.SourceHash,
		TransitionPath:       path,
	})
}

// canonicalSnapshot encodes s in the form it has after a JSON round trip, so
// a snapshot read back from a JSON-backed store digests like the original.
func canonicalSnapshot(s domain.Snapshot) (json.RawMessage, error) {
	v, err := jsonForm(map[string]any(s))
	if err != nil {
		return nil, err
	}
	return marshal(v)
}

// jsonForm returns v as encoding/json decodes it, with numbers kept as
// json.Number so integers beyond 2^53 survive.
func jsonForm(v any) (any, error) {
	raw, err := marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// canonicalPayload is the byte string handed to the signer.
// Format: domain + 0x00 + canonical JSON. The prev_hash field inside the JSON
// is the chain tip the entry extends.
func canonicalPayload(e domain.AuditEntry) ([]byte, error) {
	body, err := canonicalJSON(e)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(entryDomain)
	buf.WriteByte(0x00)
	buf.Write(body)
	return buf.Bytes(), nil
}

// marshal is json.Marshal without HTML escaping and without the trailing newline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func instant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nfc(s string) string {
	return norm.NFC.String(s)
}

// normalizeEntry puts every string of e in NFC form. It runs once, before
// the entry is signed and stored.
func normalizeEntry(e *domain.AuditEntry) error {
	e.ActionID = nfc(e.ActionID)
	e.ContextID = nfc(e.ContextID)
	e.SourceHash = nfc(e.SourceHash)
	for i := range e.TransitionPath {
		r := &e.TransitionPath[i]
		r.Event = domain.Event(nfc(string(r.Event)))
		r.From = domain.State(nfc(string(r.From)))
		r.To = domain.State(nfc(string(r.To)))
	}
	if e.PreExecutionSnapshot == nil {
		return nil
	}
	m, err := normalizeMap(e.PreExecutionSnapshot)
	if err != nil {
		return err
	}
	e.PreExecutionSnapshot = m
	return nil
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, inner := range m {
		key := nfc(k)
		if _, taken := out[key]; taken {
			return nil, fmt.Errorf("%w: %q", ErrSnapshotKeyCollision, key)
		}
		v, err := normalizeValue(inner)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// normalizeValue keeps plain JSON values in their Go types and converts
// anything else to its JSON form first.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, nil
	case string:
		return nfc(val), nil
	case map[string]any:
		return normalizeMap(val)
	case domain.Snapshot:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			n, err := normalizeValue(inner)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]string, len(val))
		for i, inner := range val {
			out[i] = nfc(inner)
		}
		return out, nil
	default:
		form, err := jsonForm(val)
		if err != nil {
			return nil, err
		}
		return normalizeValue(form)
	}
}

// unnormalized names the first field of e that is not in NFC form, or
// returns "" when every string is.
func unnormalized(e domain.AuditEntry) string {
	fields := []struct{ name, value string }{
		{"action_id", e.ActionID},
		{"context_id", e.ContextID},
		{"source_hash", e.SourceHash},
		{"prev_hash", e.PrevHash},
	}
	for i, r := range e.TransitionPath {
		at := fmt.Sprintf("transition_path[%d]", i)
		fields = append(fields,
			struct{ name, value string }{at + ".event", string(r.Event)},
			struct{ name, value string }{at + ".from", string(r.From)},
			struct{ name, value string }{at + ".to", string(r.To)},
		)
	}
	for _, f := range fields {
		if !norm.NFC.IsNormalString(f.value) {
			return f.name
		}
	}
	if form, err := jsonForm(map[string]any(e.PreExecutionSnapshot)); err == nil {
		if name := unnormalizedValue("pre_execution_snapshot", form); name != "" {
			return name
		}
	}
	return ""
}

func unnormalizedValue(name string, v any) string {
	switch val := v.(type) {
	case string:
		if !norm.NFC.IsNormalString(val) {
			return name
		}
	case map[string]any:
		for k, inner := range val {
			if !norm.NFC.IsNormalString(k) {
				return name + "." + k
			}
			if n := unnormalizedValue(name+"."+k, inner); n != "" {
				return n
			}
		}
	case []any:
		for i, inner := range val {
			if n := unnormalizedValue(fmt.Sprintf("%s[%d]", name, i), inner); n != "" {
				return n
			}
		}
	}
	return ""
}
