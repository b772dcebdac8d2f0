package domain

import "time"

// SignatureBundle is the output of a signature provider for one entry.
// Version selects how the bundle is verified; Parallel is only populated by
// bundle versions that compute a second algorithm alongside the primary.
type SignatureBundle struct {
	Version   int             `json:"version" yaml:"version"`
	Algorithm string          `json:"algorithm" yaml:"algorithm"`
	Digest    string          `json:"digest" yaml:"digest"`
	Parallel  *ParallelDigest `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// ParallelDigest is an additional digest computed over the same payload.
type ParallelDigest struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Digest    string `json:"digest" yaml:"digest"`
}

// AuditEntry is the sealed record of one authorized action.
// Entries handed out by the ledger are copies; mutating one never affects the chain.
type AuditEntry struct {
	ActionID             string             `json:"action_id" yaml:"action_id"`
	ExecutedAt           time.Time          `json:"executed_at" yaml:"executed_at"`
	ContextID            string             `json:"context_id" yaml:"context_id"`
	SourceHash           string             `json:"source_hash" yaml:"source_hash"`
	TransitionPath       []TransitionRecord `json:"transition_path" yaml:"transition_path"`
	PreExecutionSnapshot Snapshot           `json:"pre_execution_snapshot" yaml:"pre_execution_snapshot"`
	ExecutionDuration    time.Duration      `json:"execution_duration" yaml:"execution_duration"`
	ConfirmationTime     time.Duration      `json:"confirmation_time" yaml:"confirmation_time"`
	PrevHash             string             `json:"prev_hash" yaml:"prev_hash"`
	OwnHash              string             `json:"own_hash" yaml:"own_hash"`
	ChainIndex           int                `json:"chain_index" yaml:"chain_index"`
	Sealed               bool               `json:"sealed" yaml:"sealed"`
	Signature            SignatureBundle    `json:"signature" yaml:"signature"`
}

// Clone returns a deep copy of the entry.
func (e AuditEntry) Clone() AuditEntry {
	out := e
	out.TransitionPath = append([]TransitionRecord(nil), e.TransitionPath...)
	out.PreExecutionSnapshot = e.PreExecutionSnapshot.Clone()
	if e.Signature.Parallel != nil {
		p := *e.Signature.Parallel
		out.Signature.Parallel = &p
	}
	return out
}

// Checkpoint is the immutable pre-execution snapshot of one action.
type Checkpoint struct {
	ActionID  string            `json:"action_id" yaml:"action_id"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
	Snapshot  Snapshot          `json:"snapshot" yaml:"snapshot"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep copy of the checkpoint.
func (c Checkpoint) Clone() Checkpoint {
	out := c
	out.Snapshot = c.Snapshot.Clone()
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
