package domain

import "time"

// Context is the immutable snapshot of what an action is about.
// It is a value type: copies cannot affect the original.
type Context struct {
	ID         string    `json:"context_id" yaml:"context_id"`
	SourceHash string    `json:"source_hash" yaml:"source_hash"`
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
}

// NewContext captures a context at the given instant.
func NewContext(id, sourceHash string, at time.Time) Context {
	return Context{ID: id, SourceHash: sourceHash, CapturedAt: at}
}

// Matches reports whether two contexts describe the same subject.
// The capture time is not part of the identity.
func (c Context) Matches(other Context) bool {
	return c.ID == other.ID && c.SourceHash == other.SourceHash
}

func (c Context) String() string {
	return c.ID + "@" + c.SourceHash
}
