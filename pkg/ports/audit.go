package ports

import (
	"context"

	"github.com/aretw0/authgate/pkg/domain"
)

// AuditReader is the read-only view of the ledger handed to audit surfaces
// (HTTP, MCP, CLI). It has no append path.
type AuditReader interface {
	Entries() []domain.AuditEntry
	Entry(actionID string) (domain.AuditEntry, error)
	Tip() string
	Len() int
	Sealed() bool
	// VerifyChainIntegrity runs a full verification pass.
	VerifyChainIntegrity(ctx context.Context) error
}
