/*
Package domain contains the core domain models of the authorization gate.

It defines the states and events of an action's authorization lifecycle, the
immutable records produced along the way, and the typed errors every rejected
path surfaces. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - State / Event: the authorization lifecycle and the gestures that drive it.
  - Context: the immutable snapshot of what an action is about.
  - TransitionRecord: one successful transition, the forensic proof of path.
  - AuditEntry: a sealed, hash-chained ledger record of an authorized action.
  - Checkpoint: the pre-execution snapshot used to undo one action.
*/
package domain
