/*
Package ports defines the driven ports (interfaces) for the authorization gate.

These interfaces decouple the core logic from external implementations, allowing
the gate to work with various storage backends, clocks and execution backends.

# Key Interfaces

  - LedgerStore: persists sealed audit entries in chain order.
  - CheckpointStore: persists pre-execution checkpoints keyed by action id.
  - Workspace: the keyed state that undo restores, written all-or-nothing.
  - DistributedLocker: distributed concurrency control for per-action serialization.
  - ExecutionBackend: performs the real-world effect once an action is authorized.
  - Clock: the source of monotonic time for hold measurement and timestamps.
*/
package ports
