/*
Package authgate is an execution-authorization gate: it turns a
machine-generated suggestion into an authorized, audited and reversible
action, and only on deliberate human gestures.

# Concept

Every suggestion becomes an action bound to the context it was made in and
driven by its own state machine:

	generated -> visible -> armed -> ready -> authorized

Arming requires a continuous hold of at least 400ms. Authorization requires
two separate confirmations after arming. Any action can be rejected, and an
action whose context has changed expires. Callers never touch the machine;
they hold a boundary.Boundary that exposes five gestures (Show, Arm,
Release, Confirm, Cancel) and a read-only View.

When an action is authorized the Core captures a checkpoint of the state it
will touch, appends a sealed, hash-chained entry to the audit ledger and
only then asks the execution backend to perform the effect.

# Usage

	ws := memory.NewWorkspace(domain.Snapshot{"volume": 3})
	core, err := authgate.New(ctx, domain.NewContext("mixer", "rev-1", time.Now()), nil,
		authgate.WithWorkspace(ws),
	)
	if err != nil {
		log.Fatal(err)
	}

	b := core.Suggest(domain.Suggestion{
		Description: "raise volume",
		Effect:      domain.Snapshot{"volume": 7},
	})
	defer b.Close()

	_ = b.Show(ctx)
	_ = b.Arm(ctx)
	// ... the user holds ...
	_, _ = b.Release(ctx)
	_, _ = b.Confirm(ctx)
	_, _ = b.Confirm(ctx) // authorized, recorded, executed

	res := core.Undo(ctx, b.ActionID())

# Audit

The ledger is append-only. Each entry's digest covers its canonical fields
and the digest of the previous entry, so any stored change is detected by
VerifyLedger, which reports the first divergent entry. Digests come from a
versioned signature provider (see pkg/signature) so the algorithm can rotate
without invalidating history.
*/
package authgate
