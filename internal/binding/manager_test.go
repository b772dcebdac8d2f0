package binding

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/authgate/internal/authority"
	"github.com/aretw0/authgate/internal/testutils"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	seq := 0
	return NewManager(testutils.Context(t, "f1", "h1"),
		WithClock(testutils.NewFakeClock(testutils.Epoch)),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("action-%d", seq)
		}),
	)
}

func arm(t *testing.T, a *Action) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.Machine().Show(ctx))
	_, err := a.Machine().EndHold(ctx, authority.HoldThreshold)
	require.NoError(t, err)
	require.Equal(t, domain.StateArmed, a.State())
}

func TestCreateAction_BindsCurrentContext(t *testing.T) {
	m := newManager(t)

	a := m.CreateAction(domain.Suggestion{Description: "lower volume"})

	assert.Equal(t, "action-1", a.ID())
	assert.Equal(t, "f1", a.Bound().ID)
	assert.Equal(t, "h1", a.Bound().SourceHash)
	assert.Equal(t, domain.StateGenerated, a.State())
	assert.Equal(t, a.Bound(), a.Machine().Bound())
	assert.Equal(t, testutils.Epoch, a.CreatedAt())

	got, err := m.Lookup("action-1")
	require.NoError(t, err)
	assert.Same(t, a, got)
}

func TestCreateAction_UniqueIDs(t *testing.T) {
	calls := 0
	m := NewManager(testutils.Context(t, "f1", "h1"), WithIDGenerator(func() string {
		calls++
		if calls <= 2 {
			return "dup"
		}
		return "fresh"
	}))

	first := m.CreateAction(domain.Suggestion{})
	second := m.CreateAction(domain.Suggestion{})

	assert.Equal(t, "dup", first.ID())
	assert.Equal(t, "fresh", second.ID())
	assert.Equal(t, 2, m.Len())
}

func TestIsActionValid(t *testing.T) {
	m := newManager(t)
	a := m.CreateAction(domain.Suggestion{})
	assert.True(t, m.IsActionValid(a))

	m.SwitchContext(testutils.Context(t, "f1", "h2"))
	assert.False(t, m.IsActionValid(a), "a different source hash invalidates")

	m.SwitchContext(testutils.Context(t, "f1", "h1"))
	assert.True(t, m.IsActionValid(a))
}

func TestIsActionValid_TerminalAlwaysValid(t *testing.T) {
	m := newManager(t)
	a := m.CreateAction(domain.Suggestion{})
	require.NoError(t, a.Machine().Reject(context.Background()))

	m.SwitchContext(testutils.Context(t, "f2", "h2"))

	assert.True(t, m.IsActionValid(a))
	assert.NoError(t, m.ValidateActionContext(context.Background(), a))
}

func TestValidateActionContext_StaleArmedAction(t *testing.T) {
	ctx := context.Background()
	var observed *domain.StaleContextError
	m := NewManager(testutils.Context(t, "f1", "h1"), WithHooks(domain.LifecycleHooks{
		OnStaleContext: func(_ context.Context, e *domain.StaleContextError) { observed = e },
	}))
	a := m.CreateAction(domain.Suggestion{Description: "skip track"})
	arm(t, a)

	m.SwitchContext(testutils.Context(t, "f2", "h2"))
	assert.Equal(t, domain.StateArmed, a.State(), "switching context never expires eagerly")

	err := m.ValidateActionContext(ctx, a)

	require.ErrorIs(t, err, domain.ErrStaleContext)
	var stale *domain.StaleContextError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "f1", stale.Bound.ID)
	assert.Equal(t, "h1", stale.Bound.SourceHash)
	assert.Equal(t, "f2", stale.Current.ID)
	assert.Equal(t, "h2", stale.Current.SourceHash)
	assert.Contains(t, err.Error(), "f1@h1")
	assert.Contains(t, err.Error(), "f2@h2")
	assert.Same(t, stale, observed)

	assert.Equal(t, domain.StateExpired, a.State())
	_, err = a.Machine().Confirm(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSwitchContext_NotifiesListeners(t *testing.T) {
	m := newManager(t)
	var seen []string
	remove := m.OnSwitch(func(c domain.Context) { seen = append(seen, c.ID) })

	m.SwitchContext(testutils.Context(t, "f2", "h2"))
	remove()
	m.SwitchContext(testutils.Context(t, "f3", "h3"))

	assert.Equal(t, []string{"f2"}, seen)
	assert.Equal(t, "f3", m.Current().ID)
}

func TestConfidence_IsAdvisoryOnly(t *testing.T) {
	ctx := context.Background()
	low, high := 0.01, 0.99
	m := newManager(t)

	run := func(conf *float64) []domain.State {
		a := m.CreateAction(domain.Suggestion{Description: "same", Confidence: conf})
		var states []domain.State
		require.NoError(t, a.Machine().Show(ctx))
		states = append(states, a.State())
		_, _ = a.Machine().EndHold(ctx, authority.HoldThreshold)
		states = append(states, a.State())
		_, _ = a.Machine().Confirm(ctx)
		states = append(states, a.State())
		_, _ = a.Machine().Confirm(ctx)
		return append(states, a.State())
	}

	assert.Equal(t, run(nil), run(&low))
	assert.Equal(t, run(&low), run(&high))

	a := m.CreateAction(domain.Suggestion{Confidence: &high})
	got, ok := a.Confidence()
	assert.True(t, ok)
	assert.Equal(t, high, got)
}

func TestForget(t *testing.T) {
	m := newManager(t)
	a := m.CreateAction(domain.Suggestion{})

	m.Forget(a.ID())

	_, err := m.Lookup(a.ID())
	assert.ErrorIs(t, err, domain.ErrActionNotFound)
}
