package authority

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/authgate/internal/testutils"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// declared is the expected transition table, written out independently of next().
var declared = map[domain.State]map[domain.Event]bool{
	domain.StateGenerated: {domain.EventShow: true, domain.EventContextInvalid: true, domain.EventExpire: true, domain.EventReject: true},
	domain.StateVisible:   {domain.EventStartHold: true, domain.EventEndHold: true, domain.EventContextInvalid: true, domain.EventExpire: true, domain.EventReject: true},
	domain.StateArmed:     {domain.EventConfirm: true, domain.EventContextInvalid: true, domain.EventExpire: true, domain.EventReject: true},
	domain.StateReady:     {domain.EventConfirm: true, domain.EventContextInvalid: true, domain.EventExpire: true, domain.EventReject: true},
}

func newMachine(t *testing.T) (*Machine, *testutils.FakeClock) {
	t.Helper()
	clock := testutils.NewFakeClock(testutils.Epoch)
	return New("action-1", testutils.Context(t, "f1", "h1"), WithClock(clock)), clock
}

// driveTo moves a fresh machine into state using only declared transitions.
func driveTo(t *testing.T, m *Machine, state domain.State) {
	t.Helper()
	ctx := context.Background()
	switch state {
	case domain.StateGenerated:
	case domain.StateVisible:
		require.NoError(t, m.Show(ctx))
	case domain.StateArmed:
		driveTo(t, m, domain.StateVisible)
		_, err := m.EndHold(ctx, HoldThreshold)
		require.NoError(t, err)
	case domain.StateReady:
		driveTo(t, m, domain.StateArmed)
		_, err := m.Confirm(ctx)
		require.NoError(t, err)
	case domain.StateAuthorized:
		driveTo(t, m, domain.StateReady)
		_, err := m.Confirm(ctx)
		require.NoError(t, err)
	case domain.StateExpired:
		require.NoError(t, m.Expire(ctx))
	case domain.StateRejected:
		require.NoError(t, m.Reject(ctx))
	}
	require.Equal(t, state, m.State())
}

func TestTransitionTable_IsTotal(t *testing.T) {
	for _, state := range domain.States {
		for _, event := range domain.Events {
			want := declared[state][event]
			assert.Equal(t, want, Allowed(state, event), "state=%s event=%s", state, event)
		}
	}
}

func TestUndeclaredEvents_FailAndLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	for _, state := range domain.States {
		for _, event := range domain.Events {
			if declared[state][event] {
				continue
			}
			t.Run(string(state)+"/"+string(event), func(t *testing.T) {
				m, _ := newMachine(t)
				driveTo(t, m, state)
				before := m.Transitions()

				applied, got, err := m.FireIf(ctx, event, time.Hour, nil)

				assert.False(t, applied)
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
				var invalid *domain.InvalidTransitionError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, state, invalid.State)
				assert.Equal(t, event, invalid.Event)
				assert.Equal(t, state, got)
				assert.Equal(t, state, m.State())
				assert.Equal(t, before, m.Transitions(), "failed transitions are not logged")
			})
		}
	}
}

func TestEndHold_Threshold(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		elapsed time.Duration
		want    domain.State
	}{
		{0, domain.StateVisible},
		{100 * time.Millisecond, domain.StateVisible},
		{399 * time.Millisecond, domain.StateVisible},
		{HoldThreshold - time.Nanosecond, domain.StateVisible},
		{HoldThreshold, domain.StateArmed},
		{401 * time.Millisecond, domain.StateArmed},
		{5 * time.Second, domain.StateArmed},
	}
	for _, tc := range cases {
		t.Run(tc.elapsed.String(), func(t *testing.T) {
			m, _ := newMachine(t)
			driveTo(t, m, domain.StateVisible)
			require.NoError(t, m.StartHold(ctx))

			got, err := m.EndHold(ctx, tc.elapsed)

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthorization_RequiresTwoConfirms(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)
	driveTo(t, m, domain.StateArmed)

	state, err := m.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, state)
	assert.NotEqual(t, domain.StateAuthorized, m.State(), "one confirmation must never authorize")

	state, err = m.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthorized, state)

	_, err = m.Confirm(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestConfirm_WithoutArmingFails(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)
	driveTo(t, m, domain.StateVisible)

	_, err := m.Confirm(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StateVisible, m.State())
}

func TestReject_FromEveryIntermediateState(t *testing.T) {
	ctx := context.Background()
	for _, state := range []domain.State{domain.StateVisible, domain.StateArmed, domain.StateReady} {
		t.Run(string(state), func(t *testing.T) {
			m, _ := newMachine(t)
			driveTo(t, m, state)

			require.NoError(t, m.Reject(ctx))
			assert.Equal(t, domain.StateRejected, m.State())

			for _, event := range domain.Events {
				applied, _, err := m.FireIf(ctx, event, HoldThreshold, nil)
				assert.False(t, applied)
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			}
			assert.Equal(t, domain.StateRejected, m.State())
		})
	}
}

func TestTransitionLog_RecordsPathInOrder(t *testing.T) {
	ctx := context.Background()
	m, clock := newMachine(t)

	require.NoError(t, m.Show(ctx))
	require.NoError(t, m.StartHold(ctx))
	clock.Advance(450 * time.Millisecond)
	_, err := m.EndHold(ctx, 450*time.Millisecond)
	require.NoError(t, err)
	_, err = m.Confirm(ctx)
	require.NoError(t, err)
	_, err = m.Confirm(ctx)
	require.NoError(t, err)

	log := m.Transitions()
	require.Len(t, log, 5)
	assert.Equal(t, []domain.Event{
		domain.EventShow, domain.EventStartHold, domain.EventEndHold, domain.EventConfirm, domain.EventConfirm,
	}, []domain.Event{log[0].Event, log[1].Event, log[2].Event, log[3].Event, log[4].Event})
	assert.Equal(t, domain.StateArmed, log[2].To)
	assert.Equal(t, testutils.Epoch, log[0].At)
	assert.Equal(t, testutils.Epoch.Add(450*time.Millisecond), log[4].At)
}

func TestTransitionLog_NeverCarriesConfidence(t *testing.T) {
	typ := reflect.TypeOf(domain.TransitionRecord{})
	for i := 0; i < typ.NumField(); i++ {
		assert.NotContains(t, strings.ToLower(typ.Field(i).Name), "confidence")
	}

	m, _ := newMachine(t)
	driveTo(t, m, domain.StateAuthorized)
	raw, err := json.Marshal(m.Transitions())
	require.NoError(t, err)
	assert.NotContains(t, strings.ToLower(string(raw)), "confidence")
}

func TestFireIf_GuardDeclines(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)
	driveTo(t, m, domain.StateRejected)

	applied, state, err := m.FireIf(ctx, domain.EventExpire, 0, func(s domain.State) bool {
		return !s.IsTerminal()
	})

	assert.False(t, applied)
	assert.NoError(t, err)
	assert.Equal(t, domain.StateRejected, state)
}

func TestConcurrentConfirms_AreSerialized(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)
	driveTo(t, m, domain.StateArmed)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Confirm(ctx); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), ok.Load())
	assert.Equal(t, domain.StateAuthorized, m.State())
}

func TestHooks_ObserveAcceptedAndRejected(t *testing.T) {
	ctx := context.Background()
	var accepted, rejected []domain.Event
	m := New("action-h", domain.Context{ID: "f1", SourceHash: "h1"}, WithHooks(domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			accepted = append(accepted, e.Event)
		},
		OnTransitionRejected: func(_ context.Context, e *domain.TransitionEvent) {
			rejected = append(rejected, e.Event)
			assert.ErrorIs(t, e.Err, domain.ErrInvalidTransition)
		},
	}))

	require.NoError(t, m.Show(ctx))
	_, err := m.Confirm(ctx)
	require.Error(t, err)

	assert.Equal(t, []domain.Event{domain.EventShow}, accepted)
	assert.Equal(t, []domain.Event{domain.EventConfirm}, rejected)
}
