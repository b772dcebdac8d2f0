package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/authgate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooks_RecordEveryPath(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics()
	h := m.Hooks()

	h.OnTransition(ctx, &domain.TransitionEvent{Event: domain.EventShow, To: domain.StateVisible})
	h.OnTransition(ctx, &domain.TransitionEvent{Event: domain.EventShow, To: domain.StateVisible})
	h.OnTransitionRejected(ctx, &domain.TransitionEvent{Event: domain.EventConfirm, From: domain.StateVisible})
	h.OnStaleContext(ctx, &domain.StaleContextError{ActionID: "a1"})
	h.OnAppend(ctx, &domain.LedgerEvent{ChainIndex: 4})
	h.OnAppendDenied(ctx, &domain.LedgerEvent{ChainIndex: -1, Err: domain.ErrSealedLedger})
	h.OnUndo(ctx, &domain.UndoEvent{ActionID: "a1"})
	h.OnUndo(ctx, &domain.UndoEvent{ActionID: "a1", Redo: true, Err: errors.New("nothing")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("show", "visible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTransitions.WithLabelValues("confirm", "visible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleContexts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Appends))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ChainLength))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeniedAppends))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Undos.WithLabelValues("undo", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Undos.WithLabelValues("redo", "error")))
}

func TestHandler_ServesExposition(t *testing.T) {
	m := NewMetrics()
	m.Hooks().OnStaleContext(context.Background(), &domain.StaleContextError{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "authgate_stale_context_total 1"))
}
