package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservability_NilAndZeroAreNoOps(t *testing.T) {
	var nilObs *Observability
	nilObs.RecordSearch(context.Background(), time.Second, 3, "ok")
	nilObs.Shutdown()
	assert.NotNil(t, nilObs.Tracer())

	zero := &Observability{}
	zero.RecordSearch(context.Background(), time.Second, 3, "ok")
	zero.Shutdown()
	assert.NotNil(t, zero.Tracer())
}

func TestObservability_RecordAndShutdown(t *testing.T) {
	obs, err := New("catalog-search-test")
	require.NoError(t, err)

	ctx, span := obs.Tracer().Start(context.Background(), "search")
	obs.RecordSearch(ctx, 120*time.Millisecond, 3, "ok")
	obs.RecordSearch(ctx, 5*time.Millisecond, 0, "error")
	span.End()

	obs.Shutdown()
}
