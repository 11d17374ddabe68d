package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/observability"
)

func TestNew_BuildsProviderWithoutError(t *testing.T) {
	p, err := observability.New(context.Background(), observability.DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTrackToolCall_CompletesWithoutErrorOnSuccess(t *testing.T) {
	p, err := observability.New(context.Background(), observability.DefaultConfig())
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, done := p.TrackToolCall(context.Background(), "echo", "1.0.0")
	require.NotNil(t, ctx)
	done(nil)
}

func TestTrackToolCall_RecordsErrorWithoutPanicking(t *testing.T) {
	p, err := observability.New(context.Background(), observability.DefaultConfig())
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, done := p.TrackToolCall(context.Background(), "echo", "1.0.0")
	require.NotPanics(t, func() { done(errors.New("boom")) })
}
