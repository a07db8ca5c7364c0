package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

func TestDispatchNilHookIsNoop(t *testing.T) {
	err := Dispatch(context.Background(), nil, "p", "h", nil)
	assert.NoError(t, err)
}

func TestDispatchPropagatesHookError(t *testing.T) {
	wantErr := fwupderr.New(fwupderr.Read, "boom")

	err := Dispatch(context.Background(), nil, "p", "h", func(ctx context.Context) error {
		return wantErr
	})

	assert.Same(t, wantErr, err)
}

func TestDispatchRecoversPanicAsInternal(t *testing.T) {
	err := Dispatch(context.Background(), nil, "p", "h", func(ctx context.Context) error {
		panic("unexpected")
	})

	require.Error(t, err)
	fe, ok := err.(*fwupderr.Error)
	require.True(t, ok)
	assert.Equal(t, fwupderr.Internal, fe.Kind)
}
