package closuresignaler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClosureSignaler(t *testing.T) {
	ctx := context.Background()
	c := New()
	require.False(t, c.IsClosed())

	c.Close(ctx)
	c.Close(ctx)
	require.True(t, c.IsClosed())

	select {
	case <-c.CloseChan():
	default:
		t.Fatal("the close channel is expected to be closed")
	}
}

func TestClosureSignalerCause(t *testing.T) {
	ctx := context.Background()
	c := New()
	require.NoError(t, c.Cause())

	cause := errors.New("end of the timeline")
	c.CloseWithCause(ctx, cause)
	c.CloseWithCause(ctx, errors.New("closed"))
	require.Equal(t, cause, c.Cause())
}
