package cdp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoundedCtxPropagatesCallerCancel(t *testing.T) {
	caller, cancelCaller := context.WithCancel(context.Background())
	ctx, cancel := boundedCtx(context.Background(), caller, time.Minute)
	defer cancel()

	cancelCaller()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("caller cancellation did not reach the derived context")
	}
}

func TestBoundedCtxCapsLongCallerDeadlines(t *testing.T) {
	caller, cancelCaller := context.WithTimeout(context.Background(), time.Hour)
	defer cancelCaller()

	ctx, cancel := boundedCtx(context.Background(), caller, 50*time.Millisecond)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.Less(t, time.Until(deadline), time.Minute,
		"the hard cap applies even when the caller's deadline is further out")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("hard cap did not fire")
	}
}
