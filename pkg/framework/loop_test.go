package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoopPriorityOrder(t *testing.T) {
	var order []string
	record := func(name string) PollFunc {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	l := NewLoop()
	l.Add(PrLvIdle, record("idle"))
	l.Add(PrLvTop, record("top"))
	l.Add(PrLvNormal, record("normal1"), record("normal2"))
	require.NoError(t, l.RunIteration(context.Background()))
	require.Equal(t, []string{"top", "normal1", "normal2", "idle"}, order)
	require.EqualValues(t, 1, l.Iterations())
}

func TestLoopStop(t *testing.T) {
	var count, idles int
	l := NewLoop()
	l.Idle = func() { idles++ }
	l.AddFunc(PrLvNormal, func(context.Context) error {
		count++
		if count == 3 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, l.Run(context.Background()))
	require.Equal(t, 3, count)
	require.Equal(t, 2, idles)
}

func TestLoopError(t *testing.T) {
	errBoom := errors.New("boom")
	l := NewLoop()
	l.AddFunc(PrLvTop, func(context.Context) error { return errBoom })
	require.Equal(t, errBoom, l.Run(context.Background()))
}

func TestLoopCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop()
	l.AddFunc(PrLvNormal, func(context.Context) error {
		cancel()
		return nil
	})
	require.Equal(t, context.Canceled, l.Run(ctx))
}
