package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_CompleteThenGet(t *testing.T) {
	f := NewFuture[int64]()
	go f.Complete(42)

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestFuture_Fail(t *testing.T) {
	f := NewFuture[int64]()
	cause := errors.New("boom")
	f.Fail(cause)

	_, err := f.Get(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestFuture_FirstResolutionWins(t *testing.T) {
	f := NewFuture[int64]()
	f.Complete(1)
	f.Complete(2)
	f.Fail(errors.New("ignored"))

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestFuture_GetHonorsContext(t *testing.T) {
	f := NewFuture[int64]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The future is still completable after an abandoned wait.
	f.Complete(7)
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestThen_AppliesFunction(t *testing.T) {
	f := NewFuture[int64]()
	doubled := Then(f, func(v int64) (int64, error) { return v * 2, nil })

	f.Complete(21)

	v, err := doubled.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestThen_PropagatesError(t *testing.T) {
	f := NewFuture[int64]()
	cause := errors.New("upstream failed")

	derived := Then(f, func(v int64) (int64, error) {
		t.Fatal("fn must not run when the upstream future failed")
		return 0, nil
	})

	f.Fail(cause)

	_, err := derived.Get(context.Background())
	assert.ErrorIs(t, err, cause)
}
