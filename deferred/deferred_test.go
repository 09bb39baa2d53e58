package deferred

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOnce(t *testing.T) {
	d := New()
	assert.True(t, d.Resolve("first"))
	assert.False(t, d.Resolve("second"))
	assert.False(t, d.Reject(errors.New("late")))

	v, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestRejectOnce(t *testing.T) {
	boom := errors.New("boom")
	d := Rejected(boom)
	assert.False(t, d.Resolve(1))

	_, err := d.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentSettle(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	wins := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			wins <- d.Resolve(n)
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestWaitContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New().Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGo(t *testing.T) {
	v, err := Go(func() (any, error) { return 42, nil }).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Go(func() (any, error) { return nil, errors.New("x") }).Wait(context.Background())
	assert.EqualError(t, err, "x")
}
