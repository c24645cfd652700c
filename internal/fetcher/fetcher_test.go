package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestFetch_Success(t *testing.T) {
	var lanes []int
	f := New(func(_ context.Context, code string, lane int) (string, error) {
		lanes = append(lanes, lane)
		return "commune " + code, nil
	})

	res := f.Fetch(context.Background(), "17300", 3)
	require.True(t, res.OK())
	assert.Equal(t, "commune 17300", res.Value)
	assert.Equal(t, []int{3}, lanes)
}

func TestFetch_FailureIsData(t *testing.T) {
	boom := errors.New("HTTP 502")
	f := New(func(_ context.Context, _ string, _ int) (int, error) {
		return 7, boom
	})

	res := f.Fetch(context.Background(), "17300", 0)
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, boom)
	assert.Zero(t, res.Value)
}

func TestFetch_Timeout(t *testing.T) {
	f := New(func(ctx context.Context, _ string, _ int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := f.Fetch(context.Background(), "17300", 0)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "timed out")
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetch_Observer(t *testing.T) {
	var mu sync.Mutex
	seen := map[int][]error{}
	boom := errors.New("reset")

	f := New(func(_ context.Context, code string, _ int) (string, error) {
		if code == "bad" {
			return "", boom
		}
		return code, nil
	}, WithObserver(func(lane int, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen[lane] = append(seen[lane], err)
	}))

	f.Fetch(context.Background(), "ok", 0)
	f.Fetch(context.Background(), "bad", 1)

	assert.Equal(t, []error{nil}, seen[0])
	require.Len(t, seen[1], 1)
	assert.ErrorIs(t, seen[1][0], boom)
}

func TestFetch_JitterAndLimiter(t *testing.T) {
	var slept []time.Duration
	f := New(func(_ context.Context, code string, _ int) (string, error) {
		return code, nil
	}, WithJitter(10*time.Millisecond, 10*time.Millisecond), WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	f.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	res := f.Fetch(context.Background(), "29019", 0)
	require.True(t, res.OK())
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, slept)
}

func TestFetch_CancelledDuringJitter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	f := New(func(_ context.Context, code string, _ int) (string, error) {
		called = true
		return code, nil
	}, WithJitter(time.Second, 2*time.Second))

	res := f.Fetch(ctx, "17300", 0)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, called)
}

func TestJitter(t *testing.T) {
	assert.Equal(t, time.Second, Jitter(time.Second, time.Second))
	assert.Equal(t, time.Second, Jitter(time.Second, 0))

	for range 200 {
		d := Jitter(time.Second, 3*time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
