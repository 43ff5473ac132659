package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// started by the Google API client's init
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func TestFanOutKeepsIndexOrder(t *testing.T) {
	out, err := fanOut(context.Background(), 5, 3, nil, func(_ context.Context, i int) (int, error) {
		time.Sleep(time.Duration(5-i) * time.Millisecond)
		return i * i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4, 9, 16}, out)
}

func TestFanOutRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	_, err := fanOut(context.Background(), 8, 2, nil, func(_ context.Context, i int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanOutFirstErrorCancelsSiblings(t *testing.T) {
	boom := errors.New("provider down")
	start := time.Now()
	_, err := fanOut(context.Background(), 4, 4, nil, func(ctx context.Context, i int) (int, error) {
		if i == 0 {
			return 0, boom
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(5 * time.Second):
			return i, nil
		}
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "item 0")
	assert.Less(t, time.Since(start), time.Second, "siblings stop early")
}

func TestFanOutHonoursRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lim := perMinute(1) // one token now, the next in a minute
	var started atomic.Int32
	done := make(chan error, 1)
	go func() {
		_, err := fanOut(ctx, 2, 2, lim, func(context.Context, int) (int, error) {
			started.Add(1)
			return 0, nil
		})
		done <- err
	}()

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.Error(t, <-done)
	assert.EqualValues(t, 1, started.Load())
}

func TestPerMinuteZeroIsUnlimited(t *testing.T) {
	assert.Nil(t, perMinute(0))
}
