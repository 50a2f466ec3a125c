package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_Branch(t *testing.T) {
	p := NewPacer(5, DefaultInterval)

	for count := 1; count <= 20; count++ {
		want := PauseShort
		if count%5 == 0 {
			want = PauseLong
		}
		assert.Equal(t, want, p.Branch(count), "count %d", count)
	}
}

func TestPacer_PaceUsesInjectedSleep(t *testing.T) {
	var slept []time.Duration
	p := &Pacer{
		PerMinute: 3,
		Interval:  12 * time.Second,
		Long:      LongPause,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	var branches []Pause
	for count := 1; count <= 6; count++ {
		b, err := p.Pace(context.Background(), count)
		require.NoError(t, err)
		branches = append(branches, b)
	}

	assert.Equal(t, []Pause{PauseShort, PauseShort, PauseLong, PauseShort, PauseShort, PauseLong}, branches)
	assert.Equal(t, []time.Duration{
		12 * time.Second, 12 * time.Second, 60 * time.Second,
		12 * time.Second, 12 * time.Second, 60 * time.Second,
	}, slept)
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPause_String(t *testing.T) {
	assert.Equal(t, "short", PauseShort.String())
	assert.Equal(t, "long", PauseLong.String())
}
