package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	scenarios := map[string]struct {
		backoff    Backoff
		retryCount int
		expected   time.Duration
	}{
		"first retry is base":    {DefaultBackoff(), 1, 30 * time.Second},
		"second retry doubles":   {DefaultBackoff(), 2, time.Minute},
		"third retry doubles":    {DefaultBackoff(), 3, 2 * time.Minute},
		"capped at max":          {DefaultBackoff(), 20, time.Hour},
		"zero count means first": {DefaultBackoff(), 0, 30 * time.Second},
		"custom base":            {Backoff{Base: time.Second, Max: 10 * time.Second}, 3, 4 * time.Second},
		"custom cap":             {Backoff{Base: time.Second, Max: 10 * time.Second}, 5, 10 * time.Second},
	}
	for name, sc := range scenarios {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, sc.expected, sc.backoff.Delay(sc.retryCount))
		})
	}
}

func TestBackoffMonotonic(t *testing.T) {
	b := Backoff{Base: 5 * time.Second, Max: 3 * time.Minute}
	prev := time.Duration(0)
	for n := 1; n <= 12; n++ {
		delay := b.Delay(n)
		require.GreaterOrEqual(t, delay, prev)
		require.LessOrEqual(t, delay, b.Max)
		prev = delay
	}
}
