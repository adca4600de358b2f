package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pruneFunc func(ctx context.Context, before time.Time) (int64, error)

func (f pruneFunc) Prune(ctx context.Context, before time.Time) (int64, error) {
	return f(ctx, before)
}

func TestNewRetentionValidates(t *testing.T) {
	ok := pruneFunc(func(context.Context, time.Time) (int64, error) { return 0, nil })

	_, err := NewRetention(nil, "", time.Hour, nil)
	assert.Error(t, err, "nil pruner")

	_, err = NewRetention(ok, "", 0, nil)
	assert.Error(t, err, "zero retention")

	_, err = NewRetention(ok, "not a schedule", time.Hour, nil)
	assert.Error(t, err)

	for _, s := range []string{"", "@daily", "@every 1h", "0 3 * * *", "30 0 3 * * *"} {
		_, err = NewRetention(ok, s, time.Hour, nil)
		assert.NoError(t, err, s)
	}
}

func TestRetentionRunOnce(t *testing.T) {
	var got time.Time
	r, err := NewRetention(pruneFunc(func(_ context.Context, before time.Time) (int64, error) {
		got = before
		return 4, nil
	}), "@daily", 48*time.Hour, nil)
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC), got)
}

func TestRetentionRunOnceError(t *testing.T) {
	r, err := NewRetention(pruneFunc(func(context.Context, time.Time) (int64, error) {
		return 0, errors.New("locked")
	}), "", time.Hour, nil)
	require.NoError(t, err)
	_, err = r.RunOnce(context.Background())
	assert.EqualError(t, err, "locked")
}

func TestRetentionSchedule(t *testing.T) {
	ran := make(chan struct{}, 4)
	r, err := NewRetention(pruneFunc(func(context.Context, time.Time) (int64, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 0, nil
	}), "@every 1s", time.Hour, nil)
	require.NoError(t, err)
	r.Start()
	defer r.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled prune never ran")
	}
}
