package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpn-shop-bot/internal/logger"
)

func TestRunExecutesHooksInReverseOrder(t *testing.T) {
	m := NewManager(logger.Nop(), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	m.Register("store", record("store"))
	m.Register("notifier", record("notifier"))

	boom := errors.New("polling failed")
	err := m.Run(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"notifier", "store"}, order)
}

func TestRunCancelsWorkersWhenParentIsDone(t *testing.T) {
	m := NewManager(logger.Nop(), time.Second)
	parent, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := m.Run(parent, func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-stopped:
	default:
		t.Fatal("worker was not cancelled")
	}
}

func TestShutdownJoinsHookErrors(t *testing.T) {
	m := NewManager(logger.Nop(), time.Second)
	first := errors.New("close db")
	m.Register("ok", func(context.Context) error { return nil })
	m.Register("db", func(context.Context) error { return first })

	assert.ErrorIs(t, m.Shutdown(), first)
}
