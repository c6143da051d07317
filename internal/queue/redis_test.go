package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBroker(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisWithClient(client)
}

func TestRedis_FIFOOrder(t *testing.T) {
	b := testBroker(t)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, b.Enqueue(ctx, "default", &Job{InternalTaskID: id, RowID: uuid.New()}))
	}

	var got []string
	for i := 0; i < 3; i++ {
		job, err := b.Dequeue(ctx, "default")
		require.NoError(t, err)
		require.NotNil(t, job)
		got = append(got, job.InternalTaskID)
		require.NoError(t, b.Ack(ctx, "default", job))
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)

	depth, err := b.Depth(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestRedis_UnackedJobIsRecoverable(t *testing.T) {
	b := testBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, "async_other", &Job{InternalTaskID: "t1", RowID: uuid.New()}))

	job, err := b.Dequeue(ctx, "async_other")
	require.NoError(t, err)
	require.NotNil(t, job)
	// no Ack: simulate a worker crash

	moved, err := b.Recover(ctx, "async_other")
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	again, err := b.Dequeue(ctx, "async_other")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "t1", again.InternalTaskID)
}

func TestRedis_QueuesAreIndependent(t *testing.T) {
	b := testBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, "async_refine", &Job{InternalTaskID: "refine-1", RowID: uuid.New()}))

	depthDefault, _ := b.Depth(ctx, "default")
	depthRefine, _ := b.Depth(ctx, "async_refine")
	assert.Zero(t, depthDefault)
	assert.Equal(t, int64(1), depthRefine)
}

func TestPool_ProcessesAndAcks(t *testing.T) {
	b := testBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{}, 4)

	pool := NewPool(b, map[string]int{"default": 2}, func(ctx context.Context, job *Job) error {
		mu.Lock()
		seen[job.InternalTaskID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	go pool.Run(ctx)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, b.Enqueue(ctx, "default", &Job{InternalTaskID: id, RowID: uuid.New()}))
	}

	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker pool did not process jobs in time")
		}
	}

	// allow acks to land
	require.Eventually(t, func() bool {
		depth, _ := b.Depth(ctx, "default")
		return depth == 0
	}, 2*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 4)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s handled more than once", id)
	}
}
