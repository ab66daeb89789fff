package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRecorder struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	block chan struct{}
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{calls: make(map[string]int)}
}

func (r *countingRecorder) Record(_ context.Context, code string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[code]++
	return r.err
}

func (r *countingRecorder) count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[code]
}

func TestPool_ProcessesJobs(t *testing.T) {
	rec := newCountingRecorder()
	pool := NewPool(rec, zap.NewNop().Sugar(), 3, 100)
	pool.Start()

	for i := 0; i < 10; i++ {
		pool.Dispatch("a1B2c")
	}
	pool.Dispatch("other")

	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, 10, rec.count("a1B2c"))
	assert.Equal(t, 1, rec.count("other"))
}

func TestPool_DropsWhenFull(t *testing.T) {
	rec := newCountingRecorder()
	rec.block = make(chan struct{})
	pool := NewPool(rec, zap.NewNop().Sugar(), 1, 1)
	pool.Start()

	pool.Dispatch("first")
	// 等待唯一的 worker 取走第一个任务并阻塞
	require.Eventually(t, func() bool { return len(pool.jobs) == 0 }, time.Second, 5*time.Millisecond)
	pool.Dispatch("second")
	pool.Dispatch("third") // 队列已满, 被丢弃

	close(rec.block)
	require.NoError(t, pool.Stop(context.Background()))

	assert.Equal(t, 1, rec.count("first"))
	assert.Equal(t, 1, rec.count("second"))
	assert.Equal(t, 0, rec.count("third"))
}

func TestPool_DispatchAfterStop(t *testing.T) {
	rec := newCountingRecorder()
	pool := NewPool(rec, zap.NewNop().Sugar(), 1, 10)
	pool.Start()
	require.NoError(t, pool.Stop(context.Background()))

	assert.NotPanics(t, func() { pool.Dispatch("late") })
	assert.NoError(t, pool.Stop(context.Background()), "重复停止不应报错")
	assert.Equal(t, 0, rec.count("late"))
}

func TestPool_RecorderErrorsAreSwallowed(t *testing.T) {
	rec := newCountingRecorder()
	rec.err = errors.New("数据库不可用")
	pool := NewPool(rec, zap.NewNop().Sugar(), 2, 10)
	pool.Start()

	pool.Dispatch("a1B2c")
	pool.Dispatch("a1B2c")

	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, 2, rec.count("a1B2c"))
}

func TestPool_StopTimeout(t *testing.T) {
	rec := newCountingRecorder()
	rec.block = make(chan struct{})
	defer close(rec.block)

	pool := NewPool(rec, zap.NewNop().Sugar(), 1, 10)
	pool.Start()
	pool.Dispatch("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)
}
