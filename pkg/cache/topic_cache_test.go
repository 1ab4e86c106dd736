package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"historydb/pkg/models"
	"historydb/pkg/store"
)

type slowReader struct {
	mu    sync.Mutex
	data  map[string]*models.Topic
	calls int32
	delay time.Duration
}

func (r *slowReader) GetTopic(ctx context.Context, id string) (*models.Topic, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func TestGetTopicCachesHit(t *testing.T) {
	src := &slowReader{data: map[string]*models.Topic{"t1": {ID: "t1", Name: "one"}}}
	c := New(src)

	got, err := c.GetTopic(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "one", got.Name)

	_, err = c.GetTopic(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	src := &slowReader{
		data:  map[string]*models.Topic{"t1": {ID: "t1"}},
		delay: 20 * time.Millisecond,
	}
	c := New(src)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetTopic(context.Background(), "t1")
			require.NoError(t, err)
			require.NotNil(t, got)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestAbsenceNotCached(t *testing.T) {
	src := &slowReader{data: map[string]*models.Topic{}}
	c := New(src)

	got, err := c.GetTopic(context.Background(), "t1")
	require.NoError(t, err)
	require.Nil(t, got)

	// Topic appears later; the next read must see it.
	src.mu.Lock()
	src.data["t1"] = &models.Topic{ID: "t1"}
	src.mu.Unlock()

	got, err = c.GetTopic(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestPutAndInvalidate(t *testing.T) {
	src := &slowReader{data: map[string]*models.Topic{"t1": {ID: "t1", Name: "stored"}}}
	c := New(src)

	c.Put(&models.Topic{ID: "t1", Name: "written"})
	got, err := c.GetTopic(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "written", got.Name)
	require.Equal(t, int32(0), atomic.LoadInt32(&src.calls))

	c.Invalidate("t1")
	got, err = c.GetTopic(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "stored", got.Name)
	require.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestCacheReturnsCopies(t *testing.T) {
	src := &slowReader{data: map[string]*models.Topic{"t1": {ID: "t1", Name: "orig"}}}
	c := New(src)

	got, err := c.GetTopic(context.Background(), "t1")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := c.GetTopic(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "orig", again.Name)
}
