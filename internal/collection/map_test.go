package collection

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMap_GetOrCreate(t *testing.T) {
	m := NewSyncMap[string, int]()
	var builds int32
	var wg sync.WaitGroup
	values := make([]int, 16)
	for i := 0; i < len(values); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := m.GetOrCreate("k", func() (int, error) {
				return int(atomic.AddInt32(&builds, 1)), nil
			})
			assert.NoError(t, err)
			values[i] = v
		}(i)
	}
	wg.Wait()
	stored, ok := m.Get("k")
	require.True(t, ok)
	for _, v := range values {
		assert.Equal(t, stored, v)
	}

	_, err := m.GetOrCreate("bad", func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	_, ok = m.Get("bad")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestSyncMap_GetOrCreateBuildsOutsideLock(t *testing.T) {
	m := NewSyncMap[string, int]()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := m.GetOrCreate("slow", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, v)
	}()
	<-started

	v, err := m.GetOrCreate("fast", func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	m.Put("other", 3)
	assert.Equal(t, 2, m.Len())

	close(release)
	<-done
	assert.Equal(t, 3, m.Len())
}

func TestSyncMap_PutIfAbsent(t *testing.T) {
	m := NewSyncMap[string, int]()
	v, stored := m.PutIfAbsent("a", 1)
	assert.True(t, stored)
	assert.Equal(t, 1, v)
	v, stored = m.PutIfAbsent("a", 2)
	assert.False(t, stored)
	assert.Equal(t, 1, v)
}

func TestSyncMap_RangeAllowsMutation(t *testing.T) {
	m := NewSyncMap[string, int]()
	m.Put("a", 1)
	m.Put("b", 2)
	m.Range(func(key string, value int) bool {
		m.Delete(key)
		return true
	})
	assert.Equal(t, 0, m.Len())
}
